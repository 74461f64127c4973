// Copyright 2025 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wow

import (
	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/host"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
)

// NtOpenProcess implements NtOpenProcess.
func NtOpenProcess(t *Thread, args *Args) ntstatus.Status {
	handlePtr := args.Pointer()
	access := args.Uint32()
	attrsPtr := args.Pointer()
	cidPtr := args.Pointer()

	attrs, err := t.tr.ObjectAttributesToWide(attrsPtr)
	if err != nil {
		return status(err)
	}
	var cid nt32.ClientID
	if cidPtr != 0 {
		if err := t.tr.CopyIn(cidPtr, &cid); err != nil {
			return status(err)
		}
	}
	h, err := t.kernel().OpenProcess(t.ctx, access, attrs, translate.ClientID64(cid))
	if err != nil {
		return status(err)
	}
	return status(t.storeHandle(handlePtr, h))
}

// NtTerminateProcess implements NtTerminateProcess.
func NtTerminateProcess(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	exit := ntstatus.Status(args.Uint32())
	return status(t.kernel().TerminateProcess(t.ctx, process, exit))
}

// NtQueryInformationProcess implements NtQueryInformationProcess.
func NtQueryInformationProcess(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()
	retLen := args.Pointer()

	c, err := translate.ProcessClass(class)
	if err != nil {
		return t.unsupported(err)
	}
	q := func(b hostarch.Buffer) (uint32, error) {
		return t.kernel().QueryInformationProcess(t.ctx, process, class, b)
	}
	return t.query(c, q, buf, length, retLen)
}

// NtSetInformationProcess implements NtSetInformationProcess.
func NtSetInformationProcess(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()

	c, err := translate.ProcessSetClass(class)
	if err != nil {
		return t.unsupported(err)
	}
	wide, err := t.tr.Set(c, buf, length)
	if err != nil {
		return status(err)
	}
	return status(t.kernel().SetInformationProcess(t.ctx, process, class, wide))
}

// NtQueryInformationThread implements NtQueryInformationThread.
func NtQueryInformationThread(t *Thread, args *Args) ntstatus.Status {
	thread := args.Handle()
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()
	retLen := args.Pointer()

	c, err := translate.ThreadClass(class)
	if err != nil {
		return t.unsupported(err)
	}
	q := func(b hostarch.Buffer) (uint32, error) {
		return t.kernel().QueryInformationThread(t.ctx, thread, class, b)
	}
	return t.query(c, q, buf, length, retLen)
}

// NtQueueApcThread implements NtQueueApcThread. The routine stays a guest
// address; it is entered through the guest APC dispatcher on delivery.
func NtQueueApcThread(t *Thread, args *Args) ntstatus.Status {
	thread := args.Handle()
	apc := host.APC{Routine: translate.Ptr(args.Pointer())}
	for i := range apc.Args {
		apc.Args[i] = args.ULongPtr()
	}
	return status(t.kernel().QueueApcThread(t.ctx, thread, apc))
}

// NtTestAlert implements NtTestAlert.
func NtTestAlert(t *Thread, args *Args) ntstatus.Status {
	return status(t.kernel().TestAlert(t.ctx))
}

// NtCreateUserProcess implements NtCreateUserProcess. The PS_CREATE_INFO
// argument is not forwarded.
func NtCreateUserProcess(t *Thread, args *Args) ntstatus.Status {
	processPtr := args.Pointer()
	threadPtr := args.Pointer()
	processAccess := args.Uint32()
	threadAccess := args.Uint32()
	processAttrsPtr := args.Pointer()
	threadAttrsPtr := args.Pointer()
	processFlags := args.Uint32()
	threadFlags := args.Uint32()
	paramsPtr := args.Pointer()
	_ = args.Pointer() // PS_CREATE_INFO
	attrListPtr := args.Pointer()

	processAttrs, err := t.tr.ObjectAttributesToWide(processAttrsPtr)
	if err != nil {
		return status(err)
	}
	threadAttrs, err := t.tr.ObjectAttributesToWide(threadAttrsPtr)
	if err != nil {
		return status(err)
	}
	params, err := t.tr.ProcessParamsToWide(paramsPtr)
	if err != nil {
		return status(err)
	}
	attrs, err := t.tr.PSAttributesToWide(attrListPtr)
	if err != nil {
		return status(err)
	}
	process, thread, err := t.kernel().CreateUserProcess(t.ctx, processAccess, threadAccess, processAttrs, threadAttrs, processFlags, threadFlags, params, attrs.Addr)
	s := status(err)
	if !s.IsSuccess() {
		return s
	}
	if err := t.storeHandle(processPtr, process); err != nil {
		_ = t.kernel().Close(t.ctx, thread)
		return status(err)
	}
	if err := t.storeHandle(threadPtr, thread); err != nil {
		return status(err)
	}
	if err := attrs.Finish(); err != nil {
		return status(err)
	}
	return s
}
