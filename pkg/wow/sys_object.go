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
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
	"gvisor.dev/compat32/pkg/usermem"
)

// maxWaitObjects is MAXIMUM_WAIT_OBJECTS.
const maxWaitObjects = 64

// Wait types of NtWaitForMultipleObjects.
const (
	waitAll = 0
	waitAny = 1
)

// NtClose implements NtClose.
func NtClose(t *Thread, args *Args) ntstatus.Status {
	return status(t.kernel().Close(t.ctx, args.Handle()))
}

// NtDuplicateObject implements NtDuplicateObject.
func NtDuplicateObject(t *Thread, args *Args) ntstatus.Status {
	srcProcess := args.Handle()
	src := args.Handle()
	dstProcess := args.Handle()
	dstPtr := args.Pointer()
	access := args.Uint32()
	attrs := args.Uint32()
	options := args.Uint32()

	h, err := t.kernel().DuplicateObject(t.ctx, srcProcess, src, dstProcess, access, attrs, options)
	if err != nil {
		return status(err)
	}
	if dstPtr == 0 {
		return ntstatus.StatusSuccess
	}
	return status(t.storeHandleIn(dstPtr, dstProcess, h))
}

// NtCreateEvent implements NtCreateEvent.
func NtCreateEvent(t *Thread, args *Args) ntstatus.Status {
	handlePtr := args.Pointer()
	access := args.Uint32()
	attrsPtr := args.Pointer()
	eventType := args.Uint32()
	initial := args.Bool()

	attrs, err := t.tr.ObjectAttributesToWide(attrsPtr)
	if err != nil {
		return status(err)
	}
	h, err := t.kernel().CreateEvent(t.ctx, access, attrs, eventType, initial)
	s := status(err)
	if !s.IsSuccess() {
		return s
	}
	if err := t.storeHandle(handlePtr, h); err != nil {
		return status(err)
	}
	return s
}

// NtSetEvent implements NtSetEvent.
func NtSetEvent(t *Thread, args *Args) ntstatus.Status {
	h := args.Handle()
	prevPtr := args.Pointer()

	prev, err := t.kernel().SetEvent(t.ctx, h)
	if err != nil {
		return status(err)
	}
	return status(t.tr.WriteULong(prevPtr, uint32(prev)))
}

// NtWaitForSingleObject implements NtWaitForSingleObject.
func NtWaitForSingleObject(t *Thread, args *Args) ntstatus.Status {
	h := args.Handle()
	alertable := args.Bool()
	timeoutPtr := args.Pointer()

	timeout, err := t.tr.ReadTimeout(timeoutPtr)
	if err != nil {
		return status(err)
	}
	return status(t.kernel().WaitForSingleObject(t.ctx, h, alertable, timeout))
}

// NtWaitForMultipleObjects implements NtWaitForMultipleObjects. The guest
// handle array is widened element by element.
func NtWaitForMultipleObjects(t *Thread, args *Args) ntstatus.Status {
	count := args.Uint32()
	handlesPtr := args.Pointer()
	waitType := args.Uint32()
	alertable := args.Bool()
	timeoutPtr := args.Pointer()

	if count == 0 || count > maxWaitObjects {
		return ntstatus.StatusInvalidParameter
	}
	if waitType != waitAll && waitType != waitAny {
		return ntstatus.StatusInvalidParameter
	}
	raw, err := usermem.CopyBytesIn(t.tr.Guest, hostarch.Addr(handlesPtr), int(count)*4)
	if err != nil {
		return status(err)
	}
	handles := make([]nt.Handle, count)
	for i := range handles {
		handles[i] = translate.Handle(hostarch.ByteOrder.Uint32(raw[i*4:]))
	}
	timeout, err := t.tr.ReadTimeout(timeoutPtr)
	if err != nil {
		return status(err)
	}
	return status(t.kernel().WaitForMultipleObjects(t.ctx, handles, waitType == waitAll, alertable, timeout))
}

// NtDelayExecution implements NtDelayExecution.
func NtDelayExecution(t *Thread, args *Args) ntstatus.Status {
	alertable := args.Bool()
	timeoutPtr := args.Pointer()

	timeout, err := t.tr.ReadTimeout(timeoutPtr)
	if err != nil {
		return status(err)
	}
	return status(t.kernel().DelayExecution(t.ctx, alertable, timeout))
}
