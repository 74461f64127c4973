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
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
)

// NtCreateJobObject implements NtCreateJobObject.
func NtCreateJobObject(t *Thread, args *Args) ntstatus.Status {
	handlePtr := args.Pointer()
	access := args.Uint32()
	attrsPtr := args.Pointer()

	attrs, err := t.tr.ObjectAttributesToWide(attrsPtr)
	if err != nil {
		return status(err)
	}
	h, err := t.kernel().CreateJobObject(t.ctx, access, attrs)
	s := status(err)
	if !s.IsSuccess() {
		return s
	}
	if err := t.storeHandle(handlePtr, h); err != nil {
		return status(err)
	}
	return s
}

// NtAssignProcessToJobObject implements NtAssignProcessToJobObject.
func NtAssignProcessToJobObject(t *Thread, args *Args) ntstatus.Status {
	job := args.Handle()
	process := args.Handle()
	return status(t.kernel().AssignProcessToJobObject(t.ctx, job, process))
}

// NtQueryInformationJobObject implements NtQueryInformationJobObject.
func NtQueryInformationJobObject(t *Thread, args *Args) ntstatus.Status {
	job := args.Handle()
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()
	retLen := args.Pointer()

	c, err := translate.JobClass(class)
	if err != nil {
		return t.unsupported(err)
	}
	q := func(b hostarch.Buffer) (uint32, error) {
		return t.kernel().QueryInformationJobObject(t.ctx, job, class, b)
	}
	return t.query(c, q, buf, length, retLen)
}

// NtSetInformationJobObject implements NtSetInformationJobObject.
func NtSetInformationJobObject(t *Thread, args *Args) ntstatus.Status {
	job := args.Handle()
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()

	c, err := translate.JobSetClass(class)
	if err != nil {
		return t.unsupported(err)
	}
	wide, err := t.tr.Set(c, buf, length)
	if err != nil {
		return status(err)
	}
	return status(t.kernel().SetInformationJobObject(t.ctx, job, class, wide))
}
