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

// NtQuerySecurityObject implements NtQuerySecurityObject. The descriptor
// is returned self-relative, with offsets rebased to the narrow layout.
func NtQuerySecurityObject(t *Thread, args *Args) ntstatus.Status {
	h := args.Handle()
	info := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()
	retLen := args.Pointer()

	q := func(b hostarch.Buffer) (uint32, error) {
		return t.kernel().QuerySecurityObject(t.ctx, h, info, b)
	}
	return t.query(translate.SecurityDescriptorClass(), q, buf, length, retLen)
}

// NtSetSecurityObject implements NtSetSecurityObject.
func NtSetSecurityObject(t *Thread, args *Args) ntstatus.Status {
	h := args.Handle()
	info := args.Uint32()
	sdPtr := args.Pointer()

	if sdPtr == 0 {
		return ntstatus.StatusAccessViolation
	}
	sd, err := t.tr.SecurityDescriptorToWide(sdPtr)
	if err != nil {
		return status(err)
	}
	return status(t.kernel().SetSecurityObject(t.ctx, h, info, sd))
}

// NtOpenProcessToken implements NtOpenProcessToken.
func NtOpenProcessToken(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	access := args.Uint32()
	handlePtr := args.Pointer()

	h, err := t.kernel().OpenProcessToken(t.ctx, process, access)
	if err != nil {
		return status(err)
	}
	return status(t.storeHandle(handlePtr, h))
}

// NtQueryInformationToken implements NtQueryInformationToken.
func NtQueryInformationToken(t *Thread, args *Args) ntstatus.Status {
	token := args.Handle()
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()
	retLen := args.Pointer()

	c, err := translate.TokenClass(class)
	if err != nil {
		return t.unsupported(err)
	}
	q := func(b hostarch.Buffer) (uint32, error) {
		return t.kernel().QueryInformationToken(t.ctx, token, class, b)
	}
	return t.query(c, q, buf, length, retLen)
}
