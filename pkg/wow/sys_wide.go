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
	"fmt"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
	"gvisor.dev/compat32/pkg/usermem"
)

// The calls in this file let a guest reach the full host address space.
// 64-bit values arrive as pairs of argument slots and wide structures are
// returned without translation.

// readUint64 reads a guest ULONG64.
func (t *Thread) readUint64(addr uint32) (uint64, error) {
	return usermem.CopyUint64In(t.tr.Guest, hostarch.Addr(addr))
}

// writeUint64 stores a guest ULONG64. A zero addr is ignored.
func (t *Thread) writeUint64(addr uint32, v uint64) error {
	return t.writeInt64(addr, int64(v))
}

// rawQuery runs q into a wide buffer of the guest's length and copies the
// result to the guest unchanged.
func (t *Thread) rawQuery(q func(buf hostarch.Buffer) (uint32, error), dst, dstLen, retLen uint32) ntstatus.Status {
	buf := t.arena.Alloc(int(min(dstLen, translate.MaxStaged)))
	n, err := q(buf)
	s := status(err)
	if s.IsError() {
		if err := t.tr.WriteULong(retLen, n); err != nil {
			return status(err)
		}
		return s
	}
	n = min(n, uint32(buf.Len()))
	if _, err := t.tr.Guest.CopyOut(hostarch.Addr(dst), buf.Data[:n]); err != nil {
		return status(err)
	}
	if err := t.tr.WriteULong(retLen, n); err != nil {
		return status(err)
	}
	return s
}

// NtWow64ReadVirtualMemory64 implements NtWow64ReadVirtualMemory64.
func NtWow64ReadVirtualMemory64(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addr := args.Uint64Pair()
	buf := args.Pointer()
	size := args.Uint64Pair()
	donePtr := args.Pointer()

	n, err := t.kernel().ReadVirtualMemory(t.ctx, process, addr, hostarch.Addr(buf), size)
	s := status(err)
	if s.IsError() && n == 0 {
		return s
	}
	if err := t.writeUint64(donePtr, n); err != nil && s.IsSuccess() {
		return status(err)
	}
	return s
}

// NtWow64WriteVirtualMemory64 implements NtWow64WriteVirtualMemory64.
func NtWow64WriteVirtualMemory64(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addr := args.Uint64Pair()
	buf := args.Pointer()
	size := args.Uint64Pair()
	donePtr := args.Pointer()

	n, err := t.kernel().WriteVirtualMemory(t.ctx, process, addr, hostarch.Addr(buf), size)
	if n > 0 {
		t.target(process).written(addr, n)
	}
	s := status(err)
	if s.IsError() && n == 0 {
		return s
	}
	if err := t.writeUint64(donePtr, n); err != nil && s.IsSuccess() {
		return status(err)
	}
	return s
}

// NtWow64AllocateVirtualMemory64 implements NtWow64AllocateVirtualMemory64.
// No default address limit applies.
func NtWow64AllocateVirtualMemory64(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addrPtr := args.Pointer()
	bits := args.Uint64Pair()
	sizePtr := args.Pointer()
	allocType := args.Uint32()
	prot := args.Uint32()

	addr, err := t.readUint64(addrPtr)
	if err != nil {
		return status(err)
	}
	size, err := t.readUint64(sizePtr)
	if err != nil {
		return status(err)
	}
	g := t.target(process)
	g.preAlloc(addr, size, allocType, prot)
	s := status(t.kernel().AllocateVirtualMemory(t.ctx, process, &addr, bits, &size, allocType, prot))
	g.postAlloc(addr, size, allocType, prot, s)
	if !s.IsSuccess() {
		return s
	}
	if err := t.writeUint64(addrPtr, addr); err != nil {
		return status(err)
	}
	if err := t.writeUint64(sizePtr, size); err != nil {
		return status(err)
	}
	return s
}

// NtWow64QueryInformationProcess64 implements
// NtWow64QueryInformationProcess64.
func NtWow64QueryInformationProcess64(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()
	retLen := args.Pointer()

	return t.rawQuery(func(b hostarch.Buffer) (uint32, error) {
		return t.kernel().QueryInformationProcess(t.ctx, process, class, b)
	}, buf, length, retLen)
}

// nativeSystemClasses are the classes NtWow64GetNativeSystemInformation
// answers.
var nativeSystemClasses = map[uint32]bool{
	nt.SystemBasicInformation:              true,
	nt.SystemCpuInformation:                true,
	nt.SystemEmulationBasicInformation:     true,
	nt.SystemEmulationProcessorInformation: true,
	nt.SystemNativeBasicInformation:        true,
}

// NtWow64GetNativeSystemInformation implements
// NtWow64GetNativeSystemInformation. The emulation classes describe the
// native system, as the basic and processor classes do.
func NtWow64GetNativeSystemInformation(t *Thread, args *Args) ntstatus.Status {
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()
	retLen := args.Pointer()

	if !nativeSystemClasses[class] {
		return t.unsupported(fmt.Errorf("native system information class %d: %w", class, ntstatus.StatusInvalidInfoClass))
	}
	switch class {
	case nt.SystemEmulationBasicInformation, nt.SystemNativeBasicInformation:
		class = nt.SystemBasicInformation
	case nt.SystemEmulationProcessorInformation:
		class = nt.SystemCpuInformation
	}
	return t.rawQuery(func(b hostarch.Buffer) (uint32, error) {
		return t.kernel().QuerySystemInformation(t.ctx, class, b)
	}, buf, length, retLen)
}
