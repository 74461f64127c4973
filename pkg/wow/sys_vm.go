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

// zeroBits applies the default guest address limit.
func zeroBits(z uint64) uint64 {
	if z == 0 {
		return guestZeroBits
	}
	return z
}

// readRange reads a guest (PVOID *BaseAddress, SIZE_T *Size) pair.
func (t *Thread) readRange(addrPtr, sizePtr uint32) (addr, size uint64, err error) {
	if addr, err = t.readPtr(addrPtr); err != nil {
		return 0, 0, err
	}
	if size, err = t.readPtr(sizePtr); err != nil {
		return 0, 0, err
	}
	return addr, size, nil
}

// writeRange stores a range back through the guest pointers it was read
// from. Values that do not fit the guest fail with an overflow.
func (t *Thread) writeRange(addrPtr uint32, addr uint64, sizePtr uint32, size uint64) error {
	if err := t.tr.WritePtr(addrPtr, addr); err != nil {
		return err
	}
	return t.tr.WritePtr(sizePtr, size)
}

// NtAllocateVirtualMemory implements NtAllocateVirtualMemory.
func NtAllocateVirtualMemory(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addrPtr := args.Pointer()
	bits := args.ULongPtr()
	sizePtr := args.Pointer()
	allocType := args.Uint32()
	prot := args.Uint32()

	addr, size, err := t.readRange(addrPtr, sizePtr)
	if err != nil {
		return status(err)
	}
	g := t.target(process)
	g.preAlloc(addr, size, allocType, prot)
	s := status(t.kernel().AllocateVirtualMemory(t.ctx, process, &addr, zeroBits(bits), &size, allocType, prot))
	g.postAlloc(addr, size, allocType, prot, s)
	if !s.IsSuccess() {
		return s
	}
	if err := t.writeRange(addrPtr, addr, sizePtr, size); err != nil {
		return status(err)
	}
	return s
}

// NtFreeVirtualMemory implements NtFreeVirtualMemory.
func NtFreeVirtualMemory(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addrPtr := args.Pointer()
	sizePtr := args.Pointer()
	freeType := args.Uint32()

	addr, size, err := t.readRange(addrPtr, sizePtr)
	if err != nil {
		return status(err)
	}
	g := t.target(process)
	g.preFree(addr, size, freeType)
	s := status(t.kernel().FreeVirtualMemory(t.ctx, process, &addr, &size, freeType))
	g.postFree(addr, size, freeType, s)
	if !s.IsSuccess() {
		return s
	}
	if err := t.writeRange(addrPtr, addr, sizePtr, size); err != nil {
		return status(err)
	}
	return s
}

// NtProtectVirtualMemory implements NtProtectVirtualMemory.
func NtProtectVirtualMemory(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addrPtr := args.Pointer()
	sizePtr := args.Pointer()
	prot := args.Uint32()
	oldPtr := args.Pointer()

	addr, size, err := t.readRange(addrPtr, sizePtr)
	if err != nil {
		return status(err)
	}
	g := t.target(process)
	g.preProtect(addr, size, prot)
	var old uint32
	s := status(t.kernel().ProtectVirtualMemory(t.ctx, process, &addr, &size, prot, &old))
	g.postProtect(addr, size, prot, s)
	if !s.IsSuccess() {
		return s
	}
	if err := t.writeRange(addrPtr, addr, sizePtr, size); err != nil {
		return status(err)
	}
	if err := t.tr.WriteULong(oldPtr, old); err != nil {
		return status(err)
	}
	return s
}

// NtQueryVirtualMemory implements NtQueryVirtualMemory.
func NtQueryVirtualMemory(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addr := args.Pointer()
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()
	retLen := args.Pointer()

	c, err := translate.MemoryClass(class)
	if err != nil {
		return t.unsupported(err)
	}
	q := func(b hostarch.Buffer) (uint32, error) {
		return t.kernel().QueryVirtualMemory(t.ctx, process, translate.Ptr(addr), class, b)
	}
	return t.query(c, q, buf, length, retLen)
}

// NtReadVirtualMemory implements NtReadVirtualMemory. The guest buffer is
// passed through, since it is addressable by the host.
func NtReadVirtualMemory(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addr := args.Pointer()
	buf := args.Pointer()
	size := args.ULongPtr()
	donePtr := args.Pointer()

	n, err := t.kernel().ReadVirtualMemory(t.ctx, process, translate.Ptr(addr), hostarch.Addr(buf), size)
	return t.finishCopy(donePtr, n, status(err))
}

// NtWriteVirtualMemory implements NtWriteVirtualMemory.
func NtWriteVirtualMemory(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addr := args.Pointer()
	buf := args.Pointer()
	size := args.ULongPtr()
	donePtr := args.Pointer()

	n, err := t.kernel().WriteVirtualMemory(t.ctx, process, translate.Ptr(addr), hostarch.Addr(buf), size)
	if n > 0 {
		t.target(process).written(translate.Ptr(addr), n)
	}
	return t.finishCopy(donePtr, n, status(err))
}

// finishCopy reports the byte count of a partial or complete copy.
func (t *Thread) finishCopy(donePtr uint32, n uint64, s ntstatus.Status) ntstatus.Status {
	if s.IsError() && n == 0 {
		return s
	}
	if err := t.tr.WritePtr(donePtr, n); err != nil && s.IsSuccess() {
		return status(err)
	}
	return s
}

// NtFlushInstructionCache implements NtFlushInstructionCache.
func NtFlushInstructionCache(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addr := translate.Ptr(args.Pointer())
	size := args.ULongPtr()

	t.target(process).flush(addr, size)
	return status(t.kernel().FlushInstructionCache(t.ctx, process, addr, size))
}

// NtCreateSection implements NtCreateSection.
func NtCreateSection(t *Thread, args *Args) ntstatus.Status {
	handlePtr := args.Pointer()
	access := args.Uint32()
	attrsPtr := args.Pointer()
	maxSizePtr := args.Pointer()
	prot := args.Uint32()
	allocAttrs := args.Uint32()
	file := args.Handle()

	attrs, err := t.tr.ObjectAttributesToWide(attrsPtr)
	if err != nil {
		return status(err)
	}
	maxSize, err := t.optionalInt64(maxSizePtr)
	if err != nil {
		return status(err)
	}
	h, err := t.kernel().CreateSection(t.ctx, access, attrs, maxSize, prot, allocAttrs, file)
	s := status(err)
	if !s.IsSuccess() {
		return s
	}
	if err := t.storeHandle(handlePtr, h); err != nil {
		return status(err)
	}
	if maxSize != nil {
		if err := t.writeInt64(maxSizePtr, *maxSize); err != nil {
			return status(err)
		}
	}
	return s
}

// NtMapViewOfSection implements NtMapViewOfSection.
func NtMapViewOfSection(t *Thread, args *Args) ntstatus.Status {
	section := args.Handle()
	process := args.Handle()
	addrPtr := args.Pointer()
	bits := args.ULongPtr()
	commit := args.ULongPtr()
	offsetPtr := args.Pointer()
	sizePtr := args.Pointer()
	inherit := args.Uint32()
	allocType := args.Uint32()
	prot := args.Uint32()

	addr, size, err := t.readRange(addrPtr, sizePtr)
	if err != nil {
		return status(err)
	}
	offset, err := t.optionalInt64(offsetPtr)
	if err != nil {
		return status(err)
	}
	s := status(t.kernel().MapViewOfSection(t.ctx, section, process, &addr, zeroBits(bits), commit, offset, &size, inherit, allocType, prot))
	if !s.IsSuccess() {
		return s
	}
	t.target(process).mapped(addr, size, prot)
	if err := t.writeRange(addrPtr, addr, sizePtr, size); err != nil {
		return status(err)
	}
	if offset != nil {
		if err := t.writeInt64(offsetPtr, *offset); err != nil {
			return status(err)
		}
	}
	return s
}

// NtUnmapViewOfSection implements NtUnmapViewOfSection.
func NtUnmapViewOfSection(t *Thread, args *Args) ntstatus.Status {
	process := args.Handle()
	addr := translate.Ptr(args.Pointer())

	g := t.target(process)
	g.preUnmap(addr)
	s := status(t.kernel().UnmapViewOfSection(t.ctx, process, addr))
	g.postUnmap(addr, s)
	return s
}
