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

package sim

import (
	"context"
	"fmt"

	"github.com/google/btree"
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// page is the state of one page of an allocation.
type page struct {
	state uint32
	prot  uint32
}

// region is one allocation: a reservation or a mapped view.
type region struct {
	base      uint64
	size      uint64
	allocProt uint32
	typ       uint32
	pages     []page
	// name is the file backing a view.
	name string
}

func (r *region) end() uint64 {
	return r.base + r.size
}

func (r *region) pageIndex(addr uint64) int {
	return int((addr - r.base) / hostarch.PageSize)
}

// addressSpace is a process's virtual memory map, indexed by base address.
type addressSpace struct {
	low, high uint64
	regions   *btree.BTreeG[*region]
}

func newAddressSpace(low, high uint64) *addressSpace {
	return &addressSpace{
		low:  low,
		high: high,
		regions: btree.NewG(8, func(a, b *region) bool {
			return a.base < b.base
		}),
	}
}

// find returns the region containing addr.
func (as *addressSpace) find(addr uint64) (*region, bool) {
	var found *region
	as.regions.DescendLessOrEqual(&region{base: addr}, func(r *region) bool {
		if addr < r.end() {
			found = r
		}
		return false
	})
	return found, found != nil
}

// overlaps returns true if any region intersects [start, end).
func (as *addressSpace) overlaps(start, end uint64) bool {
	if r, ok := as.find(start); ok && r.end() > start {
		return true
	}
	hit := false
	as.regions.AscendGreaterOrEqual(&region{base: start}, func(r *region) bool {
		hit = r.base < end
		return false
	})
	return hit
}

// findFree returns the lowest granularity-aligned address at which size
// bytes fit below limit.
func (as *addressSpace) findFree(size, limit uint64) (uint64, bool) {
	cur := as.low
	ok := false
	as.regions.Ascend(func(r *region) bool {
		if r.base >= cur+size {
			ok = true
			return false
		}
		if r.end() > cur {
			cur = roundUp(r.end(), hostarch.AllocationGranularity)
		}
		return true
	})
	if !ok && cur+size > limit+1 {
		return 0, false
	}
	return cur, cur+size <= limit+1
}

func roundUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func roundDown(v, align uint64) uint64 {
	return v &^ (align - 1)
}

// limitFor returns the highest address an allocation constrained by
// zeroBits may use. Values above 32 are address masks.
func (as *addressSpace) limitFor(zeroBits uint64) uint64 {
	switch {
	case zeroBits == 0:
		return as.high
	case zeroBits > 32:
		return min(as.high, zeroBits)
	default:
		return min(as.high, (uint64(1)<<(64-16-zeroBits))-1)
	}
}

// allocate reserves and/or commits memory. It returns the affected range.
func (as *addressSpace) allocate(addr, size, zeroBits uint64, allocType, prot, typ uint32) (uint64, uint64, error) {
	if size == 0 {
		return 0, 0, fmt.Errorf("zero-sized allocation: %w", ntstatus.StatusInvalidParameter)
	}
	if allocType&(nt.MEM_RESERVE|nt.MEM_COMMIT) == 0 {
		return 0, 0, fmt.Errorf("allocation type %#x: %w", allocType, ntstatus.StatusInvalidParameter)
	}
	if !nt.PageProtectionIsValid(prot) {
		return 0, 0, fmt.Errorf("protection %#x: %w", prot, ntstatus.StatusInvalidPageProtection)
	}
	state := uint32(nt.MEM_RESERVE)
	pageProt := uint32(0)
	if allocType&nt.MEM_COMMIT != 0 {
		state, pageProt = nt.MEM_COMMIT, prot
	}

	// Committing within an existing reservation.
	if allocType&nt.MEM_RESERVE == 0 {
		start := roundDown(addr, hostarch.PageSize)
		end := roundUp(addr+size, hostarch.PageSize)
		r, ok := as.find(start)
		if !ok || end > r.end() {
			return 0, 0, fmt.Errorf("commit of [%#x, %#x) outside a reservation: %w", start, end, ntstatus.StatusConflictingAddresses)
		}
		for i := r.pageIndex(start); i < r.pageIndex(end); i++ {
			r.pages[i] = page{state: state, prot: pageProt}
		}
		return start, end - start, nil
	}

	size = roundUp(size, hostarch.PageSize)
	limit := as.limitFor(zeroBits)
	if addr == 0 {
		var ok bool
		if addr, ok = as.findFree(size, limit); !ok {
			return 0, 0, fmt.Errorf("no room for %#x bytes below %#x: %w", size, limit, ntstatus.StatusNoMemory)
		}
	} else {
		addr = roundDown(addr, hostarch.AllocationGranularity)
		if addr < as.low || addr+size-1 > as.high {
			return 0, 0, fmt.Errorf("allocation at %#x: %w", addr, ntstatus.StatusInvalidParameter)
		}
		if as.overlaps(addr, addr+size) {
			return 0, 0, fmt.Errorf("allocation at %#x: %w", addr, ntstatus.StatusConflictingAddresses)
		}
	}
	r := &region{base: addr, size: size, allocProt: prot, typ: typ, pages: make([]page, size/hostarch.PageSize)}
	for i := range r.pages {
		r.pages[i] = page{state: state, prot: pageProt}
	}
	as.regions.ReplaceOrInsert(r)
	return addr, size, nil
}

// free releases or decommits memory. It returns the affected range.
func (as *addressSpace) free(addr, size uint64, freeType uint32) (uint64, uint64, error) {
	r, ok := as.find(addr)
	if !ok {
		return 0, 0, fmt.Errorf("free at %#x: %w", addr, ntstatus.StatusMemoryNotAllocated)
	}
	switch freeType {
	case nt.MEM_RELEASE:
		if addr != r.base {
			return 0, 0, fmt.Errorf("release at %#x of region at %#x: %w", addr, r.base, ntstatus.StatusFreeVMNotAtBase)
		}
		if size != 0 && size != r.size {
			return 0, 0, fmt.Errorf("partial release of %#x bytes: %w", size, ntstatus.StatusInvalidParameter)
		}
		as.regions.Delete(r)
		return r.base, r.size, nil
	case nt.MEM_DECOMMIT:
		start := roundDown(addr, hostarch.PageSize)
		end := r.end()
		if size != 0 {
			end = roundUp(addr+size, hostarch.PageSize)
		}
		if end > r.end() {
			return 0, 0, fmt.Errorf("decommit past region end: %w", ntstatus.StatusInvalidParameter)
		}
		for i := r.pageIndex(start); i < r.pageIndex(end); i++ {
			r.pages[i] = page{state: nt.MEM_RESERVE}
		}
		return start, end - start, nil
	default:
		return 0, 0, fmt.Errorf("free type %#x: %w", freeType, ntstatus.StatusInvalidParameter)
	}
}

// protect changes the protection of committed pages, returning the
// affected range and the old protection of the first page.
func (as *addressSpace) protect(addr, size uint64, prot uint32) (uint64, uint64, uint32, error) {
	if !nt.PageProtectionIsValid(prot) {
		return 0, 0, 0, fmt.Errorf("protection %#x: %w", prot, ntstatus.StatusInvalidPageProtection)
	}
	start := roundDown(addr, hostarch.PageSize)
	end := roundUp(addr+size, hostarch.PageSize)
	r, ok := as.find(start)
	if !ok || end > r.end() {
		return 0, 0, 0, fmt.Errorf("protect [%#x, %#x): %w", start, end, ntstatus.StatusMemoryNotAllocated)
	}
	first, last := r.pageIndex(start), r.pageIndex(end)
	for i := first; i < last; i++ {
		if r.pages[i].state != nt.MEM_COMMIT {
			return 0, 0, 0, fmt.Errorf("protect of uncommitted page %#x: %w", r.base+uint64(i)*hostarch.PageSize, ntstatus.StatusNotCommitted)
		}
	}
	old := r.pages[first].prot
	for i := first; i < last; i++ {
		r.pages[i].prot = prot
	}
	return start, end - start, old, nil
}

// query describes the run of pages with identical state starting at addr.
func (as *addressSpace) query(addr uint64) (nt.MemoryBasicInformationInfo, string, error) {
	if addr > as.high {
		return nt.MemoryBasicInformationInfo{}, "", fmt.Errorf("query at %#x: %w", addr, ntstatus.StatusInvalidParameter)
	}
	start := roundDown(addr, hostarch.PageSize)
	r, ok := as.find(start)
	if !ok {
		end := roundUp(as.high, hostarch.AllocationGranularity)
		as.regions.AscendGreaterOrEqual(&region{base: start}, func(r *region) bool {
			end = r.base
			return false
		})
		return nt.MemoryBasicInformationInfo{
			BaseAddress: start,
			RegionSize:  end - start,
			State:       nt.MEM_FREE,
			Protect:     nt.PAGE_NOACCESS,
		}, "", nil
	}
	i := r.pageIndex(start)
	p := r.pages[i]
	j := i + 1
	for j < len(r.pages) && r.pages[j] == p {
		j++
	}
	return nt.MemoryBasicInformationInfo{
		BaseAddress:       start,
		AllocationBase:    r.base,
		AllocationProtect: r.allocProt,
		RegionSize:        uint64(j-i) * hostarch.PageSize,
		State:             p.state,
		Protect:           p.prot,
		Type:              r.typ,
	}, r.name, nil
}

// accessible returns an error unless [addr, addr+size) is committed and
// not PAGE_NOACCESS.
func (as *addressSpace) accessible(addr, size uint64) error {
	for a := roundDown(addr, hostarch.PageSize); a < addr+size; a += hostarch.PageSize {
		r, ok := as.find(a)
		if !ok {
			return fmt.Errorf("access to %#x: %w", a, ntstatus.StatusAccessViolation)
		}
		if p := r.pages[r.pageIndex(a)]; p.state != nt.MEM_COMMIT || p.prot&0xff == nt.PAGE_NOACCESS {
			return fmt.Errorf("access to %#x: %w", a, ntstatus.StatusAccessViolation)
		}
	}
	return nil
}

// virtualSize is the total size of all allocations.
func (as *addressSpace) virtualSize() uint64 {
	var n uint64
	as.regions.Ascend(func(r *region) bool {
		n += r.size
		return true
	})
	return n
}

// AllocateVirtualMemory implements host.Kernel.AllocateVirtualMemory.
func (h *Host) AllocateVirtualMemory(ctx context.Context, process nt.Handle, addr *uint64, zeroBits uint64, size *uint64, allocType, prot uint32) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	p, err := lookup[*Process](c, process)
	if err != nil {
		return err
	}
	base, n, err := p.vm.allocate(*addr, *size, zeroBits, allocType, prot, nt.MEM_PRIVATE)
	if err != nil {
		return err
	}
	*addr, *size = base, n
	return nil
}

// FreeVirtualMemory implements host.Kernel.FreeVirtualMemory.
func (h *Host) FreeVirtualMemory(ctx context.Context, process nt.Handle, addr, size *uint64, freeType uint32) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	p, err := lookup[*Process](c, process)
	if err != nil {
		return err
	}
	base, n, err := p.vm.free(*addr, *size, freeType)
	if err != nil {
		return err
	}
	*addr, *size = base, n
	return nil
}

// ProtectVirtualMemory implements host.Kernel.ProtectVirtualMemory.
func (h *Host) ProtectVirtualMemory(ctx context.Context, process nt.Handle, addr, size *uint64, prot uint32, old *uint32) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	p, err := lookup[*Process](c, process)
	if err != nil {
		return err
	}
	base, n, o, err := p.vm.protect(*addr, *size, prot)
	if err != nil {
		return err
	}
	*addr, *size, *old = base, n, o
	return nil
}

// QueryVirtualMemory implements host.Kernel.QueryVirtualMemory.
func (h *Host) QueryVirtualMemory(ctx context.Context, process nt.Handle, addr uint64, class uint32, buf hostarch.Buffer) (uint32, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	p, err := lookup[*Process](c, process)
	if err != nil {
		return 0, err
	}
	info, name, err := p.vm.query(addr)
	if err != nil {
		return 0, err
	}
	switch class {
	case nt.MemoryBasicInformation:
		return fillFixed(buf, &info)
	case nt.MemoryMappedFilenameInformation:
		if name == "" {
			return 0, fmt.Errorf("no file mapped at %#x: %w", addr, ntstatus.StatusInvalidAddress)
		}
		return fill(buf, unicodeStringAt(buf.Addr, name), ntstatus.StatusBufferOverflow)
	default:
		return 0, fmt.Errorf("memory information class %d: %w", class, ntstatus.StatusInvalidInfoClass)
	}
}

// unicodeStringAt returns a UNICODE_STRING placed at addr followed by the
// NUL-terminated characters of s.
func unicodeStringAt(addr hostarch.Addr, s string) []byte {
	chars := append(usermem.EncodeUTF16(s), 0, 0)
	us := nt.UnicodeString{
		Length:        uint16(len(chars) - 2),
		MaximumLength: uint16(len(chars)),
		Buffer:        uint64(addr) + uint64(nt.SizeOfUnicodeString),
	}
	return append(marshal(&us), chars...)
}

// copyBetween moves size bytes between two processes' memory after
// checking that the remote range is accessible.
func (h *Host) copyBetween(ctx context.Context, process nt.Handle, remote uint64, local hostarch.Addr, size uint64, write bool) (uint64, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	p, err := lookup[*Process](c, process)
	if err == nil {
		err = p.vm.accessible(remote, size)
	}
	h.mu.Unlock()
	if err != nil {
		return 0, err
	}
	data := make([]byte, size)
	src, srcAddr, dst, dstAddr := p.Mem, hostarch.Addr(remote), c.caller.Mem, local
	if write {
		src, srcAddr, dst, dstAddr = dst, dstAddr, src, srcAddr
	}
	if _, err := src.CopyIn(srcAddr, data); err != nil {
		return 0, err
	}
	n, err := dst.CopyOut(dstAddr, data)
	return uint64(n), err
}

// ReadVirtualMemory implements host.Kernel.ReadVirtualMemory.
func (h *Host) ReadVirtualMemory(ctx context.Context, process nt.Handle, addr uint64, buf hostarch.Addr, size uint64) (uint64, error) {
	return h.copyBetween(ctx, process, addr, buf, size, false)
}

// WriteVirtualMemory implements host.Kernel.WriteVirtualMemory.
func (h *Host) WriteVirtualMemory(ctx context.Context, process nt.Handle, addr uint64, buf hostarch.Addr, size uint64) (uint64, error) {
	return h.copyBetween(ctx, process, addr, buf, size, true)
}
