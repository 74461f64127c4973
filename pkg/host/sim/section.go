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

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
)

// section is a section object.
type section struct {
	objectBase
	size  uint64
	prot  uint32
	image bool
	file  *file
}

func (*section) kind() string { return "Section" }

// CreateSection implements host.Kernel.CreateSection.
func (h *Host) CreateSection(ctx context.Context, access uint32, attrs hostarch.Addr, maxSize *int64, prot, allocAttrs uint32, backing nt.Handle) (nt.Handle, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	if !nt.PageProtectionIsValid(prot) {
		return 0, fmt.Errorf("section protection %#x: %w", prot, ntstatus.StatusInvalidPageProtection)
	}
	s := &section{objectBase: defaultSecurity(), prot: prot, image: allocAttrs&nt.SEC_IMAGE != 0}
	if maxSize != nil {
		s.size = uint64(*maxSize)
	}
	if backing != 0 {
		fh, err := lookup[*fileHandle](c, backing)
		if err != nil {
			return 0, err
		}
		s.file = fh.node
		if s.size == 0 {
			s.size = uint64(len(fh.node.data))
		}
	}
	if s.size == 0 {
		return 0, fmt.Errorf("section of unknown size: %w", ntstatus.StatusInvalidParameter)
	}
	if err := objectSecurity(c.caller.Mem, attrs, s); err != nil {
		return 0, err
	}
	if maxSize != nil {
		*maxSize = int64(s.size)
	}
	return c.process.insert(s), nil
}

// MapViewOfSection implements host.Kernel.MapViewOfSection.
func (h *Host) MapViewOfSection(ctx context.Context, sectionHandle, process nt.Handle, addr *uint64, zeroBits, commit uint64, offset *int64, viewSize *uint64, inherit, allocType, prot uint32) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	s, err := lookup[*section](c, sectionHandle)
	if err != nil {
		return err
	}
	p, err := lookup[*Process](c, process)
	if err != nil {
		return err
	}
	var off uint64
	if offset != nil {
		off = uint64(*offset)
	}
	if off >= s.size {
		return fmt.Errorf("view offset %#x of %#x-byte section: %w", off, s.size, ntstatus.StatusInvalidViewSize)
	}
	size := *viewSize
	if size == 0 {
		size = s.size - off
	}
	if off+size > s.size {
		return fmt.Errorf("view of %#x bytes at %#x: %w", size, off, ntstatus.StatusInvalidViewSize)
	}
	typ := uint32(nt.MEM_MAPPED)
	if s.image {
		typ = nt.MEM_IMAGE
	}
	base, n, err := p.vm.allocate(*addr, size, zeroBits, nt.MEM_RESERVE|nt.MEM_COMMIT, prot, typ)
	if err != nil {
		return err
	}
	if r, ok := p.vm.find(base); ok && s.file != nil {
		r.name = s.file.name
		if p.Mem != nil {
			end := min(uint64(len(s.file.data)), off+n)
			if off < end {
				if _, err := p.Mem.CopyOut(hostarch.Addr(base), s.file.data[off:end]); err != nil {
					return err
				}
			}
		}
	}
	*addr, *viewSize = base, n
	return nil
}

// UnmapViewOfSection implements host.Kernel.UnmapViewOfSection.
func (h *Host) UnmapViewOfSection(ctx context.Context, process nt.Handle, addr uint64) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	p, err := lookup[*Process](c, process)
	if err != nil {
		return err
	}
	r, ok := p.vm.find(addr)
	if !ok || r.typ == nt.MEM_PRIVATE {
		return fmt.Errorf("no view at %#x: %w", addr, ntstatus.StatusInvalidParameter)
	}
	p.vm.regions.Delete(r)
	return nil
}
