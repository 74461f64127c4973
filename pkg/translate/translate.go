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

// Package translate converts kernel structures between their guest (narrow,
// 32-bit pointer) and host (wide, 64-bit pointer) layouts.
//
// Narrow structures live in guest memory and are addressed by uint32 guest
// pointers. Wide structures are staged in the calling thread's arena, whose
// addresses lie above the guest address limit. Conversions follow fixed
// rules:
//
//   - Narrow pointers are zero-extended. Handles and LONG_PTR values are
//     sign-extended.
//   - Wide pointers are range-checked before narrowing. A pointer that does
//     not fit fails with STATUS_INTEGER_OVERFLOW; it is never truncated.
//     Wide pointers into the staged buffer being converted are rebased onto
//     the corresponding narrow location.
//   - Variable-length payloads are sized independently for each layout and
//     copied, never reinterpreted in place.
//   - Buffer-size errors always report narrow sizes.
package translate

import (
	"fmt"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/arena"
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// Translator holds the memory views used by the conversions of one guest
// thread. It carries no conversion state of its own.
type Translator struct {
	// Guest is the guest address space.
	Guest usermem.IO

	// Arena stages wide structures.
	Arena *arena.Arena

	// host is the host view: Arena layered over Guest.
	host usermem.IO
}

// New returns a Translator over the given guest memory and arena.
func New(guest usermem.IO, a *arena.Arena) *Translator {
	return &Translator{
		Guest: guest,
		Arena: a,
		host:  a.IO(guest),
	}
}

// Host returns the host view of memory, in which both staged wide
// structures and guest memory are addressable.
func (t *Translator) Host() usermem.IO {
	return t.host
}

// Ptr zero-extends a guest pointer.
func Ptr(p uint32) uint64 {
	return uint64(p)
}

// Handle sign-extends a guest handle, so that pseudo-handles such as -1
// keep their meaning.
func Handle(h uint32) nt.Handle {
	return nt.Handle(int64(int32(h)))
}

// LongPtr sign-extends a LONG_PTR value.
func LongPtr(v uint32) int64 {
	return int64(int32(v))
}

// NarrowPtr converts a wide pointer to a guest pointer. It fails with
// STATUS_INTEGER_OVERFLOW if p is not addressable by the guest.
func NarrowPtr(p uint64) (uint32, error) {
	if !hostarch.Addr(p).FitsNarrow() {
		return 0, fmt.Errorf("pointer %#x out of guest range: %w", p, ntstatus.StatusIntegerOverflow)
	}
	return uint32(p), nil
}

// NarrowHandle converts a wide handle to a guest handle. Handles are
// sign-extended on the way in, so any value in the signed 32-bit range
// round-trips.
func NarrowHandle(h nt.Handle) (uint32, error) {
	v := int64(h)
	if v < -1<<31 || v > 1<<31-1 {
		return 0, fmt.Errorf("handle %#x out of guest range: %w", uint64(h), ntstatus.StatusIntegerOverflow)
	}
	return uint32(int32(v)), nil
}

// NarrowLongPtr converts a LONG_PTR value, failing if it does not fit.
func NarrowLongPtr(v int64) (uint32, error) {
	if v < -1<<31 || v > 1<<31-1 {
		return 0, fmt.Errorf("value %#x out of guest range: %w", v, ntstatus.StatusIntegerOverflow)
	}
	return uint32(int32(v)), nil
}

// NarrowULongPtr converts a ULONG_PTR value, failing if it does not fit.
func NarrowULongPtr(v uint64) (uint32, error) {
	if v > 0xffffffff {
		return 0, fmt.Errorf("value %#x out of guest range: %w", v, ntstatus.StatusIntegerOverflow)
	}
	return uint32(v), nil
}

// SaturateSize converts a SIZE_T statistic (not an address) to the guest
// width, clamping at the largest narrow value.
func SaturateSize(v uint64) uint32 {
	if v > 0xffffffff {
		return 0xffffffff
	}
	return uint32(v)
}

// Stage encodes the wide structure v into a new arena block and returns the
// block.
func (t *Translator) Stage(v any) hostarch.Buffer {
	buf := t.Arena.Alloc(binary.Size(v))
	binary.Marshal(buf.Data[:0], hostarch.ByteOrder, v)
	return buf
}

// StageBytes copies b into a new arena block.
func (t *Translator) StageBytes(b []byte) hostarch.Buffer {
	buf := t.Arena.Alloc(len(b))
	copy(buf.Data, b)
	return buf
}

// CopyToWide stages n bytes of guest memory at addr. A zero length is a
// no-op success: no guest memory is touched, even through a null pointer,
// and the empty Buffer is returned.
func (t *Translator) CopyToWide(addr uint32, n uint32) (hostarch.Buffer, error) {
	if n == 0 {
		return hostarch.Buffer{}, nil
	}
	buf := t.Arena.Alloc(int(n))
	if _, err := t.Guest.CopyIn(hostarch.Addr(addr), buf.Data); err != nil {
		return hostarch.Buffer{}, err
	}
	return buf, nil
}

// CopyIn reads a narrow structure from guest memory.
func (t *Translator) CopyIn(addr uint32, v any) error {
	if addr == 0 {
		return fmt.Errorf("null %T: %w", v, ntstatus.StatusAccessViolation)
	}
	_, err := usermem.CopyObjectIn(t.Guest, hostarch.Addr(addr), v)
	return err
}

// CopyOut writes a narrow structure to guest memory.
func (t *Translator) CopyOut(addr uint32, v any) error {
	if addr == 0 {
		return fmt.Errorf("null %T: %w", v, ntstatus.StatusAccessViolation)
	}
	_, err := usermem.CopyObjectOut(t.Guest, hostarch.Addr(addr), v)
	return err
}

// ReadWide decodes a staged wide structure at addr.
func (t *Translator) ReadWide(addr hostarch.Addr, v any) error {
	_, err := usermem.CopyObjectIn(t.host, addr, v)
	return err
}

// rebaser maps wide pointers found in a staged wide image onto the narrow
// image built from it. The wide image is header wideHdr bytes followed by a
// payload; the narrow image is narrowHdr bytes followed by the same payload.
type rebaser struct {
	wide      hostarch.Buffer
	wideHdr   int
	narrowHdr int
	base      uint32
}

// ptr narrows the wide pointer p.
func (r *rebaser) ptr(p uint64) (uint32, error) {
	if p == 0 {
		return 0, nil
	}
	off, ok := r.wide.Offset(hostarch.Addr(p))
	if !ok {
		return NarrowPtr(p)
	}
	if off < r.wideHdr {
		return 0, fmt.Errorf("pointer %#x into structure header: %w", p, ntstatus.StatusInvalidParameter)
	}
	n := uint64(r.base) + uint64(r.narrowHdr) + uint64(off-r.wideHdr)
	return NarrowPtr(n)
}

// image returns the narrow image: the encoded narrow header followed by the
// wide payload.
func (r *rebaser) image(hdr []byte) []byte {
	if len(hdr) != r.narrowHdr {
		panic(fmt.Sprintf("narrow header is %d bytes, want %d", len(hdr), r.narrowHdr))
	}
	img := make([]byte, 0, len(hdr)+len(r.wide.Data)-r.wideHdr)
	img = append(img, hdr...)
	return append(img, r.wide.Data[r.wideHdr:]...)
}

// encode returns the packed encoding of the values in vs.
func encode(vs ...any) []byte {
	var b []byte
	for _, v := range vs {
		b = binary.Marshal(b, hostarch.ByteOrder, v)
	}
	return b
}
