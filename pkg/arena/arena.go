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

// Package arena provides the per-thread scratch allocator used to stage
// host-width copies of guest structures for the duration of one syscall.
//
// Every block is given a synthetic host address above the guest address
// limit, so host-width pointers into staged structures can never be mistaken
// for guest pointers and must be rebased before being written back.
package arena

import (
	"fmt"
	"sync/atomic"

	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

const (
	// Base is the lowest synthetic address handed out by any arena.
	Base hostarch.Addr = 0x7ff0_0000_0000

	// windowShift is the binary log of the address window reserved for each
	// arena.
	windowShift = 32

	// maxWindows bounds the number of distinct windows before addresses are
	// reused by newer arenas.
	maxWindows = 1 << 12

	// alignment is the alignment of every block address and size.
	alignment = 16

	// PoisonByte fills released blocks in debug mode.
	PoisonByte = 0xcc
)

var windows atomic.Uint32

type block struct {
	next *block
	buf  hostarch.Buffer
}

type detached struct {
	head   *block
	cursor hostarch.Addr
}

// Arena is a bulk-release allocator. It is not safe for concurrent use; each
// guest thread owns one.
//
// The zero value is not usable; use New.
type Arena struct {
	// head is the most recently allocated live block.
	head *block

	// window is the address range owned by this arena.
	window hostarch.AddrRange

	// cursor is the next synthetic address to hand out.
	cursor hostarch.Addr

	// live is the number of live blocks, including detached ones.
	live int

	// detached holds the chains hidden by Detach, innermost last.
	detached []detached

	// Debug enables poisoning of released blocks.
	Debug bool
}

// New returns an empty arena with its own address window.
func New() *Arena {
	id := windows.Add(1) % maxWindows
	start := Base + hostarch.Addr(id)<<windowShift
	return &Arena{
		window: hostarch.AddrRange{Start: start, End: start + 1<<windowShift},
		cursor: start,
	}
}

// Alloc returns a zeroed buffer of the given size. Sizes are rounded up to
// 16 bytes; the returned Data has exactly size bytes.
func (a *Arena) Alloc(size int) hostarch.Buffer {
	if size < 0 {
		panic(fmt.Sprintf("arena: negative allocation size %d", size))
	}
	rounded := (size + alignment - 1) &^ (alignment - 1)
	if uint64(a.cursor-a.window.Start)+uint64(rounded) > a.window.Length() {
		panic(fmt.Sprintf("arena: window %v exhausted", a.window))
	}
	b := &block{
		next: a.head,
		buf: hostarch.Buffer{
			Addr: a.cursor,
			Data: make([]byte, size, rounded),
		},
	}
	// Zero-length allocations still consume an address.
	if rounded == 0 {
		rounded = alignment
	}
	a.cursor += hostarch.Addr(rounded)
	a.head = b
	a.live++
	return b.buf
}

// Bytes is a convenience wrapper for Alloc(size).Data.
func (a *Arena) Bytes(size int) []byte {
	return a.Alloc(size).Data
}

// Len returns the number of live blocks.
func (a *Arena) Len() int {
	return a.live
}

// ReleaseAll releases every block allocated since the arena was created or
// since the last Detach.
func (a *Arena) ReleaseAll() {
	for b := a.head; b != nil; b = b.next {
		if a.Debug {
			data := b.buf.Data[:cap(b.buf.Data)]
			for i := range data {
				data[i] = PoisonByte
			}
		}
		a.live--
	}
	a.head = nil
	if n := len(a.detached); n > 0 {
		a.cursor = a.detached[n-1].cursor
	} else {
		a.cursor = a.window.Start
	}
}

// Saved identifies the state hidden by Detach.
type Saved struct {
	depth int
}

// Detach hides every live block from ReleaseAll. It is used before
// re-entering guest code, so that syscalls nested inside the re-entry
// release only what they allocated. Detached blocks stay readable and their
// addresses stay reserved.
func (a *Arena) Detach() Saved {
	a.detached = append(a.detached, detached{head: a.head, cursor: a.cursor})
	a.head = nil
	return Saved{depth: len(a.detached)}
}

// Restore releases every block allocated since the matching Detach and
// makes the detached blocks live again. Detach and Restore calls must nest.
func (a *Arena) Restore(s Saved) {
	if s.depth != len(a.detached) || s.depth == 0 {
		panic(fmt.Sprintf("arena: Restore at depth %d, have %d", s.depth, len(a.detached)))
	}
	a.ReleaseAll()
	d := a.detached[s.depth-1]
	a.detached = a.detached[:s.depth-1]
	a.head = d.head
	a.cursor = d.cursor
}

// Find returns the live block containing addr.
func (a *Arena) Find(addr hostarch.Addr) (hostarch.Buffer, bool) {
	if !a.window.Contains(addr) {
		return hostarch.Buffer{}, false
	}
	if buf, ok := find(a.head, addr); ok {
		return buf, true
	}
	for i := len(a.detached) - 1; i >= 0; i-- {
		if buf, ok := find(a.detached[i].head, addr); ok {
			return buf, true
		}
	}
	return hostarch.Buffer{}, false
}

func find(head *block, addr hostarch.Addr) (hostarch.Buffer, bool) {
	for b := head; b != nil; b = b.next {
		if b.buf.Range().Contains(addr) {
			return b.buf, true
		}
	}
	return hostarch.Buffer{}, false
}

// Owns returns true if addr lies in this arena's address window.
func (a *Arena) Owns(addr hostarch.Addr) bool {
	return a.window.Contains(addr)
}

func (a *Arena) rangeOf(addr hostarch.Addr, n int) ([]byte, error) {
	buf, ok := a.Find(addr)
	if !ok {
		return nil, fmt.Errorf("arena address %v: %w", addr, ntstatus.StatusAccessViolation)
	}
	off := int(addr - buf.Addr)
	if n > len(buf.Data)-off {
		return nil, fmt.Errorf("arena range %v+%d: %w", addr, n, ntstatus.StatusAccessViolation)
	}
	return buf.Data[off : off+n], nil
}

// CopyOut implements usermem.IO.CopyOut.
func (a *Arena) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	dst, err := a.rangeOf(addr, len(src))
	if err != nil {
		return 0, err
	}
	return copy(dst, src), nil
}

// CopyIn implements usermem.IO.CopyIn.
func (a *Arena) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	src, err := a.rangeOf(addr, len(dst))
	if err != nil {
		return 0, err
	}
	return copy(dst, src), nil
}

// ZeroOut implements usermem.IO.ZeroOut.
func (a *Arena) ZeroOut(addr hostarch.Addr, toZero int64) (int64, error) {
	if toZero == 0 {
		return 0, nil
	}
	dst, err := a.rangeOf(addr, int(toZero))
	if err != nil {
		return 0, err
	}
	clear(dst)
	return toZero, nil
}

// IO returns the host view of memory: addresses in the arena window are
// served from the arena and everything else from under.
func (a *Arena) IO(under usermem.IO) usermem.IO {
	return &layered{a: a, under: under}
}

type layered struct {
	a     *Arena
	under usermem.IO
}

// CopyOut implements usermem.IO.CopyOut.
func (l *layered) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	if l.a.Owns(addr) {
		return l.a.CopyOut(addr, src)
	}
	return l.under.CopyOut(addr, src)
}

// CopyIn implements usermem.IO.CopyIn.
func (l *layered) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	if l.a.Owns(addr) {
		return l.a.CopyIn(addr, dst)
	}
	return l.under.CopyIn(addr, dst)
}

// ZeroOut implements usermem.IO.ZeroOut.
func (l *layered) ZeroOut(addr hostarch.Addr, toZero int64) (int64, error) {
	if l.a.Owns(addr) {
		return l.a.ZeroOut(addr, toZero)
	}
	return l.under.ZeroOut(addr, toZero)
}
