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

// Package xproc implements the cross-process work list, a lock-free queue
// of memory notifications kept in a section shared between processes.
//
// A process that changes the memory of another guest process posts work
// entries to the target's list; the target drains its list before it next
// returns to guest code, and forwards each entry to its CPU backend.
//
// The section holds a 16-byte header followed by contiguous 40-byte
// entries:
//
//	header: free_head u64, work_head u64
//	entry:  id u32, next u32, addr u64, size u64, args [3]u32, pad u32
//
// Entries are linked by index; index 0 is the empty list and entry i lives
// at offset 16 + 40*(i-1). Each head packs the index of the first entry in
// bits 0-31 and a 31-bit modification tag in bits 32-62. The tag is bumped
// by every update so that a pop racing with a pop-push pair in another
// process fails its compare-and-swap. Bit 63 of the work head is the flush
// request, consumed together with the list.
package xproc

import (
	"fmt"
	"iter"
)

// Layout constants.
const (
	HeaderSize = 16
	EntrySize  = 40

	freeHeadOffset = 0
	workHeadOffset = 8

	entryIDOffset   = 0
	entryNextOffset = 4
	entryAddrOffset = 8
	entrySizeOffset = 16
	entryArgsOffset = 24

	indexMask = 1<<32 - 1
	tagMask   = 1<<31 - 1
	flushBit  = 1 << 63
)

// MaxArgs is the number of argument words in an entry.
const MaxArgs = 3

// Size returns the number of bytes needed for a list of n entries.
func Size(n int) int {
	return HeaderSize + n*EntrySize
}

func pack(index, tag uint32, flush bool) uint64 {
	h := uint64(index) | uint64(tag&tagMask)<<32
	if flush {
		h |= flushBit
	}
	return h
}

func unpack(h uint64) (index, tag uint32, flush bool) {
	return uint32(h & indexMask), uint32(h>>32) & tagMask, h&flushBit != 0
}

// Entry is one unit of work.
type Entry struct {
	Op   Op
	Addr uint64
	Size uint64
	Args [MaxArgs]uint32
}

// List is a work list laid out in a byte slice, typically a shared mapping.
// All methods are safe for concurrent use by any number of processes.
type List struct {
	mem []byte
	n   uint32
}

// Format lays out an empty list of n entries in buf, all of them free.
func Format(buf []byte, n int) (*List, error) {
	if n <= 0 || uint64(n) > 1<<31 {
		return nil, fmt.Errorf("invalid work list size %d", n)
	}
	if len(buf) < Size(n) {
		return nil, fmt.Errorf("buffer of %d bytes too small for %d entries", len(buf), n)
	}
	clear(buf[:Size(n)])
	l := &List{mem: buf[:Size(n)], n: uint32(n)}
	for i := uint32(1); i < l.n; i++ {
		l.storeNext(i, i+1)
	}
	l.store64(workHeadOffset, pack(0, 0, false))
	l.store64(freeHeadOffset, pack(1, 0, false))
	return l, nil
}

// NewList wraps a list previously laid out by Format.
func NewList(buf []byte) (*List, error) {
	if len(buf) < Size(1) {
		return nil, fmt.Errorf("buffer of %d bytes too small for a work list", len(buf))
	}
	n := (len(buf) - HeaderSize) / EntrySize
	l := &List{mem: buf[:Size(n)], n: uint32(n)}
	for _, off := range []int{freeHeadOffset, workHeadOffset} {
		if idx, _, _ := unpack(l.load64(off)); idx > l.n {
			return nil, fmt.Errorf("corrupt work list: head at %d names entry %d of %d", off, idx, l.n)
		}
	}
	return l, nil
}

// Len returns the number of entries in the list.
func (l *List) Len() int {
	return int(l.n)
}

func entryOffset(index uint32) int {
	return HeaderSize + int(index-1)*EntrySize
}

// pop removes the first entry of the free list, returning 0 if it is empty.
func (l *List) pop() uint32 {
	for {
		old := l.load64(freeHeadOffset)
		idx, tag, _ := unpack(old)
		if idx == 0 {
			return 0
		}
		next := l.loadNext(idx)
		if l.cas64(freeHeadOffset, old, pack(next, tag+1, false)) {
			return idx
		}
	}
}

// free pushes entry idx onto the free list.
func (l *List) free(idx uint32) {
	for {
		old := l.load64(freeHeadOffset)
		head, tag, _ := unpack(old)
		l.storeNext(idx, head)
		if l.cas64(freeHeadOffset, old, pack(idx, tag+1, false)) {
			return
		}
	}
}

// Send posts an entry. It returns false, dropping the entry, if no entry is
// free. At most MaxArgs arguments are recorded.
func (l *List) Send(op Op, addr, size uint64, args ...uint32) bool {
	if len(args) > MaxArgs {
		panic(fmt.Sprintf("%d work entry arguments", len(args)))
	}
	idx := l.pop()
	if idx == 0 {
		return false
	}
	l.writeEntry(idx, op, addr, size, args)
	for {
		old := l.load64(workHeadOffset)
		head, tag, flush := unpack(old)
		l.storeNext(idx, head)
		if l.cas64(workHeadOffset, old, pack(idx, tag+1, flush)) {
			return true
		}
	}
}

// RequestFlush asks the owner to flush its whole instruction cache on the
// next drain, discarding the pending entries.
func (l *List) RequestFlush() {
	for {
		old := l.load64(workHeadOffset)
		head, tag, _ := unpack(old)
		if l.cas64(workHeadOffset, old, pack(head, tag+1, true)) {
			return
		}
	}
}

// take atomically empties the work list and clears the flush request. It
// returns the taken entries in send order.
func (l *List) take() (entries []uint32, flush bool) {
	var head uint32
	for {
		old := l.load64(workHeadOffset)
		var tag uint32
		head, tag, flush = unpack(old)
		if head == 0 && !flush {
			return nil, false
		}
		if l.cas64(workHeadOffset, old, pack(0, tag+1, false)) {
			break
		}
	}
	for idx := head; idx != 0; idx = l.loadNext(idx) {
		if len(entries) >= int(l.n) {
			panic("work list cycle")
		}
		entries = append(entries, idx)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, flush
}

// Drain takes every pending entry and yields them in send order. If a flush
// was requested, the first entry yielded has Op OpFlushRequested. Each entry
// is returned to the free list as it is yielded; stopping early frees the
// rest without yielding them.
func (l *List) Drain() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		taken, flush := l.take()
		stopped := flush && !yield(Entry{Op: OpFlushRequested})
		for _, idx := range taken {
			e := l.readEntry(idx)
			l.free(idx)
			if !stopped && !yield(e) {
				stopped = true
			}
		}
	}
}

// Stats describes a list at one instant.
type Stats struct {
	Entries int
	Free    int
	Pending int
	Flush   bool
}

// Stats walks both lists. Concurrent updates may make the counts
// inconsistent with each other.
func (l *List) Stats() Stats {
	count := func(off int) (int, bool) {
		idx, _, flush := unpack(l.load64(off))
		n := 0
		for ; idx != 0 && n <= int(l.n); idx = l.loadNext(idx) {
			n++
		}
		return n, flush
	}
	free, _ := count(freeHeadOffset)
	pending, flush := count(workHeadOffset)
	return Stats{Entries: int(l.n), Free: free, Pending: pending, Flush: flush}
}
