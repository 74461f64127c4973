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

package xproc

import (
	"sync/atomic"
	"unsafe"

	"gvisor.dev/compat32/pkg/hostarch"
)

func (l *List) word64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&l.mem[off:][:8][0]))
}

func (l *List) word32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&l.mem[off:][:4][0]))
}

func (l *List) load64(off int) uint64 {
	return atomic.LoadUint64(l.word64(off))
}

func (l *List) store64(off int, v uint64) {
	atomic.StoreUint64(l.word64(off), v)
}

func (l *List) cas64(off int, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(l.word64(off), old, new)
}

func (l *List) loadNext(idx uint32) uint32 {
	return atomic.LoadUint32(l.word32(entryOffset(idx) + entryNextOffset))
}

func (l *List) storeNext(idx, next uint32) {
	atomic.StoreUint32(l.word32(entryOffset(idx)+entryNextOffset), next)
}

// writeEntry fills the payload of an entry owned by the caller.
func (l *List) writeEntry(idx uint32, op Op, addr, size uint64, args []uint32) {
	e := l.mem[entryOffset(idx):][:EntrySize]
	hostarch.ByteOrder.PutUint32(e[entryIDOffset:], uint32(op))
	hostarch.ByteOrder.PutUint64(e[entryAddrOffset:], addr)
	hostarch.ByteOrder.PutUint64(e[entrySizeOffset:], size)
	for i := 0; i < MaxArgs; i++ {
		var v uint32
		if i < len(args) {
			v = args[i]
		}
		hostarch.ByteOrder.PutUint32(e[entryArgsOffset+4*i:], v)
	}
}

// readEntry copies out the payload of an entry owned by the caller.
func (l *List) readEntry(idx uint32) Entry {
	e := l.mem[entryOffset(idx):][:EntrySize]
	out := Entry{
		Op:   Op(hostarch.ByteOrder.Uint32(e[entryIDOffset:])),
		Addr: hostarch.ByteOrder.Uint64(e[entryAddrOffset:]),
		Size: hostarch.ByteOrder.Uint64(e[entrySizeOffset:]),
	}
	for i := range out.Args {
		out.Args[i] = hostarch.ByteOrder.Uint32(e[entryArgsOffset+4*i:])
	}
	return out
}
