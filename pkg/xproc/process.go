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
	"fmt"

	"gvisor.dev/compat32/pkg/cpu"
	"gvisor.dev/compat32/pkg/log"
	"gvisor.dev/compat32/pkg/ntstatus"
)

// Op identifies the kind of a work entry.
type Op uint32

// Work entry ids. The argument words of each are listed alongside.
const (
	OpPreVirtualAlloc    Op = iota // type, prot
	OpPostVirtualAlloc             // type, prot, status
	OpPreVirtualFree               // type
	OpPostVirtualFree              // type, status
	OpPreVirtualProtect            // prot
	OpPostVirtualProtect           // prot, status
	OpFlushCache
	OpFlushCacheHeavy
	OpMemoryWrite

	// OpFlushRequested is never stored in the section. Drain yields it
	// when the flush bit was set.
	OpFlushRequested Op = 0xffffffff
)

var opNames = map[Op]string{
	OpPreVirtualAlloc:    "PreVirtualAlloc",
	OpPostVirtualAlloc:   "PostVirtualAlloc",
	OpPreVirtualFree:     "PreVirtualFree",
	OpPostVirtualFree:    "PostVirtualFree",
	OpPreVirtualProtect:  "PreVirtualProtect",
	OpPostVirtualProtect: "PostVirtualProtect",
	OpFlushCache:         "FlushCache",
	OpFlushCacheHeavy:    "FlushCacheHeavy",
	OpMemoryWrite:        "MemoryWrite",
	OpFlushRequested:     "FlushRequested",
}

// String implements fmt.Stringer.String.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", uint32(o))
}

// ParseOp returns the Op named s.
func ParseOp(s string) (Op, error) {
	for o, name := range opNames {
		if name == s && o != OpFlushRequested {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown work entry op %q", s)
}

// String implements fmt.Stringer.String.
func (e Entry) String() string {
	return fmt.Sprintf("%v addr=%#x size=%#x args=%#x", e.Op, e.Addr, e.Size, e.Args)
}

// Process drains l and forwards each entry to b's notification hooks.
// Entries whose hook b does not implement are discarded. If a flush was
// requested, b's whole instruction cache is flushed once and the pending
// entries are freed unprocessed. It returns the number of entries taken.
func (l *List) Process(b cpu.Backend) int {
	flusher, _ := b.(cpu.CacheFlusher)
	notifier, _ := b.(cpu.Notifier)
	n := 0
	flushed := false
	for e := range l.Drain() {
		if e.Op == OpFlushRequested {
			if flusher != nil {
				flusher.FlushInstructionCacheHeavy(0, 0)
			}
			flushed = true
			continue
		}
		n++
		if flushed {
			continue
		}
		dispatch(e, flusher, notifier)
	}
	return n
}

func dispatch(e Entry, flusher cpu.CacheFlusher, notifier cpu.Notifier) {
	switch e.Op {
	case OpFlushCache, OpFlushCacheHeavy:
		if flusher == nil {
			return
		}
		if e.Op == OpFlushCache {
			flusher.FlushInstructionCache(e.Addr, e.Size)
		} else {
			flusher.FlushInstructionCacheHeavy(e.Addr, e.Size)
		}
		return
	}
	if notifier == nil {
		return
	}
	switch e.Op {
	case OpPreVirtualAlloc:
		notifier.NotifyMemoryAlloc(e.Addr, e.Size, e.Args[0], e.Args[1], false, 0)
	case OpPostVirtualAlloc:
		notifier.NotifyMemoryAlloc(e.Addr, e.Size, e.Args[0], e.Args[1], true, ntstatus.Status(e.Args[2]))
	case OpPreVirtualFree:
		notifier.NotifyMemoryFree(e.Addr, e.Size, e.Args[0], false, 0)
	case OpPostVirtualFree:
		notifier.NotifyMemoryFree(e.Addr, e.Size, e.Args[0], true, ntstatus.Status(e.Args[1]))
	case OpPreVirtualProtect:
		notifier.NotifyMemoryProtect(e.Addr, e.Size, e.Args[0], false, 0)
	case OpPostVirtualProtect:
		notifier.NotifyMemoryProtect(e.Addr, e.Size, e.Args[0], true, ntstatus.Status(e.Args[1]))
	case OpMemoryWrite:
		notifier.NotifyMemoryDirty(e.Addr, e.Size)
	default:
		log.Warningf("Discarding work entry with unknown op: %v", e)
	}
}
