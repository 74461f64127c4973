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
	"gvisor.dev/compat32/pkg/translate"
)

// Args is a cursor over the flat argument block of one system call.
//
// Each accessor pops the next slot. Slots are the guest pointer width;
// narrow integers are read from a whole slot and truncated. Popping more
// slots than the syscall declares is a thunk bug and panics.
type Args struct {
	name  string
	data  []byte
	width int
	count int
	next  int
}

// newArgs returns a cursor over data, which holds count slots of width
// bytes.
func newArgs(name string, data []byte, width, count int) *Args {
	if len(data) < width*count {
		panic(fmt.Sprintf("%s: %d argument bytes for %d slots", name, len(data), count))
	}
	return &Args{name: name, data: data, width: width, count: count}
}

// slot pops the next raw slot.
func (a *Args) slot() uint64 {
	if a.next >= a.count {
		panic(fmt.Sprintf("%s: popping argument %d of %d", a.name, a.next+1, a.count))
	}
	off := a.next * a.width
	a.next++
	if a.width == 8 {
		return hostarch.ByteOrder.Uint64(a.data[off:])
	}
	return uint64(hostarch.ByteOrder.Uint32(a.data[off:]))
}

// Uint32 pops a ULONG.
func (a *Args) Uint32() uint32 {
	return uint32(a.slot())
}

// Int32 pops a LONG.
func (a *Args) Int32() int32 {
	return int32(a.slot())
}

// Bool pops a BOOLEAN.
func (a *Args) Bool() bool {
	return uint8(a.slot()) != 0
}

// Uint64 pops one slot, zero-extended.
func (a *Args) Uint64() uint64 {
	return a.slot()
}

// Pointer pops a guest pointer.
func (a *Args) Pointer() uint32 {
	return uint32(a.slot())
}

// Handle pops a handle, sign-extended so that pseudo-handles keep their
// meaning.
func (a *Args) Handle() nt.Handle {
	return translate.Handle(uint32(a.slot()))
}

// ULongPtr pops a ULONG_PTR, zero-extended.
func (a *Args) ULongPtr() uint64 {
	return uint64(uint32(a.slot()))
}

// LongPtr pops a LONG_PTR, sign-extended.
func (a *Args) LongPtr() int64 {
	return translate.LongPtr(uint32(a.slot()))
}

// Uint64Pair pops a 64-bit value passed as two slots, low half first.
func (a *Args) Uint64Pair() uint64 {
	lo := a.Uint32()
	hi := a.Uint32()
	return uint64(hi)<<32 | uint64(lo)
}

// Slots returns every declared slot, for tracing.
func (a *Args) Slots() []uint64 {
	s := make([]uint64, a.count)
	for i := range s {
		off := i * a.width
		if a.width == 8 {
			s[i] = hostarch.ByteOrder.Uint64(a.data[off:])
		} else {
			s[i] = uint64(hostarch.ByteOrder.Uint32(a.data[off:]))
		}
	}
	return s
}
