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
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/hostarch"
)

func slots(vs ...uint32) []byte {
	var b []byte
	for _, v := range vs {
		b = binary.AppendUint32(b, hostarch.ByteOrder, v)
	}
	return b
}

func TestArgs(t *testing.T) {
	a := newArgs("NtTest", slots(0xffffffff, 0xfffffffe, 0x80000000, 0x1, 0x2, 0x101, 0xffffffff), 4, 7)
	if got := a.Handle(); got != nt.CurrentProcess {
		t.Errorf("Handle = %#x, want %#x", uint64(got), uint64(nt.CurrentProcess))
	}
	if got := a.LongPtr(); got != -2 {
		t.Errorf("LongPtr = %d, want -2", got)
	}
	if got := a.ULongPtr(); got != 0x80000000 {
		t.Errorf("ULongPtr = %#x, want 0x80000000", got)
	}
	if got := a.Uint64Pair(); got != 0x200000001 {
		t.Errorf("Uint64Pair = %#x, want 0x200000001", got)
	}
	if got := a.Bool(); !got {
		t.Errorf("Bool of 0x101 = false, want true")
	}
	if got := a.Int32(); got != -1 {
		t.Errorf("Int32 = %d, want -1", got)
	}
	want := []uint64{0xffffffff, 0xfffffffe, 0x80000000, 0x1, 0x2, 0x101, 0xffffffff}
	if diff := cmp.Diff(want, a.Slots()); diff != "" {
		t.Errorf("Slots mismatch (-want +got):\n%s", diff)
	}
}

func TestArgsBool(t *testing.T) {
	for _, tc := range []struct {
		slot uint32
		want bool
	}{
		{0, false},
		{1, true},
		{0x100, false},
		{0xff, true},
	} {
		if got := newArgs("NtTest", slots(tc.slot), 4, 1).Bool(); got != tc.want {
			t.Errorf("Bool(%#x) = %t, want %t", tc.slot, got, tc.want)
		}
	}
}

func TestArgsOverrun(t *testing.T) {
	a := newArgs("NtTest", slots(1, 2), 4, 1)
	a.Uint32()
	defer func() {
		if recover() == nil {
			t.Errorf("popping past the declared count did not panic")
		}
	}()
	a.Uint32()
}

func TestArgsShortBlock(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("newArgs with a short block did not panic")
		}
	}()
	newArgs("NtTest", slots(1), 4, 2)
}
