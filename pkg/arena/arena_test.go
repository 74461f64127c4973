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

package arena

import (
	"bytes"
	"errors"
	"testing"

	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

func TestAllocAddresses(t *testing.T) {
	a := New()
	b1 := a.Alloc(3)
	b2 := a.Alloc(40)
	if b1.Addr.FitsNarrow() || b2.Addr.FitsNarrow() {
		t.Fatalf("arena addresses %v, %v fit in a guest pointer", b1.Addr, b2.Addr)
	}
	if b1.Addr%16 != 0 || b2.Addr%16 != 0 {
		t.Errorf("addresses not aligned: %v %v", b1.Addr, b2.Addr)
	}
	if b1.Range().Overlaps(b2.Range()) {
		t.Errorf("blocks overlap: %v %v", b1.Range(), b2.Range())
	}
	if len(b1.Data) != 3 || len(b2.Data) != 40 {
		t.Errorf("lengths %d %d", len(b1.Data), len(b2.Data))
	}
	if a.Len() != 2 {
		t.Errorf("Len = %d, want 2", a.Len())
	}
}

func TestReleaseAllPoisons(t *testing.T) {
	a := New()
	a.Debug = true
	b := a.Alloc(8)
	copy(b.Data, "payload!")
	a.ReleaseAll()
	if a.Len() != 0 {
		t.Errorf("Len after ReleaseAll = %d", a.Len())
	}
	if !bytes.Equal(b.Data, bytes.Repeat([]byte{PoisonByte}, 8)) {
		t.Errorf("released block not poisoned: % x", b.Data)
	}
	if _, ok := a.Find(b.Addr); ok {
		t.Errorf("released block still found")
	}
	// Addresses are reused after a full release.
	if b2 := a.Alloc(8); b2.Addr != b.Addr {
		t.Errorf("address after release = %v, want %v", b2.Addr, b.Addr)
	}
}

func TestDetachRestore(t *testing.T) {
	a := New()
	outer := a.Alloc(16)
	copy(outer.Data, "outer")

	saved := a.Detach()
	inner := a.Alloc(16)
	if inner.Range().Overlaps(outer.Range()) {
		t.Fatalf("nested allocation overlaps detached block")
	}
	if _, ok := a.Find(outer.Addr); !ok {
		t.Errorf("detached block not readable")
	}
	// A nested syscall releases only its own blocks.
	a.ReleaseAll()
	if a.Len() != 1 {
		t.Errorf("Len after nested release = %d, want 1", a.Len())
	}
	if string(outer.Data[:5]) != "outer" {
		t.Errorf("outer block clobbered: %q", outer.Data)
	}

	a.Restore(saved)
	if buf, ok := a.Find(outer.Addr); !ok || buf.Addr != outer.Addr {
		t.Errorf("outer block lost after Restore")
	}
	a.ReleaseAll()
	if a.Len() != 0 {
		t.Errorf("Len = %d, want 0", a.Len())
	}
}

func TestRestoreMismatchPanics(t *testing.T) {
	a := New()
	s := a.Detach()
	a.Detach()
	defer func() {
		if recover() == nil {
			t.Errorf("Restore out of order did not panic")
		}
	}()
	a.Restore(s)
}

func TestLayeredIO(t *testing.T) {
	a := New()
	guest := &usermem.BytesIO{Base: 0x10000, Bytes: make([]byte, 64)}
	mem := a.IO(guest)

	b := a.Alloc(16)
	if err := usermem.CopyUint64Out(mem, b.Addr+8, 0x1122334455667788); err != nil {
		t.Fatalf("CopyOut to arena: %v", err)
	}
	if got := hostarch.ByteOrder.Uint64(b.Data[8:]); got != 0x1122334455667788 {
		t.Errorf("arena data = %#x", got)
	}
	if err := usermem.CopyUint32Out(mem, 0x10004, 7); err != nil {
		t.Fatalf("CopyOut to guest: %v", err)
	}
	if guest.Bytes[4] != 7 {
		t.Errorf("guest write not routed")
	}
	if _, err := usermem.CopyUint64In(mem, b.Addr+12); !errors.Is(err, ntstatus.StatusAccessViolation) {
		t.Errorf("read past block end: got %v", err)
	}
}

func TestWindowsDistinct(t *testing.T) {
	a, b := New(), New()
	if a.Owns(b.Alloc(1).Addr) {
		t.Errorf("arenas share a window")
	}
}
