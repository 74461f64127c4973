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

package translate

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/arena"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

const guestBase = 0x10000

var (
	systemSID = []byte{1, 1, 0, 0, 0, 0, 0, 5, 18, 0, 0, 0}
	adminsSID = []byte{1, 2, 0, 0, 0, 0, 0, 5, 32, 0, 0, 0, 32, 2, 0, 0}
	emptyACL  = []byte{2, 0, 8, 0, 0, 0, 0, 0}
)

func newTestTranslator() (*Translator, *usermem.BytesIO) {
	guest := &usermem.BytesIO{Base: guestBase, Bytes: make([]byte, 0x10000)}
	return New(guest, arena.New()), guest
}

func write(t *testing.T, mem usermem.IO, addr uint32, v any) {
	t.Helper()
	if _, err := usermem.CopyObjectOut(mem, hostarch.Addr(addr), v); err != nil {
		t.Fatalf("CopyObjectOut(%#x, %T) failed: %v", addr, v, err)
	}
}

func read(t *testing.T, mem usermem.IO, addr uint32, v any) {
	t.Helper()
	if _, err := usermem.CopyObjectIn(mem, hostarch.Addr(addr), v); err != nil {
		t.Fatalf("CopyObjectIn(%#x, %T) failed: %v", addr, v, err)
	}
}

func TestHandleSignExtension(t *testing.T) {
	for _, tc := range []struct {
		narrow uint32
		wide   nt.Handle
	}{
		{narrow: 0xffffffff, wide: nt.CurrentProcess},
		{narrow: 0xfffffffe, wide: nt.CurrentThread},
		{narrow: 0x24, wide: 0x24},
		{narrow: 0, wide: 0},
	} {
		if got := Handle(tc.narrow); got != tc.wide {
			t.Errorf("Handle(%#x) = %#x, want %#x", tc.narrow, got, tc.wide)
		}
		back, err := NarrowHandle(tc.wide)
		if err != nil || back != tc.narrow {
			t.Errorf("NarrowHandle(%#x) = %#x, %v, want %#x", tc.wide, back, err, tc.narrow)
		}
	}
	if _, err := NarrowHandle(0x1_0000_0000); !errors.Is(err, ntstatus.StatusIntegerOverflow) {
		t.Errorf("NarrowHandle(1<<32) = %v, want %v", err, ntstatus.StatusIntegerOverflow)
	}
}

func TestNarrowPtr(t *testing.T) {
	for _, tc := range []struct {
		wide uint64
		ok   bool
	}{
		{wide: 0, ok: true},
		{wide: 0x7ffeffff, ok: true},
		{wide: 0xffffffff, ok: true},
		{wide: 0x1_0000_0000, ok: false},
		{wide: uint64(arena.Base), ok: false},
	} {
		got, err := NarrowPtr(tc.wide)
		if tc.ok {
			if err != nil || uint64(got) != tc.wide {
				t.Errorf("NarrowPtr(%#x) = %#x, %v", tc.wide, got, err)
			}
		} else if !errors.Is(err, ntstatus.StatusIntegerOverflow) {
			t.Errorf("NarrowPtr(%#x) = %#x, %v, want %v", tc.wide, got, err, ntstatus.StatusIntegerOverflow)
		}
	}
	if got := SaturateSize(0x2_0000_0000); got != 0xffffffff {
		t.Errorf("SaturateSize(0x2_0000_0000) = %#x", got)
	}
}

func TestCopyToWideZeroLength(t *testing.T) {
	tr, _ := newTestTranslator()
	buf, err := tr.CopyToWide(0, 0)
	if err != nil || buf.Len() != 0 {
		t.Errorf("CopyToWide(0, 0) = %v, %v, want empty buffer", buf, err)
	}
	if tr.Arena.Len() != 0 {
		t.Errorf("CopyToWide(0, 0) allocated %d blocks", tr.Arena.Len())
	}
	if _, err := tr.CopyToWide(0, 4); !errors.Is(err, ntstatus.StatusAccessViolation) {
		t.Errorf("CopyToWide(0, 4) = %v, want %v", err, ntstatus.StatusAccessViolation)
	}
}

func TestUnicodeStringToWide(t *testing.T) {
	tr, guest := newTestTranslator()
	chars := usermem.EncodeUTF16(`\??\C:\windows`)
	write(t, guest, guestBase+0x100, chars)
	write(t, guest, guestBase, &nt32.UnicodeString{Length: uint16(len(chars)), MaximumLength: uint16(len(chars) + 2), Buffer: guestBase + 0x100})

	addr, err := tr.UnicodeStringToWide(guestBase)
	if err != nil {
		t.Fatalf("UnicodeStringToWide failed: %v", err)
	}
	if !tr.Arena.Owns(addr) {
		t.Errorf("wide string %v not staged in the arena", addr)
	}
	got, err := ReadUnicodeString(tr.Host(), addr)
	if err != nil || got != `\??\C:\windows` {
		t.Errorf("ReadUnicodeString = %q, %v", got, err)
	}

	var w nt.UnicodeString
	if err := tr.ReadWide(addr, &w); err != nil {
		t.Fatalf("ReadWide failed: %v", err)
	}
	n, err := UnicodeString32(w)
	if err != nil {
		t.Fatalf("UnicodeString32 failed: %v", err)
	}
	want := nt32.UnicodeString{Length: uint16(len(chars)), MaximumLength: uint16(len(chars) + 2), Buffer: guestBase + 0x100}
	if diff := cmp.Diff(want, n); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	write(t, guest, guestBase, &nt32.UnicodeString{Length: 3, MaximumLength: 4, Buffer: guestBase + 0x100})
	if _, err := tr.UnicodeStringToWide(guestBase); !errors.Is(err, ntstatus.StatusInvalidParameter) {
		t.Errorf("odd length: got %v, want %v", err, ntstatus.StatusInvalidParameter)
	}
}

func TestObjectAttributesToWide(t *testing.T) {
	tr, guest := newTestTranslator()
	chars := usermem.EncodeUTF16(`\BaseNamedObjects\ev`)
	write(t, guest, guestBase+0x100, chars)
	write(t, guest, guestBase+0x40, &nt32.UnicodeString{Length: uint16(len(chars)), MaximumLength: uint16(len(chars)), Buffer: guestBase + 0x100})
	write(t, guest, guestBase+0x300, systemSID)
	write(t, guest, guestBase+0x320, emptyACL)
	write(t, guest, guestBase+0x200, &nt32.SecurityDescriptor{
		Revision: nt.SECURITY_DESCRIPTOR_REVISION,
		Control:  nt.SE_DACL_PRESENT,
		Owner:    guestBase + 0x300,
		Dacl:     guestBase + 0x320,
	})
	write(t, guest, guestBase, &nt32.ObjectAttributes{
		Length:             uint32(nt32.SizeOfObjectAttributes),
		RootDirectory:      0xffffffff,
		ObjectName:         guestBase + 0x40,
		Attributes:         nt.OBJ_CASE_INSENSITIVE,
		SecurityDescriptor: guestBase + 0x200,
	})

	addr, err := tr.ObjectAttributesToWide(guestBase)
	if err != nil {
		t.Fatalf("ObjectAttributesToWide failed: %v", err)
	}
	var w nt.ObjectAttributes
	if err := tr.ReadWide(addr, &w); err != nil {
		t.Fatalf("ReadWide failed: %v", err)
	}
	if w.Length != uint32(nt.SizeOfObjectAttributes) {
		t.Errorf("Length = %d, want %d", w.Length, nt.SizeOfObjectAttributes)
	}
	if nt.Handle(w.RootDirectory) != nt.CurrentProcess {
		t.Errorf("RootDirectory = %#x, want sign-extended", w.RootDirectory)
	}
	if w.Attributes != nt.OBJ_CASE_INSENSITIVE {
		t.Errorf("Attributes = %#x", w.Attributes)
	}
	name, err := ReadUnicodeString(tr.Host(), hostarch.Addr(w.ObjectName))
	if err != nil || name != `\BaseNamedObjects\ev` {
		t.Errorf("ObjectName = %q, %v", name, err)
	}
	control, owner, group, _, dacl, err := SecurityDescriptorComponents(tr.Host(), hostarch.Addr(w.SecurityDescriptor))
	if err != nil {
		t.Fatalf("SecurityDescriptorComponents failed: %v", err)
	}
	if control != nt.SE_DACL_PRESENT || group != nil {
		t.Errorf("control = %#x, group = %v", control, group)
	}
	if diff := cmp.Diff(systemSID, owner); diff != "" {
		t.Errorf("owner mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(emptyACL, dacl); diff != "" {
		t.Errorf("dacl mismatch (-want +got):\n%s", diff)
	}

	// The narrow image of the staged descriptor has the same components.
	wide, ok := tr.Arena.Find(hostarch.Addr(w.SecurityDescriptor))
	if !ok {
		t.Fatalf("staged descriptor not found")
	}
	img, err := SecurityDescriptorImage(wide, guestBase+0x800)
	if err != nil {
		t.Fatalf("SecurityDescriptorImage failed: %v", err)
	}
	if got, want := len(img), wide.Len()-SecurityDescriptorHeaderDelta; got != want {
		t.Errorf("narrow image is %d bytes, want %d", got, want)
	}
	write(t, guest, guestBase+0x800, img)
	_, owner2, _, _, dacl2, err := NarrowSecurityDescriptorComponents(guest, guestBase+0x800)
	if err != nil {
		t.Fatalf("SecurityDescriptorComponents(narrow) failed: %v", err)
	}
	if !cmp.Equal(owner, owner2) || !cmp.Equal(dacl, dacl2) {
		t.Errorf("narrow components = %v, %v, want %v, %v", owner2, dacl2, owner, dacl)
	}
}

func TestObjectAttributesBadLength(t *testing.T) {
	tr, guest := newTestTranslator()
	write(t, guest, guestBase, &nt32.ObjectAttributes{Length: 48})
	if _, err := tr.ObjectAttributesToWide(guestBase); !errors.Is(err, ntstatus.StatusInvalidParameter) {
		t.Errorf("got %v, want %v", err, ntstatus.StatusInvalidParameter)
	}
	if addr, err := tr.ObjectAttributesToWide(0); addr != 0 || err != nil {
		t.Errorf("null attributes = %v, %v, want 0, nil", addr, err)
	}
}

func TestSelfRelativeSecurityDescriptor(t *testing.T) {
	tr, guest := newTestTranslator()
	hdr := nt.SecurityDescriptorRelative{
		Revision: nt.SECURITY_DESCRIPTOR_REVISION,
		Control:  nt.SE_SELF_RELATIVE | nt.SE_DACL_PRESENT,
		Owner:    20,
		Dacl:     32,
	}
	write(t, guest, guestBase, &hdr)
	write(t, guest, guestBase+20, systemSID)
	write(t, guest, guestBase+32, emptyACL)

	addr, err := tr.SecurityDescriptorToWide(guestBase)
	if err != nil {
		t.Fatalf("SecurityDescriptorToWide failed: %v", err)
	}
	wide, _ := tr.Arena.Find(addr)
	want, _ := usermem.CopyBytesIn(guest, guestBase, 40)
	if diff := cmp.Diff(want, wide.Data); diff != "" {
		t.Errorf("self-relative copy mismatch (-want +got):\n%s", diff)
	}
}

func TestTimeoutAndScalars(t *testing.T) {
	tr, guest := newTestTranslator()
	to, err := tr.ReadTimeout(0)
	if err != nil || !to.Infinite {
		t.Errorf("ReadTimeout(0) = %+v, %v, want infinite", to, err)
	}
	v := int64(-10_000_000)
	write(t, guest, guestBase, &v)
	if to, err := tr.ReadTimeout(guestBase); err != nil || to.Infinite || to.Value != v {
		t.Errorf("ReadTimeout = %+v, %v, want %d", to, err, v)
	}
	if err := tr.WriteHandle(guestBase+8, nt.CurrentThread); err != nil {
		t.Fatalf("WriteHandle failed: %v", err)
	}
	if h, _ := tr.ReadULong(guestBase + 8); h != 0xfffffffe {
		t.Errorf("WriteHandle stored %#x", h)
	}
	if err := tr.WritePtr(guestBase+12, 0x1_0000_0000); !errors.Is(err, ntstatus.StatusIntegerOverflow) {
		t.Errorf("WritePtr overflow = %v", err)
	}
	if err := tr.WriteULong(0, 1); err != nil {
		t.Errorf("WriteULong(0) = %v, want nil", err)
	}
}

func TestIOStatusBlockToNarrow(t *testing.T) {
	tr, guest := newTestTranslator()
	wide := tr.Stage(&nt.IOStatusBlock{Status: uint32(ntstatus.StatusPending), Information: 0x1234})
	if err := tr.IOStatusBlockToNarrow(wide.Addr, guestBase); err != nil {
		t.Fatalf("IOStatusBlockToNarrow failed: %v", err)
	}
	var got nt32.IOStatusBlock
	read(t, guest, guestBase, &got)
	if diff := cmp.Diff(nt32.IOStatusBlock{Status: uint32(ntstatus.StatusPending), Information: 0x1234}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExceptionRecord(t *testing.T) {
	n := nt32.ExceptionRecord{
		ExceptionCode:    uint32(ntstatus.StatusAccessViolation),
		ExceptionFlags:   nt.EXCEPTION_NONCONTINUABLE,
		ExceptionAddress: 0x401000,
		NumberParameters: 2,
	}
	n.ExceptionInformation[0] = 1
	n.ExceptionInformation[1] = 0xdeadbeef
	w := ExceptionRecord64(n)
	if w.ExceptionInformation[1] != 0xdeadbeef {
		t.Errorf("parameter was sign-extended: %#x", w.ExceptionInformation[1])
	}
	back, err := ExceptionRecord32(w)
	if err != nil {
		t.Fatalf("ExceptionRecord32 failed: %v", err)
	}
	if diff := cmp.Diff(n, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	w.ExceptionAddress = 0x7ff6_0000_1000
	if _, err := ExceptionRecord32(w); !errors.Is(err, ntstatus.StatusIntegerOverflow) {
		t.Errorf("wide address: got %v, want %v", err, ntstatus.StatusIntegerOverflow)
	}
	w.ExceptionAddress = 0x1000
	w.NumberParameters = 40
	w.ExceptionInformation[14] = 0x1_0000_0007
	back, err = ExceptionRecord32(w)
	if err != nil || back.NumberParameters != nt.EXCEPTION_MAXIMUM_PARAMETERS || back.ExceptionInformation[14] != 7 {
		t.Errorf("clamped record = %+v, %v", back, err)
	}
}
