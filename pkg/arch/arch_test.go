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

package arch

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

func TestContextSizes(t *testing.T) {
	for _, tc := range []struct {
		arch Arch
		want int
	}{
		{I386, 0x2cc},
		{ARM, 0x1a0},
		{AMD64, 0x4d0},
		{ARM64, 0x390},
	} {
		if got := SizeOf(tc.arch); got != tc.want {
			t.Errorf("SizeOf(%v) = %#x, want %#x", tc.arch, got, tc.want)
		}
	}
}

func TestArchPairs(t *testing.T) {
	for _, tc := range []struct {
		guest Arch
		host  Arch
		ok    bool
	}{
		{I386, AMD64, true},
		{ARM, ARM64, true},
		{AMD64, 0, false},
		{Arch(42), 0, false},
	} {
		host, ok := tc.guest.Host()
		if host != tc.host || ok != tc.ok {
			t.Errorf("%v.Host() = %v, %t, want %v, %t", tc.guest, host, ok, tc.host, tc.ok)
		}
	}
	if a, err := Parse("x86"); err != nil || a != I386 {
		t.Errorf("Parse(x86) = %v, %v", a, err)
	}
	if _, err := Parse("mips"); err == nil {
		t.Errorf("Parse(mips) succeeded")
	}
}

func TestParts(t *testing.T) {
	for _, tc := range []struct {
		arch  Arch
		flags uint32
		parts Parts
	}{
		{I386, CONTEXT_I386 | 0x3, Control | Integer},
		{I386, CONTEXT_I386 | 0x3f, All},
		{AMD64, CONTEXT_AMD64 | 0x1f, All &^ Extended},
		{ARM, CONTEXT_ARM | 0x4, FloatingPoint},
		{ARM64, CONTEXT_ARM64 | 0xf, Control | Integer | FloatingPoint | Debug},
	} {
		if got := tc.arch.Parts(tc.flags); got != tc.parts {
			t.Errorf("%v.Parts(%#x) = %v, want %v", tc.arch, tc.flags, got, tc.parts)
		}
	}
	if got, want := ARM.Flags(Segments|Control), uint32(CONTEXT_ARM|0x1); got != want {
		t.Errorf("ARM.Flags(segments|control) = %#x, want %#x", got, want)
	}
}

func fullContext32() *Context32 {
	c := &Context32{
		ContextFlags: CONTEXT_I386 | 0x1f,
		Dr0:          1, Dr1: 2, Dr2: 3, Dr3: 4, Dr6: 5, Dr7: 6,
		SegGs: 0x2b, SegFs: 0x53, SegEs: 0x2b, SegDs: 0x2b,
		Edi: 7, Esi: 8, Ebx: 9, Edx: 10, Ecx: 11, Eax: 0xffffffff,
		Ebp: 0x0012ff00, Eip: 0x00401000, SegCs: 0x23, EFlags: 0x202, Esp: 0x0012fe00, SegSs: 0x2b,
	}
	c.FloatSave = FloatingSaveArea{
		ControlWord:   0x27f,
		StatusWord:    0x3800,
		TagWord:       0xfff0, // st0 and st1 valid
		ErrorOffset:   0x401234,
		ErrorSelector: 0x05d90023,
		DataOffset:    0x405000,
		DataSelector:  0x2b,
	}
	for i := range c.FloatSave.RegisterArea {
		c.FloatSave.RegisterArea[i] = byte(i)
	}
	return c
}

func TestContext32RoundTrip(t *testing.T) {
	c := fullContext32()
	w := ToWide(c).(*ContextAMD64)
	if w.Rip != 0x00401000 || w.Rsp != 0x0012fe00 || w.Rax != 0xffffffff {
		t.Errorf("wide control/integer = rip %#x rsp %#x rax %#x", w.Rip, w.Rsp, w.Rax)
	}
	if w.ContextFlags != CONTEXT_AMD64|0x1f {
		t.Errorf("wide flags = %#x", w.ContextFlags)
	}

	var back Context32
	if err := ToNarrow(w, &back); err != nil {
		t.Fatalf("ToNarrow failed: %v", err)
	}
	// The wide FXSAVE image comes back as the extended registers too.
	want := *c
	want.ContextFlags |= 0x20
	want.ExtendedRegisters = w.FltSave
	if diff := cmp.Diff(want, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestContext32PartialFlags(t *testing.T) {
	c := fullContext32()
	c.ContextFlags = CONTEXT_I386 | 0x2 // integer only
	w := &ContextAMD64{Rip: 0xdead}
	c.ToWide(w)
	if w.Rip != 0xdead {
		t.Errorf("control registers copied without the control flag: rip %#x", w.Rip)
	}
	if w.Rbx != 9 {
		t.Errorf("rbx = %d, want 9", w.Rbx)
	}
	if got := AMD64.Parts(w.ContextFlags); got != Integer {
		t.Errorf("wide parts = %v, want integer", got)
	}
}

func TestContextAMD64ToNarrowOverflow(t *testing.T) {
	for _, tc := range []struct {
		name string
		w    ContextAMD64
	}{
		{"rip", ContextAMD64{ContextFlags: CONTEXT_AMD64 | 0x1, Rip: 0x7ff6_0000_1000, Rsp: 0x1000}},
		{"rsp", ContextAMD64{ContextFlags: CONTEXT_AMD64 | 0x1, Rip: 0x1000, Rsp: 0x1_0000_0000}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := Context32{Eip: 0x1234}
			if err := tc.w.ToNarrow(&c); !errors.Is(err, ntstatus.StatusIntegerOverflow) {
				t.Errorf("ToNarrow = %v, want %v", err, ntstatus.StatusIntegerOverflow)
			}
			if c.Eip != 0x1234 || c.ContextFlags != 0 {
				t.Errorf("context modified on failure: %+v", c)
			}
		})
	}
	// Without the control flag the pointers are not inspected.
	w := ContextAMD64{ContextFlags: CONTEXT_AMD64 | 0x2, Rip: 0x7ff6_0000_1000, Rax: 0x1_0000_0005}
	var c Context32
	if err := w.ToNarrow(&c); err != nil || c.Eax != 5 {
		t.Errorf("integer-only ToNarrow = %v, eax %#x", err, c.Eax)
	}
}

func TestFloatingPointConversion(t *testing.T) {
	c := fullContext32()
	var fx [512]byte
	fsaveToFxsave(&c.FloatSave, &fx)
	if fx[fxFTW] != 0x03 {
		t.Errorf("abridged tag = %#x, want 0x03", fx[fxFTW])
	}
	var back FloatingSaveArea
	fxsaveToFsave(&fx, &back)
	want := c.FloatSave
	want.Cr0NpxState = 0
	if diff := cmp.Diff(want, back); diff != "" {
		t.Errorf("FSAVE round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestContextARMRoundTrip(t *testing.T) {
	c := &ContextARM{
		ContextFlags: CONTEXT_ARM | 0xf,
		R0:           1, R1: 2, R2: 3, R3: 4, R12: 0xffffffff,
		Sp: 0x0010_0000, Lr: 0x0040_1001, Pc: 0x0040_2000, Cpsr: 0x60000030,
		Fpscr: 0x03c0_009f,
	}
	for i := range c.D {
		c.D[i] = uint64(i) << 40
	}
	c.Bvr[3] = 0x401000
	c.Bcr[3] = 1
	w := ToWide(c).(*ContextARM64)
	if w.V[1].Low != c.D[2] || w.V[1].High != c.D[3] {
		t.Errorf("v1 = %+v, want d2/d3", w.V[1])
	}
	if w.X[12] != 0xffffffff || w.X[ARM64Lr] != 0x0040_1001 {
		t.Errorf("x12 = %#x, lr = %#x", w.X[12], w.X[ARM64Lr])
	}
	var back ContextARM
	if err := ToNarrow(w, &back); err != nil {
		t.Fatalf("ToNarrow failed: %v", err)
	}
	if diff := cmp.Diff(*c, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestToNarrowMismatchedArch(t *testing.T) {
	if err := ToNarrow(&ContextARM64{}, &Context32{}); !errors.Is(err, ntstatus.StatusInvalidParameter) {
		t.Errorf("ToNarrow(arm64, i386) = %v", err)
	}
}

func TestEnterDispatcher(t *testing.T) {
	mem := &usermem.BytesIO{Base: 0x10000, Bytes: make([]byte, 0x1000)}

	c := &Context32{}
	if err := EnterDispatcher(c, mem, 0x10800, 0x7700_1000, 0x10900, 0x10a00); err != nil {
		t.Fatalf("EnterDispatcher failed: %v", err)
	}
	if c.Esp != 0x107f8 || c.Eip != 0x7700_1000 {
		t.Errorf("esp = %#x, eip = %#x", c.Esp, c.Eip)
	}
	for i, want := range []uint32{0x10900, 0x10a00} {
		got, err := usermem.CopyUint32In(mem, hostarch.Addr(c.Esp)+hostarch.Addr(4*i))
		if err != nil || got != want {
			t.Errorf("stack arg %d = %#x, %v, want %#x", i, got, err, want)
		}
	}

	a := &ContextARM{Cpsr: 0x10}
	if err := EnterDispatcher(a, mem, 0x10803, 0x7700_2001, 1, 2); err != nil {
		t.Fatalf("EnterDispatcher failed: %v", err)
	}
	if a.R0 != 1 || a.R1 != 2 || a.Sp != 0x10800 || a.Pc != 0x7700_2000 || a.Cpsr&CPSR_THUMB == 0 {
		t.Errorf("arm context = %+v", a)
	}
}

func TestReadWriteContext(t *testing.T) {
	mem := &usermem.BytesIO{Base: 0x10000, Bytes: make([]byte, 0x1000)}
	c := fullContext32()
	if err := WriteContext(mem, 0x10100, c); err != nil {
		t.Fatalf("WriteContext failed: %v", err)
	}
	got, err := ReadContext(mem, 0x10100, I386)
	if err != nil {
		t.Fatalf("ReadContext failed: %v", err)
	}
	if diff := cmp.Diff(c, got.(*Context32)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if _, err := ReadContext(mem, 0x10100, AMD64); err == nil {
		t.Errorf("ReadContext(amd64) succeeded")
	}
}
