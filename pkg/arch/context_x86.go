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
	"gvisor.dev/compat32/pkg/hostarch"
)

// FloatingSaveArea is the legacy x87 FSAVE image in an i386 context.
type FloatingSaveArea struct {
	ControlWord   uint32
	StatusWord    uint32
	TagWord       uint32
	ErrorOffset   uint32
	ErrorSelector uint32
	DataOffset    uint32
	DataSelector  uint32
	RegisterArea  [80]byte
	Cr0NpxState   uint32
}

// Context32 is the i386 thread context (WOW64_CONTEXT).
type Context32 struct {
	ContextFlags uint32

	Dr0 uint32
	Dr1 uint32
	Dr2 uint32
	Dr3 uint32
	Dr6 uint32
	Dr7 uint32

	FloatSave FloatingSaveArea

	SegGs uint32
	SegFs uint32
	SegEs uint32
	SegDs uint32

	Edi uint32
	Esi uint32
	Ebx uint32
	Edx uint32
	Ecx uint32
	Eax uint32

	Ebp    uint32
	Eip    uint32
	SegCs  uint32
	EFlags uint32
	Esp    uint32
	SegSs  uint32

	// ExtendedRegisters is an FXSAVE image.
	ExtendedRegisters [512]byte
}

// M128A is a 128-bit vector register.
type M128A struct {
	Low  uint64
	High int64
}

// ContextAMD64 is the x86-64 thread context.
type ContextAMD64 struct {
	P1Home uint64
	P2Home uint64
	P3Home uint64
	P4Home uint64
	P5Home uint64
	P6Home uint64

	ContextFlags uint32
	MxCsr        uint32

	SegCs  uint16
	SegDs  uint16
	SegEs  uint16
	SegFs  uint16
	SegGs  uint16
	SegSs  uint16
	EFlags uint32

	Dr0 uint64
	Dr1 uint64
	Dr2 uint64
	Dr3 uint64
	Dr6 uint64
	Dr7 uint64

	Rax uint64
	Rcx uint64
	Rdx uint64
	Rbx uint64
	Rsp uint64
	Rbp uint64
	Rsi uint64
	Rdi uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	Rip uint64

	// FltSave is an FXSAVE image.
	FltSave [512]byte

	VectorRegister [26]M128A
	VectorControl  uint64

	DebugControl         uint64
	LastBranchToRip      uint64
	LastBranchFromRip    uint64
	LastExceptionToRip   uint64
	LastExceptionFromRip uint64
}

// EFLAGS bits.
const (
	EFLAGS_TF = 0x100
	EFLAGS_IF = 0x200
)

// Arch implements Context.Arch.
func (c *Context32) Arch() Arch { return I386 }

// Flags implements Context.Flags.
func (c *Context32) Flags() uint32 { return c.ContextFlags }

// SetFlags implements Context.SetFlags.
func (c *Context32) SetFlags(flags uint32) { c.ContextFlags = flags }

// IP implements Context.IP.
func (c *Context32) IP() uint32 { return c.Eip }

// SetIP implements Context.SetIP.
func (c *Context32) SetIP(ip uint32) { c.Eip = ip }

// SP implements Context.SP.
func (c *Context32) SP() uint32 { return c.Esp }

// SetSP implements Context.SetSP.
func (c *Context32) SetSP(sp uint32) { c.Esp = sp }

// SetReturn implements Context.SetReturn.
func (c *Context32) SetReturn(v uint32) { c.Eax = v }

// Size implements Context.Size.
func (c *Context32) Size() int { return SizeOfContext32 }

// Arch implements Wide.Arch.
func (w *ContextAMD64) Arch() Arch { return AMD64 }

// Flags implements Wide.Flags.
func (w *ContextAMD64) Flags() uint32 { return w.ContextFlags }

// IP implements Wide.IP.
func (w *ContextAMD64) IP() uint64 { return w.Rip }

// SP implements Wide.SP.
func (w *ContextAMD64) SP() uint64 { return w.Rsp }

// ToWide copies the register groups named by c's flags into w and sets w's
// flags to match. The legacy FSAVE and the FXSAVE images both land in the
// wide FXSAVE image; the FXSAVE image wins when both are present.
func (c *Context32) ToWide(w *ContextAMD64) {
	parts := I386.Parts(c.ContextFlags)
	if parts&Extended != 0 {
		parts |= FloatingPoint
	}
	w.ContextFlags = AMD64.Flags(parts)

	if parts&Control != 0 {
		w.Rip = uint64(c.Eip)
		w.Rsp = uint64(c.Esp)
		w.Rbp = uint64(c.Ebp)
		w.SegCs = uint16(c.SegCs)
		w.SegSs = uint16(c.SegSs)
		w.EFlags = c.EFlags
	}
	if parts&Integer != 0 {
		w.Rax = uint64(c.Eax)
		w.Rbx = uint64(c.Ebx)
		w.Rcx = uint64(c.Ecx)
		w.Rdx = uint64(c.Edx)
		w.Rsi = uint64(c.Esi)
		w.Rdi = uint64(c.Edi)
	}
	if parts&Segments != 0 {
		w.SegDs = uint16(c.SegDs)
		w.SegEs = uint16(c.SegEs)
		w.SegFs = uint16(c.SegFs)
		w.SegGs = uint16(c.SegGs)
	}
	if parts&Debug != 0 {
		w.Dr0 = uint64(c.Dr0)
		w.Dr1 = uint64(c.Dr1)
		w.Dr2 = uint64(c.Dr2)
		w.Dr3 = uint64(c.Dr3)
		w.Dr6 = uint64(c.Dr6)
		w.Dr7 = uint64(c.Dr7)
	}
	switch {
	case I386.Parts(c.ContextFlags)&Extended != 0:
		w.FltSave = c.ExtendedRegisters
		w.MxCsr = hostarch.ByteOrder.Uint32(w.FltSave[fxMXCSR:])
	case parts&FloatingPoint != 0:
		fsaveToFxsave(&c.FloatSave, &w.FltSave)
	}
}

// ToNarrow copies the register groups named by w's flags into c and sets
// c's flags to match. The instruction and stack pointers must fit in 32
// bits; other registers are truncated.
func (w *ContextAMD64) ToNarrow(c *Context32) error {
	parts := AMD64.Parts(w.ContextFlags)
	if parts&FloatingPoint != 0 {
		parts |= Extended
	}
	var eip, esp uint32
	if parts&Control != 0 {
		var err error
		if eip, err = checkNarrow("rip", w.Rip); err != nil {
			return err
		}
		if esp, err = checkNarrow("rsp", w.Rsp); err != nil {
			return err
		}
	}
	c.ContextFlags = I386.Flags(parts)

	if parts&Control != 0 {
		c.Eip = eip
		c.Esp = esp
		c.Ebp = uint32(w.Rbp)
		c.SegCs = uint32(w.SegCs)
		c.SegSs = uint32(w.SegSs)
		c.EFlags = w.EFlags
	}
	if parts&Integer != 0 {
		c.Eax = uint32(w.Rax)
		c.Ebx = uint32(w.Rbx)
		c.Ecx = uint32(w.Rcx)
		c.Edx = uint32(w.Rdx)
		c.Esi = uint32(w.Rsi)
		c.Edi = uint32(w.Rdi)
	}
	if parts&Segments != 0 {
		c.SegDs = uint32(w.SegDs)
		c.SegEs = uint32(w.SegEs)
		c.SegFs = uint32(w.SegFs)
		c.SegGs = uint32(w.SegGs)
	}
	if parts&Debug != 0 {
		c.Dr0 = uint32(w.Dr0)
		c.Dr1 = uint32(w.Dr1)
		c.Dr2 = uint32(w.Dr2)
		c.Dr3 = uint32(w.Dr3)
		c.Dr6 = uint32(w.Dr6)
		c.Dr7 = uint32(w.Dr7)
	}
	if parts&FloatingPoint != 0 {
		c.ExtendedRegisters = w.FltSave
		fxsaveToFsave(&w.FltSave, &c.FloatSave)
	}
	return nil
}

// Offsets in an FXSAVE image.
const (
	fxFCW   = 0
	fxFSW   = 2
	fxFTW   = 4
	fxFOP   = 6
	fxFIP   = 8
	fxFCS   = 12
	fxFDP   = 16
	fxFDS   = 20
	fxMXCSR = 24
	fxST0   = 32

	fxRegStride = 16
	fsRegSize   = 10
)

// fsaveToFxsave converts the x87 state of an FSAVE image into an FXSAVE
// image. Registers tagged valid, zero or special are all marked in use in
// the abridged tag byte.
func fsaveToFxsave(f *FloatingSaveArea, fx *[512]byte) {
	bo := hostarch.ByteOrder
	bo.PutUint16(fx[fxFCW:], uint16(f.ControlWord))
	bo.PutUint16(fx[fxFSW:], uint16(f.StatusWord))
	var tag byte
	for i := 0; i < 8; i++ {
		if (f.TagWord>>(2*i))&3 != 3 {
			tag |= 1 << i
		}
	}
	fx[fxFTW] = tag
	bo.PutUint16(fx[fxFOP:], uint16(f.ErrorSelector>>16)&0x7ff)
	bo.PutUint32(fx[fxFIP:], f.ErrorOffset)
	bo.PutUint16(fx[fxFCS:], uint16(f.ErrorSelector))
	bo.PutUint32(fx[fxFDP:], f.DataOffset)
	bo.PutUint16(fx[fxFDS:], uint16(f.DataSelector))
	for i := 0; i < 8; i++ {
		copy(fx[fxST0+i*fxRegStride:][:fsRegSize], f.RegisterArea[i*fsRegSize:][:fsRegSize])
	}
}

// fxsaveToFsave converts the x87 state of an FXSAVE image into an FSAVE
// image. Registers marked in use are tagged valid.
func fxsaveToFsave(fx *[512]byte, f *FloatingSaveArea) {
	bo := hostarch.ByteOrder
	f.ControlWord = uint32(bo.Uint16(fx[fxFCW:]))
	f.StatusWord = uint32(bo.Uint16(fx[fxFSW:]))
	var tag uint32
	for i := 0; i < 8; i++ {
		if fx[fxFTW]&(1<<i) == 0 {
			tag |= 3 << (2 * i)
		}
	}
	f.TagWord = tag
	f.ErrorOffset = bo.Uint32(fx[fxFIP:])
	f.ErrorSelector = uint32(bo.Uint16(fx[fxFCS:])) | uint32(bo.Uint16(fx[fxFOP:])&0x7ff)<<16
	f.DataOffset = bo.Uint32(fx[fxFDP:])
	f.DataSelector = uint32(bo.Uint16(fx[fxFDS:]))
	for i := 0; i < 8; i++ {
		copy(f.RegisterArea[i*fsRegSize:][:fsRegSize], fx[fxST0+i*fxRegStride:][:fsRegSize])
	}
}
