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

// ContextARM is the 32-bit ARM thread context.
type ContextARM struct {
	ContextFlags uint32

	R0  uint32
	R1  uint32
	R2  uint32
	R3  uint32
	R4  uint32
	R5  uint32
	R6  uint32
	R7  uint32
	R8  uint32
	R9  uint32
	R10 uint32
	R11 uint32
	R12 uint32

	Sp   uint32
	Lr   uint32
	Pc   uint32
	Cpsr uint32

	Fpscr   uint32
	Padding uint32
	D       [32]uint64

	Bvr      [8]uint32
	Bcr      [8]uint32
	Wvr      [1]uint32
	Wcr      [1]uint32
	Padding2 [2]uint32
}

// Neon128 is a 128-bit vector register.
type Neon128 struct {
	Low  uint64
	High uint64
}

// ContextARM64 is the aarch64 thread context.
type ContextARM64 struct {
	ContextFlags uint32
	Cpsr         uint32

	// X holds x0-x28, fp (x29) and lr (x30).
	X  [31]uint64
	Sp uint64
	Pc uint64

	V    [32]Neon128
	Fpcr uint32
	Fpsr uint32

	Bcr [8]uint32
	Bvr [8]uint64
	Wcr [2]uint32
	Wvr [2]uint64
}

// CPSR bits.
const (
	CPSR_THUMB = 0x20
)

// fpcrMask selects the FPSCR bits that live in FPCR on aarch64; the rest
// are FPSR bits.
const fpcrMask = 0x07f79f00

// Registers of ContextARM64.X with special roles.
const (
	ARM64Fp = 29
	ARM64Lr = 30
)

// Arch implements Context.Arch.
func (c *ContextARM) Arch() Arch { return ARM }

// Flags implements Context.Flags.
func (c *ContextARM) Flags() uint32 { return c.ContextFlags }

// SetFlags implements Context.SetFlags.
func (c *ContextARM) SetFlags(flags uint32) { c.ContextFlags = flags }

// IP implements Context.IP.
func (c *ContextARM) IP() uint32 { return c.Pc }

// SetIP implements Context.SetIP.
func (c *ContextARM) SetIP(ip uint32) { c.Pc = ip }

// SP implements Context.SP.
func (c *ContextARM) SP() uint32 { return c.Sp }

// SetSP implements Context.SetSP.
func (c *ContextARM) SetSP(sp uint32) { c.Sp = sp }

// SetReturn implements Context.SetReturn.
func (c *ContextARM) SetReturn(v uint32) { c.R0 = v }

// Size implements Context.Size.
func (c *ContextARM) Size() int { return SizeOfContextARM }

// Arch implements Wide.Arch.
func (w *ContextARM64) Arch() Arch { return ARM64 }

// Flags implements Wide.Flags.
func (w *ContextARM64) Flags() uint32 { return w.ContextFlags }

// IP implements Wide.IP.
func (w *ContextARM64) IP() uint64 { return w.Pc }

// SP implements Wide.SP.
func (w *ContextARM64) SP() uint64 { return w.Sp }

func (c *ContextARM) regs() []*uint32 {
	return []*uint32{&c.R0, &c.R1, &c.R2, &c.R3, &c.R4, &c.R5, &c.R6, &c.R7, &c.R8, &c.R9, &c.R10, &c.R11, &c.R12}
}

// ToWide copies the register groups named by c's flags into w and sets w's
// flags to match. r0-r12 map to x0-x12; d0-d31 pack pairwise into v0-v15.
func (c *ContextARM) ToWide(w *ContextARM64) {
	parts := ARM.Parts(c.ContextFlags)
	w.ContextFlags = ARM64.Flags(parts)

	if parts&Control != 0 {
		w.Sp = uint64(c.Sp)
		w.X[ARM64Lr] = uint64(c.Lr)
		w.Pc = uint64(c.Pc)
		w.Cpsr = c.Cpsr
	}
	if parts&Integer != 0 {
		for i, r := range c.regs() {
			w.X[i] = uint64(*r)
		}
	}
	if parts&FloatingPoint != 0 {
		w.Fpcr = c.Fpscr & fpcrMask
		w.Fpsr = c.Fpscr &^ fpcrMask
		for i := 0; i < 16; i++ {
			w.V[i] = Neon128{Low: c.D[2*i], High: c.D[2*i+1]}
		}
	}
	if parts&Debug != 0 {
		for i := range c.Bvr {
			w.Bvr[i] = uint64(c.Bvr[i])
			w.Bcr[i] = c.Bcr[i]
		}
		w.Wvr[0] = uint64(c.Wvr[0])
		w.Wcr[0] = c.Wcr[0]
	}
}

// ToNarrow copies the register groups named by w's flags into c and sets
// c's flags to match. The instruction and stack pointers must fit in 32
// bits; other registers are truncated.
func (w *ContextARM64) ToNarrow(c *ContextARM) error {
	parts := ARM64.Parts(w.ContextFlags)
	var pc, sp uint32
	if parts&Control != 0 {
		var err error
		if pc, err = checkNarrow("pc", w.Pc); err != nil {
			return err
		}
		if sp, err = checkNarrow("sp", w.Sp); err != nil {
			return err
		}
	}
	c.ContextFlags = ARM.Flags(parts)

	if parts&Control != 0 {
		c.Sp = sp
		c.Lr = uint32(w.X[ARM64Lr])
		c.Pc = pc
		c.Cpsr = w.Cpsr
	}
	if parts&Integer != 0 {
		for i, r := range c.regs() {
			*r = uint32(w.X[i])
		}
	}
	if parts&FloatingPoint != 0 {
		c.Fpscr = w.Fpcr&fpcrMask | w.Fpsr&^fpcrMask
		for i := 0; i < 16; i++ {
			c.D[2*i] = w.V[i].Low
			c.D[2*i+1] = w.V[i].High
		}
	}
	if parts&Debug != 0 {
		for i := range c.Bvr {
			c.Bvr[i] = uint32(w.Bvr[i])
			c.Bcr[i] = w.Bcr[i]
		}
		c.Wvr[0] = uint32(w.Wvr[0])
		c.Wcr[0] = w.Wcr[0]
	}
	return nil
}
