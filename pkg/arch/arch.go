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

// Package arch describes the guest and host architectures and converts
// thread contexts between them.
//
// A guest context (Context) is the narrow register record the guest sees
// through NtGetContextThread. A host context (Wide) is the native record of
// the paired host architecture. Conversions copy only the register groups
// named by the source's context flags.
package arch

import (
	"fmt"
	"strings"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// Arch describes an architecture.
type Arch int

const (
	// I386 is 32-bit x86.
	I386 Arch = iota + 1
	// ARM is 32-bit ARM in Thumb-2 mode.
	ARM
	// AMD64 is the x86-64 architecture.
	AMD64
	// ARM64 is the aarch64 architecture.
	ARM64
)

// String implements fmt.Stringer.
func (a Arch) String() string {
	switch a {
	case I386:
		return "i386"
	case ARM:
		return "arm"
	case AMD64:
		return "amd64"
	case ARM64:
		return "arm64"
	default:
		return fmt.Sprintf("Arch(%d)", int(a))
	}
}

// Parse returns the architecture named s.
func Parse(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "i386", "x86", "386":
		return I386, nil
	case "arm", "armv7", "thumb":
		return ARM, nil
	case "amd64", "x86_64", "x64":
		return AMD64, nil
	case "arm64", "aarch64":
		return ARM64, nil
	default:
		return 0, fmt.Errorf("unknown architecture %q", s)
	}
}

// Narrow returns true for guest architectures.
func (a Arch) Narrow() bool {
	return a == I386 || a == ARM
}

// Host returns the host architecture a guest architecture runs on.
func (a Arch) Host() (Arch, bool) {
	switch a {
	case I386:
		return AMD64, true
	case ARM:
		return ARM64, true
	default:
		return 0, false
	}
}

// PointerSize returns the size in bytes of a pointer.
func (a Arch) PointerSize() int {
	if a.Narrow() {
		return 4
	}
	return 8
}

// BreakpointWidth returns the length of the software breakpoint
// instruction.
func (a Arch) BreakpointWidth() uint32 {
	switch a {
	case I386:
		return 1 // int3
	case ARM:
		return 2 // Thumb udf
	default:
		return 4
	}
}

// ProcessorArchitecture returns the PROCESSOR_ARCHITECTURE_* value of a.
func (a Arch) ProcessorArchitecture() uint16 {
	switch a {
	case I386:
		return nt.PROCESSOR_ARCHITECTURE_INTEL
	case ARM:
		return nt.PROCESSOR_ARCHITECTURE_ARM
	case AMD64:
		return nt.PROCESSOR_ARCHITECTURE_AMD64
	case ARM64:
		return nt.PROCESSOR_ARCHITECTURE_ARM64
	default:
		panic(fmt.Sprintf("no processor architecture for %v", a))
	}
}

// Parts is an architecture-independent set of context register groups.
type Parts uint32

// Register groups.
const (
	Control Parts = 1 << iota
	Integer
	Segments
	FloatingPoint
	Debug
	Extended

	All = Control | Integer | Segments | FloatingPoint | Debug | Extended
)

// String implements fmt.Stringer.
func (p Parts) String() string {
	var names []string
	for _, g := range []struct {
		p    Parts
		name string
	}{
		{Control, "control"},
		{Integer, "integer"},
		{Segments, "segments"},
		{FloatingPoint, "fp"},
		{Debug, "debug"},
		{Extended, "extended"},
	} {
		if p&g.p != 0 {
			names = append(names, g.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Context flag base values. The register group bits are ORed in.
const (
	CONTEXT_I386  = 0x00010000
	CONTEXT_AMD64 = 0x00100000
	CONTEXT_ARM   = 0x00200000
	CONTEXT_ARM64 = 0x00400000
)

// flagBits maps each register group to its flag bit per architecture. A
// zero bit means the architecture has no such group.
var flagBits = map[Arch][6]uint32{
	// control, integer, segments, floating point, debug, extended.
	I386:  {0x01, 0x02, 0x04, 0x08, 0x10, 0x20},
	AMD64: {0x01, 0x02, 0x04, 0x08, 0x10, 0},
	ARM:   {0x01, 0x02, 0, 0x04, 0x08, 0},
	ARM64: {0x01, 0x02, 0, 0x04, 0x08, 0},
}

// ContextBase returns the CONTEXT_* architecture flag of a.
func (a Arch) ContextBase() uint32 {
	switch a {
	case I386:
		return CONTEXT_I386
	case AMD64:
		return CONTEXT_AMD64
	case ARM:
		return CONTEXT_ARM
	case ARM64:
		return CONTEXT_ARM64
	default:
		return 0
	}
}

// Parts returns the register groups named by context flags of a.
func (a Arch) Parts(flags uint32) Parts {
	var p Parts
	for i, bit := range flagBits[a] {
		if bit != 0 && flags&bit != 0 {
			p |= 1 << i
		}
	}
	return p
}

// Flags returns the context flags of a naming the register groups in p.
// Groups a does not have are dropped.
func (a Arch) Flags(p Parts) uint32 {
	flags := a.ContextBase()
	for i, bit := range flagBits[a] {
		if p&(1<<i) != 0 {
			flags |= bit
		}
	}
	return flags
}

// Context is a guest thread context.
type Context interface {
	// Arch returns the guest architecture.
	Arch() Arch

	// Flags returns the context flags.
	Flags() uint32

	// SetFlags sets the context flags.
	SetFlags(flags uint32)

	// IP returns the instruction pointer.
	IP() uint32

	// SetIP sets the instruction pointer.
	SetIP(ip uint32)

	// SP returns the stack pointer.
	SP() uint32

	// SetSP sets the stack pointer.
	SetSP(sp uint32)

	// SetReturn sets the function return register.
	SetReturn(v uint32)

	// Size returns the size of the narrow record.
	Size() int
}

// Wide is a host thread context.
type Wide interface {
	// Arch returns the host architecture.
	Arch() Arch

	// Flags returns the context flags.
	Flags() uint32

	// IP returns the instruction pointer.
	IP() uint64

	// SP returns the stack pointer.
	SP() uint64
}

// NewContext returns an empty context of guest architecture a.
func NewContext(a Arch) (Context, error) {
	switch a {
	case I386:
		return &Context32{ContextFlags: CONTEXT_I386}, nil
	case ARM:
		return &ContextARM{ContextFlags: CONTEXT_ARM}, nil
	default:
		return nil, fmt.Errorf("%v is not a guest architecture", a)
	}
}

// NewWide returns an empty context of host architecture a.
func NewWide(a Arch) (Wide, error) {
	switch a {
	case AMD64:
		return &ContextAMD64{ContextFlags: CONTEXT_AMD64}, nil
	case ARM64:
		return &ContextARM64{ContextFlags: CONTEXT_ARM64}, nil
	default:
		return nil, fmt.Errorf("%v is not a host architecture", a)
	}
}

// ToWide converts the register groups named by c's flags to a new context
// of the paired host architecture.
func ToWide(c Context) Wide {
	switch c := c.(type) {
	case *Context32:
		w := &ContextAMD64{}
		c.ToWide(w)
		return w
	case *ContextARM:
		w := &ContextARM64{}
		c.ToWide(w)
		return w
	default:
		panic(fmt.Sprintf("unknown guest context %T", c))
	}
}

// ToNarrow converts the register groups named by w's flags into c. It
// fails with STATUS_INTEGER_OVERFLOW if the instruction or stack pointer
// does not fit in 32 bits; c is unchanged in that case.
func ToNarrow(w Wide, c Context) error {
	switch w := w.(type) {
	case *ContextAMD64:
		c32, ok := c.(*Context32)
		if !ok {
			return fmt.Errorf("%v context into %v context: %w", w.Arch(), c.Arch(), ntstatus.StatusInvalidParameter)
		}
		return w.ToNarrow(c32)
	case *ContextARM64:
		carm, ok := c.(*ContextARM)
		if !ok {
			return fmt.Errorf("%v context into %v context: %w", w.Arch(), c.Arch(), ntstatus.StatusInvalidParameter)
		}
		return w.ToNarrow(carm)
	default:
		panic(fmt.Sprintf("unknown host context %T", w))
	}
}

func checkNarrow(what string, v uint64) (uint32, error) {
	if !hostarch.Addr(v).FitsNarrow() {
		return 0, fmt.Errorf("%s %#x out of guest range: %w", what, v, ntstatus.StatusIntegerOverflow)
	}
	return uint32(v), nil
}

// ReadContext reads a guest context of architecture a from mem.
func ReadContext(mem usermem.IO, addr hostarch.Addr, a Arch) (Context, error) {
	c, err := NewContext(a)
	if err != nil {
		return nil, err
	}
	if _, err := usermem.CopyObjectIn(mem, addr, c); err != nil {
		return nil, err
	}
	return c, nil
}

// WriteContext writes c to mem.
func WriteContext(mem usermem.IO, addr hostarch.Addr, c Context) error {
	_, err := usermem.CopyObjectOut(mem, addr, c)
	return err
}

// EnterDispatcher points c at a guest dispatcher entry point pc with the
// given arguments and stack pointer sp.
//
// On i386 the arguments are stored as words at the new stack pointer, with
// no return address. On ARM they are passed in r0-r3 and a Thumb entry point
// sets the T bit.
func EnterDispatcher(c Context, mem usermem.IO, sp, pc uint32, args ...uint32) error {
	switch c := c.(type) {
	case *Context32:
		sp -= uint32(4 * len(args))
		sp &^= 3
		for i, a := range args {
			if err := usermem.CopyUint32Out(mem, hostarch.Addr(sp)+hostarch.Addr(4*i), a); err != nil {
				return err
			}
		}
		c.Esp = sp
		c.Eip = pc
	case *ContextARM:
		if len(args) > 4 {
			panic(fmt.Sprintf("%d register arguments", len(args)))
		}
		regs := []*uint32{&c.R0, &c.R1, &c.R2, &c.R3}
		for i, a := range args {
			*regs[i] = a
		}
		c.Sp = sp &^ 7
		c.Pc = pc &^ 1
		if pc&1 != 0 {
			c.Cpsr |= CPSR_THUMB
		} else {
			c.Cpsr &^= CPSR_THUMB
		}
	default:
		panic(fmt.Sprintf("unknown guest context %T", c))
	}
	return nil
}

// SizeOf returns the narrow record size of guest architecture a.
func SizeOf(a Arch) int {
	switch a {
	case I386:
		return SizeOfContext32
	case ARM:
		return SizeOfContextARM
	case AMD64:
		return SizeOfContextAMD64
	case ARM64:
		return SizeOfContextARM64
	default:
		return 0
	}
}

// Sizes of the context records.
var (
	SizeOfContext32    = binary.Size(Context32{})
	SizeOfContextARM   = binary.Size(ContextARM{})
	SizeOfContextAMD64 = binary.Size(ContextAMD64{})
	SizeOfContextARM64 = binary.Size(ContextARM64{})
)
