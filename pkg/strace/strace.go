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

// Package strace traces guest system calls.
//
// Each traced call logs an enter line before translation and an exit line
// with the resulting status. Arguments are formatted from the raw guest
// argument slots according to a per-syscall format list; pointer arguments
// are decoded from guest memory.
package strace

import (
	"fmt"
	"strings"
	"time"

	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/log"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// FormatSpecifier values describe how an individual syscall argument should be
// formatted.
type FormatSpecifier int

// Valid FormatSpecifiers.
//
// Unless otherwise specified, values are formatted before syscall execution
// and not updated after syscall execution (the same value is output).
const (
	// Hex is just a hexadecimal number.
	Hex FormatSpecifier = iota

	// Int is a signed 32-bit value.
	Int

	// Handle is an object handle. Pseudo-handles are named.
	Handle

	// PostHandle is a pointer to a handle, formatted after syscall
	// execution.
	PostHandle

	// UnicodeString is a pointer to a guest UNICODE_STRING.
	UnicodeString

	// ObjectAttributes is a pointer to a guest OBJECT_ATTRIBUTES. The
	// object name is decoded.
	ObjectAttributes

	// InOutPointer is a pointer to a pointer-sized value that the call
	// may update. Formatted before and after syscall execution.
	InOutPointer

	// AllocationType is a MEM_* flag value.
	AllocationType

	// Protection is a PAGE_* flag value.
	Protection

	// PostProtection is a pointer to a PAGE_* value, formatted after
	// syscall execution.
	PostProtection
)

// SyscallInfo captures the name and printing format of a syscall.
type SyscallInfo struct {
	// name is the name of the syscall.
	name string

	// format contains the format specifiers for each argument.
	//
	// Syscall calls can have up to the declared number of arguments. Any
	// argument without a specifier is formatted as Hex.
	format []FormatSpecifier
}

// Info returns a SyscallInfo for name with the given argument formats.
func Info(name string, f ...FormatSpecifier) SyscallInfo {
	return SyscallInfo{name: name, format: f}
}

// Name returns the syscall name.
func (s SyscallInfo) Name() string {
	return s.name
}

func (s SyscallInfo) spec(i int) FormatSpecifier {
	if i < len(s.format) {
		return s.format[i]
	}
	return Hex
}

// Tracer writes trace lines for the calls of one thread.
type Tracer struct {
	// Logger receives the trace lines.
	Logger log.Logger

	// Mem is the guest memory that pointer arguments refer to.
	Mem usermem.IO

	// TID is the thread id included in every line.
	TID uint64
}

// Enter logs the start of a call with the raw argument slots args.
func (t *Tracer) Enter(s SyscallInfo, args []uint64) {
	t.Logger.Infof("[%6d] E %s(%s)", t.TID, s.name, t.format(s, args, false))
}

// Exit logs the completion of a call.
func (t *Tracer) Exit(s SyscallInfo, args []uint64, status ntstatus.Status, elapsed time.Duration) {
	t.Logger.Infof("[%6d] X %s(%s) = %#x %s (%v)", t.TID, s.name, t.format(s, args, true), uint32(status), status, elapsed)
}

func (t *Tracer) format(s SyscallInfo, args []uint64, exit bool) string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = t.arg(s.spec(i), a, exit)
	}
	return strings.Join(out, ", ")
}

func (t *Tracer) arg(f FormatSpecifier, v uint64, exit bool) string {
	switch f {
	case Int:
		return fmt.Sprintf("%d", int32(v))
	case Handle:
		return handle(v)
	case AllocationType:
		return AllocationTypeFlags.Parse(v)
	case Protection:
		return ProtectionFlags.Parse(v)
	case UnicodeString:
		return t.unicodeString(v)
	case ObjectAttributes:
		return t.objectAttributes(v)
	case InOutPointer:
		return t.pointee(v, fmt.Sprintf("%#x", t.readUint32(v)))
	case PostHandle:
		if !exit {
			return fmt.Sprintf("%#x", v)
		}
		return t.pointee(v, handle(uint64(t.readUint32(v))))
	case PostProtection:
		if !exit {
			return fmt.Sprintf("%#x", v)
		}
		return t.pointee(v, ProtectionFlags.Parse(uint64(t.readUint32(v))))
	default:
		return fmt.Sprintf("%#x", v)
	}
}

// handle formats a guest handle slot, sign-extending it.
func handle(v uint64) string {
	wide := uint64(int64(int32(uint32(v))))
	if name, ok := PseudoHandles[wide]; ok {
		return name
	}
	return fmt.Sprintf("%#x", uint32(v))
}

func (t *Tracer) pointee(addr uint64, s string) string {
	if addr == 0 {
		return "null"
	}
	return fmt.Sprintf("%#x [%s]", addr, s)
}

func (t *Tracer) readUint32(addr uint64) uint32 {
	if addr == 0 {
		return 0
	}
	v, err := usermem.CopyUint32In(t.Mem, hostarch.Addr(addr))
	if err != nil {
		return 0
	}
	return v
}

func (t *Tracer) unicodeString(addr uint64) string {
	if addr == 0 {
		return "null"
	}
	var us nt32.UnicodeString
	if _, err := usermem.CopyObjectIn(t.Mem, hostarch.Addr(addr), &us); err != nil {
		return fmt.Sprintf("%#x (error decoding string: %v)", addr, err)
	}
	s, err := usermem.CopyUTF16In(t.Mem, hostarch.Addr(us.Buffer), int(us.Length))
	if err != nil {
		return fmt.Sprintf("%#x (error decoding string: %v)", addr, err)
	}
	return fmt.Sprintf("%#x %q", addr, s)
}

func (t *Tracer) objectAttributes(addr uint64) string {
	if addr == 0 {
		return "null"
	}
	var oa nt32.ObjectAttributes
	if _, err := usermem.CopyObjectIn(t.Mem, hostarch.Addr(addr), &oa); err != nil {
		return fmt.Sprintf("%#x (error decoding attributes: %v)", addr, err)
	}
	return fmt.Sprintf("%#x {root=%s, name=%s, attributes=%#x}", addr, handle(uint64(oa.RootDirectory)), t.unicodeString(uint64(oa.ObjectName)), oa.Attributes)
}
