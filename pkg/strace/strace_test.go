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

package strace

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/log"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

type recorder struct {
	lines []string
}

func (r *recorder) Debugf(format string, v ...any)   { r.lines = append(r.lines, fmt.Sprintf(format, v...)) }
func (r *recorder) Infof(format string, v ...any)    { r.lines = append(r.lines, fmt.Sprintf(format, v...)) }
func (r *recorder) Warningf(format string, v ...any) { r.lines = append(r.lines, fmt.Sprintf(format, v...)) }
func (r *recorder) IsLogging(log.Level) bool         { return true }

func TestFlagSet(t *testing.T) {
	for _, tc := range []struct {
		val  uint64
		want string
	}{
		{0, "0"},
		{nt.MEM_COMMIT, "MEM_COMMIT"},
		{nt.MEM_COMMIT | nt.MEM_RESERVE, "MEM_COMMIT|MEM_RESERVE"},
		{nt.MEM_RELEASE | 0x1, "MEM_RELEASE|0x1"},
	} {
		if got := AllocationTypeFlags.Parse(tc.val); got != tc.want {
			t.Errorf("Parse(%#x) = %q, want %q", tc.val, got, tc.want)
		}
	}
	if got := PseudoHandles.Parse(7); got != "0x7" {
		t.Errorf("PseudoHandles.Parse(7) = %q", got)
	}
}

func TestTrace(t *testing.T) {
	const base = 0x1000
	mem := &usermem.BytesIO{Base: base, Bytes: make([]byte, 0x1000)}
	name := usermem.EncodeUTF16(`\BaseNamedObjects\ev`)
	mem.CopyOut(base+0x100, name)
	usermem.CopyObjectOut(mem, base+0x40, &nt32.UnicodeString{Length: uint16(len(name)), MaximumLength: uint16(len(name)), Buffer: base + 0x100})
	usermem.CopyObjectOut(mem, base, &nt32.ObjectAttributes{Length: uint32(nt32.SizeOfObjectAttributes), ObjectName: base + 0x40})
	usermem.CopyUint32Out(mem, base+0x200, 0x44)

	r := &recorder{}
	tr := &Tracer{Logger: r, Mem: mem, TID: 7}
	s := Lookup("NtCreateEvent")
	args := []uint64{base + 0x200, 0x1f0003, base, 1, 0}
	tr.Enter(s, args)
	tr.Exit(s, args, ntstatus.StatusSuccess, time.Millisecond)

	if len(r.lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(r.lines), r.lines)
	}
	for _, want := range []string{" E NtCreateEvent(0x1200, 0x1f0003, ", `name=0x1040 "\\BaseNamedObjects\\ev"`, "1, 0)"} {
		if !strings.Contains(r.lines[0], want) {
			t.Errorf("enter line %q does not contain %q", r.lines[0], want)
		}
	}
	for _, want := range []string{" X NtCreateEvent(0x1200 [0x44], ", "= 0x0 STATUS_SUCCESS"} {
		if !strings.Contains(r.lines[1], want) {
			t.Errorf("exit line %q does not contain %q", r.lines[1], want)
		}
	}
}

func TestArgFormats(t *testing.T) {
	mem := &usermem.BytesIO{Base: 0x1000, Bytes: make([]byte, 0x100)}
	usermem.CopyUint32Out(mem, 0x1010, nt.PAGE_EXECUTE_READ)
	tr := &Tracer{Logger: &recorder{}, Mem: mem}
	for _, tc := range []struct {
		name string
		f    FormatSpecifier
		v    uint64
		exit bool
		want string
	}{
		{"hex", Hex, 0x20, false, "0x20"},
		{"int", Int, 0xffffffff, false, "-1"},
		{"current process", Handle, 0xffffffff, false, "NtCurrentProcess()"},
		{"current thread", Handle, 0xfffffffe, false, "NtCurrentThread()"},
		{"plain handle", Handle, 0x44, false, "0x44"},
		{"protection", Protection, nt.PAGE_READWRITE | nt.PAGE_GUARD, false, "PAGE_READWRITE|PAGE_GUARD"},
		{"post protection on enter", PostProtection, 0x1010, false, "0x1010"},
		{"post protection on exit", PostProtection, 0x1010, true, "0x1010 [PAGE_EXECUTE_READ]"},
		{"null string", UnicodeString, 0, false, "null"},
		{"null pointer", InOutPointer, 0, false, "null"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tr.arg(tc.f, tc.v, tc.exit); got != tc.want {
				t.Errorf("arg = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLookupDefault(t *testing.T) {
	s := Lookup("NtUnknown")
	if s.Name() != "NtUnknown" || s.spec(3) != Hex {
		t.Errorf("Lookup(NtUnknown) = %+v", s)
	}
}
