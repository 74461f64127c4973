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

	"gvisor.dev/compat32/pkg/abi/nt"
)

// A FlagSet is a slice of bit-flags and their name.
type FlagSet []struct {
	Flag uint64
	Name string
}

// Parse returns a pretty version of val, using the flag names for known
// flags. Unknown flags remain in hex.
func (s FlagSet) Parse(val uint64) string {
	var flags []string
	for _, f := range s {
		if val&f.Flag == f.Flag {
			flags = append(flags, f.Name)
			val &^= f.Flag
		}
	}
	if val != 0 {
		flags = append(flags, fmt.Sprintf("%#x", val))
	}
	if len(flags) == 0 {
		return "0"
	}
	return strings.Join(flags, "|")
}

// ValueSet is a map of syscall values to their name.
type ValueSet map[uint64]string

// Parse returns the name of val, or val in hex if it is unknown.
func (s ValueSet) Parse(val uint64) string {
	if v, ok := s[val]; ok {
		return v
	}
	return fmt.Sprintf("%#x", val)
}

// AllocationTypeFlags are the MEM_* allocation and free types.
var AllocationTypeFlags = FlagSet{
	{Flag: nt.MEM_COMMIT, Name: "MEM_COMMIT"},
	{Flag: nt.MEM_RESERVE, Name: "MEM_RESERVE"},
	{Flag: nt.MEM_DECOMMIT, Name: "MEM_DECOMMIT"},
	{Flag: nt.MEM_RELEASE, Name: "MEM_RELEASE"},
	{Flag: nt.MEM_RESET, Name: "MEM_RESET"},
	{Flag: nt.MEM_TOP_DOWN, Name: "MEM_TOP_DOWN"},
}

// ProtectionFlags are the PAGE_* protections.
var ProtectionFlags = FlagSet{
	{Flag: nt.PAGE_NOACCESS, Name: "PAGE_NOACCESS"},
	{Flag: nt.PAGE_READONLY, Name: "PAGE_READONLY"},
	{Flag: nt.PAGE_READWRITE, Name: "PAGE_READWRITE"},
	{Flag: nt.PAGE_WRITECOPY, Name: "PAGE_WRITECOPY"},
	{Flag: nt.PAGE_EXECUTE, Name: "PAGE_EXECUTE"},
	{Flag: nt.PAGE_EXECUTE_READ, Name: "PAGE_EXECUTE_READ"},
	{Flag: nt.PAGE_EXECUTE_READWRITE, Name: "PAGE_EXECUTE_READWRITE"},
	{Flag: nt.PAGE_EXECUTE_WRITECOPY, Name: "PAGE_EXECUTE_WRITECOPY"},
	{Flag: nt.PAGE_GUARD, Name: "PAGE_GUARD"},
	{Flag: nt.PAGE_NOCACHE, Name: "PAGE_NOCACHE"},
}

// PseudoHandles names the pseudo-handles.
var PseudoHandles = ValueSet{
	uint64(nt.CurrentProcess): "NtCurrentProcess()",
	uint64(nt.CurrentThread):  "NtCurrentThread()",
}
