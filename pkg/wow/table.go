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
	"fmt"

	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/strace"
)

// SyscallFn is the thunk of a system call. It pops its arguments from args
// and returns the status reported to the guest.
type SyscallFn func(t *Thread, args *Args) ntstatus.Status

// Syscall describes one system call.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// ArgCount is the number of argument slots the guest passes.
	ArgCount uint8

	// Fn is the thunk.
	Fn SyscallFn
}

// Table selectors: bits 12 and 13 of a syscall number.
const (
	CoreTable   = 0
	Win32kTable = 1
	WideTable   = 2

	selectorShift = 12
	selectorMask  = 3
	idMask        = 1<<selectorShift - 1
)

// Number returns the syscall number of entry id in table selector.
func Number(selector, id uint32) uint32 {
	return selector<<selectorShift | id
}

// Split returns the table selector and entry id of number.
func Split(number uint32) (selector, id uint32) {
	return number >> selectorShift & selectorMask, number & idMask
}

// coreSyscalls is the NT system service table, in id order.
var coreSyscalls = []Syscall{
	{"NtAllocateVirtualMemory", 6, NtAllocateVirtualMemory},
	{"NtFreeVirtualMemory", 4, NtFreeVirtualMemory},
	{"NtProtectVirtualMemory", 5, NtProtectVirtualMemory},
	{"NtQueryVirtualMemory", 6, NtQueryVirtualMemory},
	{"NtReadVirtualMemory", 5, NtReadVirtualMemory},
	{"NtWriteVirtualMemory", 5, NtWriteVirtualMemory},
	{"NtFlushInstructionCache", 3, NtFlushInstructionCache},
	{"NtCreateSection", 7, NtCreateSection},
	{"NtMapViewOfSection", 10, NtMapViewOfSection},
	{"NtUnmapViewOfSection", 2, NtUnmapViewOfSection},
	{"NtClose", 1, NtClose},
	{"NtDuplicateObject", 7, NtDuplicateObject},
	{"NtCreateEvent", 5, NtCreateEvent},
	{"NtSetEvent", 2, NtSetEvent},
	{"NtWaitForSingleObject", 3, NtWaitForSingleObject},
	{"NtWaitForMultipleObjects", 5, NtWaitForMultipleObjects},
	{"NtDelayExecution", 2, NtDelayExecution},
	{"NtOpenProcess", 4, NtOpenProcess},
	{"NtTerminateProcess", 2, NtTerminateProcess},
	{"NtQueryInformationProcess", 5, NtQueryInformationProcess},
	{"NtSetInformationProcess", 4, NtSetInformationProcess},
	{"NtQueryInformationThread", 5, NtQueryInformationThread},
	{"NtGetContextThread", 2, NtGetContextThread},
	{"NtSetContextThread", 2, NtSetContextThread},
	{"NtContinue", 2, NtContinue},
	{"NtRaiseException", 3, NtRaiseException},
	{"NtCallbackReturn", 3, NtCallbackReturn},
	{"NtQueueApcThread", 5, NtQueueApcThread},
	{"NtTestAlert", 0, NtTestAlert},
	{"NtCreateFile", 11, NtCreateFile},
	{"NtReadFile", 9, NtReadFile},
	{"NtWriteFile", 9, NtWriteFile},
	{"NtQuerySecurityObject", 5, NtQuerySecurityObject},
	{"NtSetSecurityObject", 3, NtSetSecurityObject},
	{"NtOpenProcessToken", 3, NtOpenProcessToken},
	{"NtQueryInformationToken", 5, NtQueryInformationToken},
	{"NtQuerySystemInformation", 4, NtQuerySystemInformation},
	{"NtQuerySystemTime", 1, NtQuerySystemTime},
	{"NtQueryPerformanceCounter", 2, NtQueryPerformanceCounter},
	{"NtOpenKey", 3, NtOpenKey},
	{"NtCreateKey", 7, NtCreateKey},
	{"NtQueryValueKey", 6, NtQueryValueKey},
	{"NtSetValueKey", 6, NtSetValueKey},
	{"NtCreateJobObject", 3, NtCreateJobObject},
	{"NtAssignProcessToJobObject", 2, NtAssignProcessToJobObject},
	{"NtQueryInformationJobObject", 5, NtQueryInformationJobObject},
	{"NtSetInformationJobObject", 4, NtSetInformationJobObject},
	{"NtCreateUserProcess", 11, NtCreateUserProcess},
}

// win32kSyscalls is the windowing service table, in id order.
var win32kSyscalls = []Syscall{
	{"NtUserCallNoParam", 1, NtUserCallNoParam},
	{"NtUserCallOneParam", 2, NtUserCallOneParam},
	{"NtUserCallTwoParam", 3, NtUserCallTwoParam},
	{"NtUserGetKeyState", 1, NtUserGetKeyState},
	{"NtUserGetThreadDesktop", 1, NtUserGetThreadDesktop},
	{"NtUserMessageCall", 7, NtUserMessageCall},
}

// wideSyscalls is the table of calls that reach the host address space
// with 64-bit values, in id order.
var wideSyscalls = []Syscall{
	{"NtWow64ReadVirtualMemory64", 7, NtWow64ReadVirtualMemory64},
	{"NtWow64WriteVirtualMemory64", 7, NtWow64WriteVirtualMemory64},
	{"NtWow64AllocateVirtualMemory64", 7, NtWow64AllocateVirtualMemory64},
	{"NtWow64QueryInformationProcess64", 5, NtWow64QueryInformationProcess64},
	{"NtWow64GetNativeSystemInformation", 4, NtWow64GetNativeSystemInformation},
}

// staticTables maps selectors to their syscall lists.
var staticTables = map[uint32][]Syscall{
	CoreTable:   coreSyscalls,
	Win32kTable: win32kSyscalls,
	WideTable:   wideSyscalls,
}

// Table is the dispatch table of one selector.
type Table struct {
	// Selector is the table's selector.
	Selector uint32

	// Syscalls is indexed by syscall id.
	Syscalls []Syscall

	// info holds the trace formats, indexed like Syscalls.
	info []strace.SyscallInfo

	// traced marks the ids that are traced.
	traced []bool
}

// newTable builds the table of selector from list.
func newTable(selector uint32, list []Syscall, traced func(name string) bool) *Table {
	t := &Table{
		Selector: selector,
		Syscalls: make([]Syscall, len(list)),
		info:     make([]strace.SyscallInfo, len(list)),
		traced:   make([]bool, len(list)),
	}
	copy(t.Syscalls, list)
	for i, sc := range t.Syscalls {
		if sc.Fn == nil {
			panic(fmt.Sprintf("syscall %s has no thunk", sc.Name))
		}
		t.info[i] = strace.Lookup(sc.Name)
		t.traced[i] = traced(sc.Name)
	}
	return t
}

// Lookup returns the syscall with the given id, or nil if there is none.
func (t *Table) Lookup(id uint32) *Syscall {
	if int(id) >= len(t.Syscalls) {
		return nil
	}
	return &t.Syscalls[id]
}

// SyscallNumber returns the number of the named syscall.
func SyscallNumber(name string) (uint32, bool) {
	for selector, list := range staticTables {
		for id, sc := range list {
			if sc.Name == name {
				return Number(selector, uint32(id)), true
			}
		}
	}
	return 0, false
}

// Syscalls returns a copy of the syscalls of selector, in id order.
func Syscalls(selector uint32) []Syscall {
	return append([]Syscall(nil), staticTables[selector]...)
}

// Error returns a thunk that always fails with status s.
func Error(s ntstatus.Status) SyscallFn {
	return func(*Thread, *Args) ntstatus.Status {
		return s
	}
}
