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

// ntSyscalls holds the argument formats of the calls worth decoding. Other
// calls print every argument in hex.
var ntSyscalls = map[string]SyscallInfo{
	"NtAllocateVirtualMemory":        Info("NtAllocateVirtualMemory", Handle, InOutPointer, Hex, InOutPointer, AllocationType, Protection),
	"NtFreeVirtualMemory":            Info("NtFreeVirtualMemory", Handle, InOutPointer, InOutPointer, AllocationType),
	"NtProtectVirtualMemory":         Info("NtProtectVirtualMemory", Handle, InOutPointer, InOutPointer, Protection, PostProtection),
	"NtQueryVirtualMemory":           Info("NtQueryVirtualMemory", Handle, Hex, Int, Hex, Hex, Hex),
	"NtReadVirtualMemory":            Info("NtReadVirtualMemory", Handle, Hex, Hex, Hex, Hex),
	"NtWriteVirtualMemory":           Info("NtWriteVirtualMemory", Handle, Hex, Hex, Hex, Hex),
	"NtFlushInstructionCache":        Info("NtFlushInstructionCache", Handle, Hex, Hex),
	"NtCreateSection":                Info("NtCreateSection", PostHandle, Hex, ObjectAttributes, Hex, Protection, Hex, Handle),
	"NtMapViewOfSection":             Info("NtMapViewOfSection", Handle, Handle, InOutPointer, Hex, Hex, Hex, InOutPointer, Int, AllocationType, Protection),
	"NtUnmapViewOfSection":           Info("NtUnmapViewOfSection", Handle, Hex),
	"NtClose":                        Info("NtClose", Handle),
	"NtDuplicateObject":              Info("NtDuplicateObject", Handle, Handle, Handle, PostHandle, Hex, Hex, Hex),
	"NtCreateEvent":                  Info("NtCreateEvent", PostHandle, Hex, ObjectAttributes, Int, Int),
	"NtSetEvent":                     Info("NtSetEvent", Handle, Hex),
	"NtWaitForSingleObject":          Info("NtWaitForSingleObject", Handle, Int, Hex),
	"NtWaitForMultipleObjects":       Info("NtWaitForMultipleObjects", Int, Hex, Int, Int, Hex),
	"NtDelayExecution":               Info("NtDelayExecution", Int, Hex),
	"NtOpenProcess":                  Info("NtOpenProcess", PostHandle, Hex, ObjectAttributes, Hex),
	"NtTerminateProcess":             Info("NtTerminateProcess", Handle, Hex),
	"NtQueryInformationProcess":      Info("NtQueryInformationProcess", Handle, Int, Hex, Hex, Hex),
	"NtSetInformationProcess":        Info("NtSetInformationProcess", Handle, Int, Hex, Hex),
	"NtQueryInformationThread":       Info("NtQueryInformationThread", Handle, Int, Hex, Hex, Hex),
	"NtGetContextThread":             Info("NtGetContextThread", Handle, Hex),
	"NtSetContextThread":             Info("NtSetContextThread", Handle, Hex),
	"NtQueueApcThread":               Info("NtQueueApcThread", Handle, Hex, Hex, Hex, Hex),
	"NtCreateFile":                   Info("NtCreateFile", PostHandle, Hex, ObjectAttributes, Hex, Hex, Hex, Hex, Int, Hex, Hex, Hex),
	"NtReadFile":                     Info("NtReadFile", Handle, Handle, Hex, Hex, Hex, Hex, Hex, Hex, Hex),
	"NtWriteFile":                    Info("NtWriteFile", Handle, Handle, Hex, Hex, Hex, Hex, Hex, Hex, Hex),
	"NtQuerySecurityObject":          Info("NtQuerySecurityObject", Handle, Hex, Hex, Hex, Hex),
	"NtSetSecurityObject":            Info("NtSetSecurityObject", Handle, Hex, Hex),
	"NtOpenProcessToken":             Info("NtOpenProcessToken", Handle, Hex, PostHandle),
	"NtQueryInformationToken":        Info("NtQueryInformationToken", Handle, Int, Hex, Hex, Hex),
	"NtQuerySystemInformation":       Info("NtQuerySystemInformation", Int, Hex, Hex, Hex),
	"NtOpenKey":                      Info("NtOpenKey", PostHandle, Hex, ObjectAttributes),
	"NtCreateKey":                    Info("NtCreateKey", PostHandle, Hex, ObjectAttributes, Hex, UnicodeString, Hex, Hex),
	"NtQueryValueKey":                Info("NtQueryValueKey", Handle, UnicodeString, Int, Hex, Hex, Hex),
	"NtSetValueKey":                  Info("NtSetValueKey", Handle, UnicodeString, Hex, Int, Hex, Hex),
	"NtCreateJobObject":              Info("NtCreateJobObject", PostHandle, Hex, ObjectAttributes),
	"NtAssignProcessToJobObject":     Info("NtAssignProcessToJobObject", Handle, Handle),
	"NtQueryInformationJobObject":    Info("NtQueryInformationJobObject", Handle, Int, Hex, Hex, Hex),
	"NtSetInformationJobObject":      Info("NtSetInformationJobObject", Handle, Int, Hex, Hex),
	"NtCreateUserProcess":            Info("NtCreateUserProcess", PostHandle, PostHandle, Hex, Hex, ObjectAttributes, ObjectAttributes, Hex, Hex, Hex, Hex, Hex),
	"NtWow64ReadVirtualMemory64":     Info("NtWow64ReadVirtualMemory64", Handle),
	"NtWow64WriteVirtualMemory64":    Info("NtWow64WriteVirtualMemory64", Handle),
	"NtWow64AllocateVirtualMemory64": Info("NtWow64AllocateVirtualMemory64", Handle),
}

// Lookup returns the format of the named call.
func Lookup(name string) SyscallInfo {
	if s, ok := ntSyscalls[name]; ok {
		return s
	}
	return Info(name)
}
