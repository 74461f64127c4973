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

package nt32

import "testing"

func TestSizes(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  int
		want int
	}{
		{"UNICODE_STRING32", SizeOfUnicodeString, 8},
		{"OBJECT_ATTRIBUTES32", SizeOfObjectAttributes, 24},
		{"IO_STATUS_BLOCK32", SizeOfIOStatusBlock, 8},
		{"CLIENT_ID32", SizeOfClientID, 8},
		{"SECURITY_DESCRIPTOR32", SizeOfSecurityDescriptor, 20},
		{"SID_AND_ATTRIBUTES32", SizeOfSIDAndAttributes, 8},
		{"PROCESS_BASIC_INFORMATION32", SizeOfProcessBasicInformationInfo, 24},
		{"VM_COUNTERS32", SizeOfVMCounters, 44},
		{"THREAD_BASIC_INFORMATION32", SizeOfThreadBasicInformationInfo, 28},
		{"MEMORY_BASIC_INFORMATION32", SizeOfMemoryBasicInformationInfo, 28},
		{"SYSTEM_BASIC_INFORMATION32", SizeOfSystemBasicInformationInfo, 44},
		{"JOBOBJECT_BASIC_LIMIT_INFORMATION32", SizeOfJobObjectBasicLimitInformationInfo, 48},
		{"JOBOBJECT_EXTENDED_LIMIT_INFORMATION32", SizeOfJobObjectExtendedLimitInformationInfo, 112},
		{"EXCEPTION_RECORD32", SizeOfExceptionRecord, 80},
		{"PS_ATTRIBUTE32", SizeOfPSAttribute, 16},
	} {
		if tc.got != tc.want {
			t.Errorf("sizeof(%s) = %d, want %d", tc.name, tc.got, tc.want)
		}
	}
}
