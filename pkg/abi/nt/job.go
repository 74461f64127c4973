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

package nt

import "gvisor.dev/compat32/pkg/binary"

// JOBOBJECTINFOCLASS values.
const (
	JobObjectBasicAccountingInformation = 1
	JobObjectBasicLimitInformation      = 2
	JobObjectBasicProcessIdList         = 3
	JobObjectExtendedLimitInformation   = 9
)

// Job limit flags.
const (
	JOB_OBJECT_LIMIT_ACTIVE_PROCESS    = 0x00000008
	JOB_OBJECT_LIMIT_AFFINITY          = 0x00000010
	JOB_OBJECT_LIMIT_PROCESS_MEMORY    = 0x00000100
	JOB_OBJECT_LIMIT_JOB_MEMORY        = 0x00000200
	JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE = 0x00002000
)

// JobObjectBasicAccountingInformationInfo corresponds to
// JOBOBJECT_BASIC_ACCOUNTING_INFORMATION. The layout is the same at every
// width.
type JobObjectBasicAccountingInformationInfo struct {
	TotalUserTime             int64
	TotalKernelTime           int64
	ThisPeriodTotalUserTime   int64
	ThisPeriodTotalKernelTime int64
	TotalPageFaultCount       uint32
	TotalProcesses            uint32
	ActiveProcesses           uint32
	TotalTerminatedProcesses  uint32
}

// JobObjectBasicLimitInformationInfo corresponds to
// JOBOBJECT_BASIC_LIMIT_INFORMATION.
type JobObjectBasicLimitInformationInfo struct {
	PerProcessUserTimeLimit int64
	PerJobUserTimeLimit     int64
	LimitFlags              uint32
	_                       uint32
	MinimumWorkingSetSize   uint64
	MaximumWorkingSetSize   uint64
	ActiveProcessLimit      uint32
	_                       uint32
	Affinity                uint64
	PriorityClass           uint32
	SchedulingClass         uint32
}

// IOCounters corresponds to IO_COUNTERS. The layout is the same at every
// width.
type IOCounters struct {
	ReadOperationCount  uint64
	WriteOperationCount uint64
	OtherOperationCount uint64
	ReadTransferCount   uint64
	WriteTransferCount  uint64
	OtherTransferCount  uint64
}

// JobObjectExtendedLimitInformationInfo corresponds to
// JOBOBJECT_EXTENDED_LIMIT_INFORMATION.
type JobObjectExtendedLimitInformationInfo struct {
	BasicLimitInformation JobObjectBasicLimitInformationInfo
	IoInfo                IOCounters
	ProcessMemoryLimit    uint64
	JobMemoryLimit        uint64
	PeakProcessMemoryUsed uint64
	PeakJobMemoryUsed     uint64
}

// JobObjectBasicProcessIDListHeader is the fixed part of
// JOBOBJECT_BASIC_PROCESS_ID_LIST; NumberOfProcessIdsInList ULONG_PTR
// process ids follow it.
type JobObjectBasicProcessIDListHeader struct {
	NumberOfAssignedProcesses uint32
	NumberOfProcessIdsInList  uint32
}

// Sizes of the structures above.
var (
	SizeOfJobObjectBasicAccountingInformationInfo = binary.Size(JobObjectBasicAccountingInformationInfo{})
	SizeOfJobObjectBasicLimitInformationInfo      = binary.Size(JobObjectBasicLimitInformationInfo{})
	SizeOfJobObjectExtendedLimitInformationInfo   = binary.Size(JobObjectExtendedLimitInformationInfo{})
	SizeOfJobObjectBasicProcessIDListHeader       = binary.Size(JobObjectBasicProcessIDListHeader{})
)
