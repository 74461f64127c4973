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

import "gvisor.dev/compat32/pkg/binary"

// ProcessBasicInformationInfo corresponds to PROCESS_BASIC_INFORMATION32.
type ProcessBasicInformationInfo struct {
	ExitStatus                   uint32
	PebBaseAddress               uint32
	AffinityMask                 uint32
	BasePriority                 int32
	UniqueProcessID              uint32
	InheritedFromUniqueProcessID uint32
}

// VMCounters corresponds to VM_COUNTERS32.
type VMCounters struct {
	PeakVirtualSize            uint32
	VirtualSize                uint32
	PageFaultCount             uint32
	PeakWorkingSetSize         uint32
	WorkingSetSize             uint32
	QuotaPeakPagedPoolUsage    uint32
	QuotaPagedPoolUsage        uint32
	QuotaPeakNonPagedPoolUsage uint32
	QuotaNonPagedPoolUsage     uint32
	PagefileUsage              uint32
	PeakPagefileUsage          uint32
}

// ThreadBasicInformationInfo corresponds to THREAD_BASIC_INFORMATION32.
type ThreadBasicInformationInfo struct {
	ExitStatus     uint32
	TebBaseAddress uint32
	ClientID       ClientID
	AffinityMask   uint32
	Priority       int32
	BasePriority   int32
}

// MemoryBasicInformationInfo corresponds to MEMORY_BASIC_INFORMATION32.
type MemoryBasicInformationInfo struct {
	BaseAddress       uint32
	AllocationBase    uint32
	AllocationProtect uint32
	RegionSize        uint32
	State             uint32
	Protect           uint32
	Type              uint32
}

// SystemBasicInformationInfo corresponds to SYSTEM_BASIC_INFORMATION32.
type SystemBasicInformationInfo struct {
	Unknown                      uint32
	KeMaximumIncrement           uint32
	PageSize                     uint32
	MmNumberOfPhysicalPages      uint32
	MmLowestPhysicalPage         uint32
	MmHighestPhysicalPage        uint32
	AllocationGranularity        uint32
	LowestUserAddress            uint32
	HighestUserAddress           uint32
	ActiveProcessorsAffinityMask uint32
	NumberOfProcessors           uint8
	_                            [3]uint8
}

// JobObjectBasicLimitInformationInfo corresponds to
// JOBOBJECT_BASIC_LIMIT_INFORMATION32. The 64-bit time limits keep the
// structure 8-byte aligned, hence the trailing padding.
type JobObjectBasicLimitInformationInfo struct {
	PerProcessUserTimeLimit int64
	PerJobUserTimeLimit     int64
	LimitFlags              uint32
	MinimumWorkingSetSize   uint32
	MaximumWorkingSetSize   uint32
	ActiveProcessLimit      uint32
	Affinity                uint32
	PriorityClass           uint32
	SchedulingClass         uint32
	_                       uint32
}

// IOCounters mirrors nt.IOCounters.
type IOCounters struct {
	ReadOperationCount  uint64
	WriteOperationCount uint64
	OtherOperationCount uint64
	ReadTransferCount   uint64
	WriteTransferCount  uint64
	OtherTransferCount  uint64
}

// JobObjectExtendedLimitInformationInfo corresponds to
// JOBOBJECT_EXTENDED_LIMIT_INFORMATION32.
type JobObjectExtendedLimitInformationInfo struct {
	BasicLimitInformation JobObjectBasicLimitInformationInfo
	IoInfo                IOCounters
	ProcessMemoryLimit    uint32
	JobMemoryLimit        uint32
	PeakProcessMemoryUsed uint32
	PeakJobMemoryUsed     uint32
}

// ExceptionRecord corresponds to EXCEPTION_RECORD32.
type ExceptionRecord struct {
	ExceptionCode        uint32
	ExceptionFlags       uint32
	ExceptionRecord      uint32
	ExceptionAddress     uint32
	NumberParameters     uint32
	ExceptionInformation [15]uint32
}

// CurDir corresponds to CURDIR32.
type CurDir struct {
	DosPath UnicodeString
	Handle  uint32
}

// RTLUserProcessParameters corresponds to the leading part of
// RTL_USER_PROCESS_PARAMETERS32; see nt.RTLUserProcessParameters.
type RTLUserProcessParameters struct {
	MaximumLength    uint32
	Length           uint32
	Flags            uint32
	DebugFlags       uint32
	ConsoleHandle    uint32
	ConsoleFlags     uint32
	StdInput         uint32
	StdOutput        uint32
	StdError         uint32
	CurrentDirectory CurDir
	DllPath          UnicodeString
	ImagePathName    UnicodeString
	CommandLine      UnicodeString
	Environment      uint32
	X                uint32
	Y                uint32
	XSize            uint32
	YSize            uint32
	XCountChars      uint32
	YCountChars      uint32
	FillAttribute    uint32
	WindowFlags      uint32
	ShowWindowFlags  uint32
	WindowTitle      UnicodeString
	Desktop          UnicodeString
	ShellInfo        UnicodeString
	RuntimeInfo      UnicodeString
}

// PSAttribute corresponds to PS_ATTRIBUTE32.
type PSAttribute struct {
	Attribute    uint32
	Size         uint32
	Value        uint32
	ReturnLength uint32
}

// PSAttributeListHeader is the fixed part of PS_ATTRIBUTE_LIST32.
type PSAttributeListHeader struct {
	TotalLength uint32
}

// Sizes of the structures above.
var (
	SizeOfProcessBasicInformationInfo           = binary.Size(ProcessBasicInformationInfo{})
	SizeOfVMCounters                            = binary.Size(VMCounters{})
	SizeOfThreadBasicInformationInfo            = binary.Size(ThreadBasicInformationInfo{})
	SizeOfMemoryBasicInformationInfo            = binary.Size(MemoryBasicInformationInfo{})
	SizeOfSystemBasicInformationInfo            = binary.Size(SystemBasicInformationInfo{})
	SizeOfJobObjectBasicLimitInformationInfo    = binary.Size(JobObjectBasicLimitInformationInfo{})
	SizeOfJobObjectExtendedLimitInformationInfo = binary.Size(JobObjectExtendedLimitInformationInfo{})
	SizeOfExceptionRecord                       = binary.Size(ExceptionRecord{})
	SizeOfRTLUserProcessParameters              = binary.Size(RTLUserProcessParameters{})
	SizeOfPSAttribute                           = binary.Size(PSAttribute{})
	SizeOfPSAttributeListHeader                 = binary.Size(PSAttributeListHeader{})
)
