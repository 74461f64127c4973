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

// PROCESSINFOCLASS values.
const (
	ProcessBasicInformation     = 0
	ProcessVmCounters           = 3
	ProcessTimes                = 4
	ProcessDebugPort            = 7
	ProcessDefaultHardErrorMode = 12
	ProcessHandleCount          = 20
	ProcessAffinityMask         = 21
	ProcessWow64Information     = 26
	ProcessImageFileName        = 27
	ProcessExecuteFlags         = 34
)

// THREADINFOCLASS values.
const (
	ThreadBasicInformation = 0
	ThreadTimes            = 1
)

// ProcessBasicInformationInfo corresponds to PROCESS_BASIC_INFORMATION.
type ProcessBasicInformationInfo struct {
	ExitStatus                   uint32
	_                            uint32
	PebBaseAddress               uint64
	AffinityMask                 uint64
	BasePriority                 int32
	_                            uint32
	UniqueProcessID              uint64
	InheritedFromUniqueProcessID uint64
}

// VMCounters corresponds to VM_COUNTERS.
type VMCounters struct {
	PeakVirtualSize            uint64
	VirtualSize                uint64
	PageFaultCount             uint32
	_                          uint32
	PeakWorkingSetSize         uint64
	WorkingSetSize             uint64
	QuotaPeakPagedPoolUsage    uint64
	QuotaPagedPoolUsage        uint64
	QuotaPeakNonPagedPoolUsage uint64
	QuotaNonPagedPoolUsage     uint64
	PagefileUsage              uint64
	PeakPagefileUsage          uint64
}

// KernelUserTimes corresponds to KERNEL_USER_TIMES. The layout is the same
// at every width.
type KernelUserTimes struct {
	CreateTime int64
	ExitTime   int64
	KernelTime int64
	UserTime   int64
}

// ThreadBasicInformationInfo corresponds to THREAD_BASIC_INFORMATION.
type ThreadBasicInformationInfo struct {
	ExitStatus     uint32
	_              uint32
	TebBaseAddress uint64
	ClientID       ClientID
	AffinityMask   uint64
	Priority       int32
	BasePriority   int32
}

// CurDir corresponds to CURDIR.
type CurDir struct {
	DosPath UnicodeString
	Handle  uint64
}

// RTLUserProcessParameters corresponds to the leading part of
// RTL_USER_PROCESS_PARAMETERS, up to and including RuntimeInfo. Parameters
// are always in normalized form: string buffers are absolute pointers.
type RTLUserProcessParameters struct {
	MaximumLength    uint32
	Length           uint32
	Flags            uint32
	DebugFlags       uint32
	ConsoleHandle    uint64
	ConsoleFlags     uint32
	_                uint32
	StdInput         uint64
	StdOutput        uint64
	StdError         uint64
	CurrentDirectory CurDir
	DllPath          UnicodeString
	ImagePathName    UnicodeString
	CommandLine      UnicodeString
	Environment      uint64
	X                uint32
	Y                uint32
	XSize            uint32
	YSize            uint32
	XCountChars      uint32
	YCountChars      uint32
	FillAttribute    uint32
	WindowFlags      uint32
	ShowWindowFlags  uint32
	_                uint32
	WindowTitle      UnicodeString
	Desktop          UnicodeString
	ShellInfo        UnicodeString
	RuntimeInfo      UnicodeString
}

// PROCESS_PARAMS_FLAG_NORMALIZED marks parameters holding absolute pointers.
const PROCESS_PARAMS_FLAG_NORMALIZED = 1

// PS_ATTRIBUTE values used by NtCreateUserProcess.
const (
	PS_ATTRIBUTE_INPUT    = 0x20000
	PS_ATTRIBUTE_ADDITIVE = 0x40000
	PS_ATTRIBUTE_THREAD   = 0x10000

	PS_ATTRIBUTE_PARENT_PROCESS = 0x60000
	PS_ATTRIBUTE_DEBUG_PORT     = 0x60001
	PS_ATTRIBUTE_TOKEN          = 0x60002
	PS_ATTRIBUTE_CLIENT_ID      = 0x10003
	PS_ATTRIBUTE_IMAGE_NAME     = 0x20005
	PS_ATTRIBUTE_IMAGE_INFO     = 0x00006
)

// PSAttribute corresponds to PS_ATTRIBUTE.
type PSAttribute struct {
	Attribute    uint64
	Size         uint64
	Value        uint64
	ReturnLength uint64
}

// PSAttributeListHeader is the fixed part of PS_ATTRIBUTE_LIST. TotalLength
// covers the header and all attributes.
type PSAttributeListHeader struct {
	TotalLength uint64
}

// Sizes of the structures above.
var (
	SizeOfProcessBasicInformationInfo = binary.Size(ProcessBasicInformationInfo{})
	SizeOfVMCounters                  = binary.Size(VMCounters{})
	SizeOfKernelUserTimes             = binary.Size(KernelUserTimes{})
	SizeOfThreadBasicInformationInfo  = binary.Size(ThreadBasicInformationInfo{})
	SizeOfRTLUserProcessParameters    = binary.Size(RTLUserProcessParameters{})
	SizeOfPSAttribute                 = binary.Size(PSAttribute{})
	SizeOfPSAttributeListHeader       = binary.Size(PSAttributeListHeader{})
)
