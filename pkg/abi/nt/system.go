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

// SYSTEM_INFORMATION_CLASS values.
const (
	SystemBasicInformation              = 0
	SystemCpuInformation                = 1
	SystemPerformanceInformation        = 2
	SystemTimeOfDayInformation          = 3
	SystemProcessInformation            = 5
	SystemEmulationBasicInformation     = 62
	SystemEmulationProcessorInformation = 63
	SystemNativeBasicInformation        = 114
)

// Processor architectures reported in SystemCpuInformation.
const (
	PROCESSOR_ARCHITECTURE_INTEL = 0
	PROCESSOR_ARCHITECTURE_ARM   = 5
	PROCESSOR_ARCHITECTURE_AMD64 = 9
	PROCESSOR_ARCHITECTURE_ARM64 = 12
)

// SystemBasicInformationInfo corresponds to SYSTEM_BASIC_INFORMATION.
type SystemBasicInformationInfo struct {
	Unknown                      uint32
	KeMaximumIncrement           uint32
	PageSize                     uint32
	MmNumberOfPhysicalPages      uint32
	MmLowestPhysicalPage         uint32
	MmHighestPhysicalPage        uint32
	AllocationGranularity        uint32
	_                            uint32
	LowestUserAddress            uint64
	HighestUserAddress           uint64
	ActiveProcessorsAffinityMask uint64
	NumberOfProcessors           uint8
	_                            [7]uint8
}

// SystemCPUInformationInfo corresponds to SYSTEM_CPU_INFORMATION. The layout
// is the same at every width.
type SystemCPUInformationInfo struct {
	ProcessorArchitecture uint16
	ProcessorLevel        uint16
	ProcessorRevision     uint16
	MaximumProcessors     uint16
	ProcessorFeatureBits  uint32
}

// SystemTimeOfDayInformationInfo corresponds to
// SYSTEM_TIMEOFDAY_INFORMATION. The layout is the same at every width.
type SystemTimeOfDayInformationInfo struct {
	BootTime      int64
	SystemTime    int64
	TimeZoneBias  int64
	TimeZoneID    uint32
	Reserved      uint32
	BootTimeBias  uint64
	SleepTimeBias uint64
}

// Sizes of the structures above.
var (
	SizeOfSystemBasicInformationInfo     = binary.Size(SystemBasicInformationInfo{})
	SizeOfSystemCPUInformationInfo       = binary.Size(SystemCPUInformationInfo{})
	SizeOfSystemTimeOfDayInformationInfo = binary.Size(SystemTimeOfDayInformationInfo{})
)
