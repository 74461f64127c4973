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

// MEMORY_INFORMATION_CLASS values.
const (
	MemoryBasicInformation          = 0
	MemoryWorkingSetInformation     = 1
	MemoryMappedFilenameInformation = 2
	MemoryRegionInformation         = 3
)

// MemoryBasicInformationInfo corresponds to MEMORY_BASIC_INFORMATION.
type MemoryBasicInformationInfo struct {
	BaseAddress       uint64
	AllocationBase    uint64
	AllocationProtect uint32
	_                 uint32
	RegionSize        uint64
	State             uint32
	Protect           uint32
	Type              uint32
	_                 uint32
}

// SizeOfMemoryBasicInformationInfo is the size of MemoryBasicInformationInfo.
var SizeOfMemoryBasicInformationInfo = binary.Size(MemoryBasicInformationInfo{})
