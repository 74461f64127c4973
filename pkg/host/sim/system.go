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

package sim

import (
	"context"
	"fmt"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
)

// QuerySystemInformation implements host.Kernel.QuerySystemInformation.
func (h *Host) QuerySystemInformation(ctx context.Context, class uint32, buf hostarch.Buffer) (uint32, error) {
	switch class {
	case nt.SystemBasicInformation, nt.SystemNativeBasicInformation, nt.SystemEmulationBasicInformation:
		return fillFixed(buf, &nt.SystemBasicInformationInfo{
			KeMaximumIncrement:           156250,
			PageSize:                     hostarch.PageSize,
			MmNumberOfPhysicalPages:      0x3fffff,
			MmLowestPhysicalPage:         1,
			MmHighestPhysicalPage:        0x3fffff,
			AllocationGranularity:        hostarch.AllocationGranularity,
			LowestUserAddress:            LowestUserAddress,
			HighestUserAddress:           HighestUserAddress,
			ActiveProcessorsAffinityMask: h.affinityMask(),
			NumberOfProcessors:           uint8(min(h.opts.Processors, 255)),
		})
	case nt.SystemCpuInformation:
		return fillFixed(buf, h.cpuInfo(h.opts.ProcessorArchitecture))
	case nt.SystemEmulationProcessorInformation:
		return fillFixed(buf, h.cpuInfo(h.opts.EmulatedArchitecture))
	case nt.SystemTimeOfDayInformation:
		return fillFixed(buf, &nt.SystemTimeOfDayInformationInfo{
			BootTime:   nt.TimeToNT(h.boot),
			SystemTime: nt.TimeToNT(h.now()),
		})
	default:
		return 0, fmt.Errorf("system information class %d: %w", class, ntstatus.StatusInvalidInfoClass)
	}
}

func (h *Host) cpuInfo(arch uint16) *nt.SystemCPUInformationInfo {
	return &nt.SystemCPUInformationInfo{
		ProcessorArchitecture: arch,
		ProcessorLevel:        6,
		ProcessorRevision:     0x5507,
		MaximumProcessors:     uint16(min(h.opts.Processors, 0xffff)),
	}
}
