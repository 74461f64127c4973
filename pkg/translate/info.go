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

package translate

import (
	"fmt"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
)

// GuestHighestUserAddress is the highest address reported to the guest.
const GuestHighestUserAddress = 0x7ffeffff

// ProcessBasicInformation32 narrows PROCESS_BASIC_INFORMATION.
func ProcessBasicInformation32(w nt.ProcessBasicInformationInfo) (nt32.ProcessBasicInformationInfo, error) {
	peb, err := NarrowPtr(w.PebBaseAddress)
	if err != nil {
		return nt32.ProcessBasicInformationInfo{}, err
	}
	pid, err := NarrowULongPtr(w.UniqueProcessID)
	if err != nil {
		return nt32.ProcessBasicInformationInfo{}, err
	}
	ppid, err := NarrowULongPtr(w.InheritedFromUniqueProcessID)
	if err != nil {
		return nt32.ProcessBasicInformationInfo{}, err
	}
	return nt32.ProcessBasicInformationInfo{
		ExitStatus:                   w.ExitStatus,
		PebBaseAddress:               peb,
		AffinityMask:                 NarrowAffinity(w.AffinityMask),
		BasePriority:                 w.BasePriority,
		UniqueProcessID:              pid,
		InheritedFromUniqueProcessID: ppid,
	}, nil
}

// ProcessBasicInformation64 widens PROCESS_BASIC_INFORMATION.
func ProcessBasicInformation64(n nt32.ProcessBasicInformationInfo) nt.ProcessBasicInformationInfo {
	return nt.ProcessBasicInformationInfo{
		ExitStatus:                   n.ExitStatus,
		PebBaseAddress:               Ptr(n.PebBaseAddress),
		AffinityMask:                 uint64(n.AffinityMask),
		BasePriority:                 n.BasePriority,
		UniqueProcessID:              uint64(n.UniqueProcessID),
		InheritedFromUniqueProcessID: uint64(n.InheritedFromUniqueProcessID),
	}
}

// VMCounters32 narrows VM_COUNTERS. The counters are statistics and
// saturate rather than fail.
func VMCounters32(w nt.VMCounters) (nt32.VMCounters, error) {
	return nt32.VMCounters{
		PeakVirtualSize:            SaturateSize(w.PeakVirtualSize),
		VirtualSize:                SaturateSize(w.VirtualSize),
		PageFaultCount:             w.PageFaultCount,
		PeakWorkingSetSize:         SaturateSize(w.PeakWorkingSetSize),
		WorkingSetSize:             SaturateSize(w.WorkingSetSize),
		QuotaPeakPagedPoolUsage:    SaturateSize(w.QuotaPeakPagedPoolUsage),
		QuotaPagedPoolUsage:        SaturateSize(w.QuotaPagedPoolUsage),
		QuotaPeakNonPagedPoolUsage: SaturateSize(w.QuotaPeakNonPagedPoolUsage),
		QuotaNonPagedPoolUsage:     SaturateSize(w.QuotaNonPagedPoolUsage),
		PagefileUsage:              SaturateSize(w.PagefileUsage),
		PeakPagefileUsage:          SaturateSize(w.PeakPagefileUsage),
	}, nil
}

// VMCounters64 widens VM_COUNTERS.
func VMCounters64(n nt32.VMCounters) nt.VMCounters {
	return nt.VMCounters{
		PeakVirtualSize:            uint64(n.PeakVirtualSize),
		VirtualSize:                uint64(n.VirtualSize),
		PageFaultCount:             n.PageFaultCount,
		PeakWorkingSetSize:         uint64(n.PeakWorkingSetSize),
		WorkingSetSize:             uint64(n.WorkingSetSize),
		QuotaPeakPagedPoolUsage:    uint64(n.QuotaPeakPagedPoolUsage),
		QuotaPagedPoolUsage:        uint64(n.QuotaPagedPoolUsage),
		QuotaPeakNonPagedPoolUsage: uint64(n.QuotaPeakNonPagedPoolUsage),
		QuotaNonPagedPoolUsage:     uint64(n.QuotaNonPagedPoolUsage),
		PagefileUsage:              uint64(n.PagefileUsage),
		PeakPagefileUsage:          uint64(n.PeakPagefileUsage),
	}
}

// ThreadBasicInformation32 narrows THREAD_BASIC_INFORMATION.
func ThreadBasicInformation32(w nt.ThreadBasicInformationInfo) (nt32.ThreadBasicInformationInfo, error) {
	teb, err := NarrowPtr(w.TebBaseAddress)
	if err != nil {
		return nt32.ThreadBasicInformationInfo{}, err
	}
	cid, err := ClientID32(w.ClientID)
	if err != nil {
		return nt32.ThreadBasicInformationInfo{}, err
	}
	return nt32.ThreadBasicInformationInfo{
		ExitStatus:     w.ExitStatus,
		TebBaseAddress: teb,
		ClientID:       cid,
		AffinityMask:   NarrowAffinity(w.AffinityMask),
		Priority:       w.Priority,
		BasePriority:   w.BasePriority,
	}, nil
}

// ThreadBasicInformation64 widens THREAD_BASIC_INFORMATION.
func ThreadBasicInformation64(n nt32.ThreadBasicInformationInfo) nt.ThreadBasicInformationInfo {
	return nt.ThreadBasicInformationInfo{
		ExitStatus:     n.ExitStatus,
		TebBaseAddress: Ptr(n.TebBaseAddress),
		ClientID:       ClientID64(n.ClientID),
		AffinityMask:   uint64(n.AffinityMask),
		Priority:       n.Priority,
		BasePriority:   n.BasePriority,
	}
}

// MemoryBasicInformation32 narrows MEMORY_BASIC_INFORMATION. A free region
// extending past the guest address limit is clipped to it; any other
// out-of-range value overflows.
func MemoryBasicInformation32(w nt.MemoryBasicInformationInfo) (nt32.MemoryBasicInformationInfo, error) {
	base, err := NarrowPtr(w.BaseAddress)
	if err != nil {
		return nt32.MemoryBasicInformationInfo{}, err
	}
	allocBase, err := NarrowPtr(w.AllocationBase)
	if err != nil {
		return nt32.MemoryBasicInformationInfo{}, err
	}
	size := w.RegionSize
	if w.State == nt.MEM_FREE && w.BaseAddress+size > hostarch.Narrow {
		size = hostarch.Narrow - w.BaseAddress
	}
	if w.BaseAddress+size > hostarch.Narrow {
		return nt32.MemoryBasicInformationInfo{}, fmt.Errorf("region [%#x, +%#x) out of guest range: %w", w.BaseAddress, w.RegionSize, ntstatus.StatusIntegerOverflow)
	}
	return nt32.MemoryBasicInformationInfo{
		BaseAddress:       base,
		AllocationBase:    allocBase,
		AllocationProtect: w.AllocationProtect,
		RegionSize:        uint32(size),
		State:             w.State,
		Protect:           w.Protect,
		Type:              w.Type,
	}, nil
}

// MemoryBasicInformation64 widens MEMORY_BASIC_INFORMATION.
func MemoryBasicInformation64(n nt32.MemoryBasicInformationInfo) nt.MemoryBasicInformationInfo {
	return nt.MemoryBasicInformationInfo{
		BaseAddress:       Ptr(n.BaseAddress),
		AllocationBase:    Ptr(n.AllocationBase),
		AllocationProtect: n.AllocationProtect,
		RegionSize:        uint64(n.RegionSize),
		State:             n.State,
		Protect:           n.Protect,
		Type:              n.Type,
	}
}

// NarrowAffinity narrows a processor affinity mask. Only the first 32
// processors are visible to the guest, so the high bits are dropped rather
// than reported as an overflow.
func NarrowAffinity(m uint64) uint32 {
	return uint32(m)
}

// SystemBasicInformation32 narrows SYSTEM_BASIC_INFORMATION as the guest
// sees it: the user address range ends at GuestHighestUserAddress and only
// the first 32 processors are visible.
func SystemBasicInformation32(w nt.SystemBasicInformationInfo) (nt32.SystemBasicInformationInfo, error) {
	low, err := NarrowPtr(w.LowestUserAddress)
	if err != nil {
		return nt32.SystemBasicInformationInfo{}, err
	}
	high := uint32(GuestHighestUserAddress)
	if w.HighestUserAddress < GuestHighestUserAddress {
		high = uint32(w.HighestUserAddress)
	}
	nproc := w.NumberOfProcessors
	if nproc > 32 {
		nproc = 32
	}
	return nt32.SystemBasicInformationInfo{
		Unknown:                      w.Unknown,
		KeMaximumIncrement:           w.KeMaximumIncrement,
		PageSize:                     w.PageSize,
		MmNumberOfPhysicalPages:      w.MmNumberOfPhysicalPages,
		MmLowestPhysicalPage:         w.MmLowestPhysicalPage,
		MmHighestPhysicalPage:        w.MmHighestPhysicalPage,
		AllocationGranularity:        w.AllocationGranularity,
		LowestUserAddress:            low,
		HighestUserAddress:           high,
		ActiveProcessorsAffinityMask: NarrowAffinity(w.ActiveProcessorsAffinityMask),
		NumberOfProcessors:           nproc,
	}, nil
}

// SystemBasicInformation64 widens SYSTEM_BASIC_INFORMATION.
func SystemBasicInformation64(n nt32.SystemBasicInformationInfo) nt.SystemBasicInformationInfo {
	return nt.SystemBasicInformationInfo{
		Unknown:                      n.Unknown,
		KeMaximumIncrement:           n.KeMaximumIncrement,
		PageSize:                     n.PageSize,
		MmNumberOfPhysicalPages:      n.MmNumberOfPhysicalPages,
		MmLowestPhysicalPage:         n.MmLowestPhysicalPage,
		MmHighestPhysicalPage:        n.MmHighestPhysicalPage,
		AllocationGranularity:        n.AllocationGranularity,
		LowestUserAddress:            Ptr(n.LowestUserAddress),
		HighestUserAddress:           Ptr(n.HighestUserAddress),
		ActiveProcessorsAffinityMask: uint64(n.ActiveProcessorsAffinityMask),
		NumberOfProcessors:           n.NumberOfProcessors,
	}
}

// JobBasicLimit32 narrows JOBOBJECT_BASIC_LIMIT_INFORMATION.
func JobBasicLimit32(w nt.JobObjectBasicLimitInformationInfo) (nt32.JobObjectBasicLimitInformationInfo, error) {
	return nt32.JobObjectBasicLimitInformationInfo{
		PerProcessUserTimeLimit: w.PerProcessUserTimeLimit,
		PerJobUserTimeLimit:     w.PerJobUserTimeLimit,
		LimitFlags:              w.LimitFlags,
		MinimumWorkingSetSize:   SaturateSize(w.MinimumWorkingSetSize),
		MaximumWorkingSetSize:   SaturateSize(w.MaximumWorkingSetSize),
		ActiveProcessLimit:      w.ActiveProcessLimit,
		Affinity:                NarrowAffinity(w.Affinity),
		PriorityClass:           w.PriorityClass,
		SchedulingClass:         w.SchedulingClass,
	}, nil
}

// JobBasicLimit64 widens JOBOBJECT_BASIC_LIMIT_INFORMATION.
func JobBasicLimit64(n nt32.JobObjectBasicLimitInformationInfo) nt.JobObjectBasicLimitInformationInfo {
	return nt.JobObjectBasicLimitInformationInfo{
		PerProcessUserTimeLimit: n.PerProcessUserTimeLimit,
		PerJobUserTimeLimit:     n.PerJobUserTimeLimit,
		LimitFlags:              n.LimitFlags,
		MinimumWorkingSetSize:   uint64(n.MinimumWorkingSetSize),
		MaximumWorkingSetSize:   uint64(n.MaximumWorkingSetSize),
		ActiveProcessLimit:      n.ActiveProcessLimit,
		Affinity:                uint64(n.Affinity),
		PriorityClass:           n.PriorityClass,
		SchedulingClass:         n.SchedulingClass,
	}
}

// JobExtendedLimit32 narrows JOBOBJECT_EXTENDED_LIMIT_INFORMATION.
func JobExtendedLimit32(w nt.JobObjectExtendedLimitInformationInfo) (nt32.JobObjectExtendedLimitInformationInfo, error) {
	basic, err := JobBasicLimit32(w.BasicLimitInformation)
	if err != nil {
		return nt32.JobObjectExtendedLimitInformationInfo{}, err
	}
	return nt32.JobObjectExtendedLimitInformationInfo{
		BasicLimitInformation: basic,
		IoInfo:                nt32.IOCounters(w.IoInfo),
		ProcessMemoryLimit:    SaturateSize(w.ProcessMemoryLimit),
		JobMemoryLimit:        SaturateSize(w.JobMemoryLimit),
		PeakProcessMemoryUsed: SaturateSize(w.PeakProcessMemoryUsed),
		PeakJobMemoryUsed:     SaturateSize(w.PeakJobMemoryUsed),
	}, nil
}

// JobExtendedLimit64 widens JOBOBJECT_EXTENDED_LIMIT_INFORMATION.
func JobExtendedLimit64(n nt32.JobObjectExtendedLimitInformationInfo) nt.JobObjectExtendedLimitInformationInfo {
	return nt.JobObjectExtendedLimitInformationInfo{
		BasicLimitInformation: JobBasicLimit64(n.BasicLimitInformation),
		IoInfo:                nt.IOCounters(n.IoInfo),
		ProcessMemoryLimit:    uint64(n.ProcessMemoryLimit),
		JobMemoryLimit:        uint64(n.JobMemoryLimit),
		PeakProcessMemoryUsed: uint64(n.PeakProcessMemoryUsed),
		PeakJobMemoryUsed:     uint64(n.PeakJobMemoryUsed),
	}
}

// processIDListImage converts JOBOBJECT_BASIC_PROCESS_ID_LIST: a count
// header followed by ULONG_PTR process ids.
func processIDListImage(wide hostarch.Buffer, _ uint32) ([]byte, error) {
	var hdr nt.JobObjectBasicProcessIDListHeader
	if err := decode(wide, &hdr); err != nil {
		return nil, err
	}
	n := int(hdr.NumberOfProcessIdsInList)
	if avail := (wide.Len() - nt.SizeOfJobObjectBasicProcessIDListHeader) / 8; n > avail {
		n = avail
	}
	img := encode(&hdr)
	for i := 0; i < n; i++ {
		var id uint64
		if err := decode(wide.Slice(nt.SizeOfJobObjectBasicProcessIDListHeader+8*i, 8), &id); err != nil {
			return nil, err
		}
		pid, err := NarrowULongPtr(id)
		if err != nil {
			return nil, err
		}
		img = encode(img, pid)
	}
	return img, nil
}

func processIDListGrow(n uint64) uint64 {
	hdr := uint64(nt.SizeOfJobObjectBasicProcessIDListHeader)
	if n <= hdr {
		return hdr
	}
	return hdr + 2*(n-hdr)
}

// pointerValue converts a record holding one wide pointer.
func pointerValue(name string) *Class {
	return fixed(name,
		func(w uint64) (uint32, error) { return NarrowPtr(w) },
		nil)
}

// Information classes. Each is a package-level value so that conversions
// can be tested without a host.
var (
	processBasic       = fixed("ProcessBasicInformation", ProcessBasicInformation32, ProcessBasicInformation64)
	processVMCounters  = fixed("ProcessVmCounters", VMCounters32, VMCounters64)
	processTimes       = same[nt.KernelUserTimes]("ProcessTimes")
	processHardError   = same[uint32]("ProcessDefaultHardErrorMode")
	processHandleCount = same[uint32]("ProcessHandleCount")
	processExecute     = same[uint32]("ProcessExecuteFlags")
	processWow64       = pointerValue("ProcessWow64Information")
	processImageName   = &Class{
		Name:     "ProcessImageFileName",
		Grow:     func(n uint64) uint64 { return n + uint64(nt.SizeOfUnicodeString-nt32.SizeOfUnicodeString) },
		ToNarrow: unicodeStringImage,
	}
	processDebugPort = fixed("ProcessDebugPort",
		func(w uint64) (uint32, error) { return NarrowLongPtr(int64(w)) },
		nil)
	processAffinity = fixed("ProcessAffinityMask",
		func(w uint64) (uint32, error) { return NarrowAffinity(w), nil },
		func(n uint32) uint64 { return uint64(n) })

	threadBasic = fixed("ThreadBasicInformation", ThreadBasicInformation32, ThreadBasicInformation64)
	threadTimes = same[nt.KernelUserTimes]("ThreadTimes")

	memoryBasic          = fixed("MemoryBasicInformation", MemoryBasicInformation32, MemoryBasicInformation64)
	memoryMappedFilename = &Class{
		Name:     "MemoryMappedFilenameInformation",
		Grow:     processImageName.Grow,
		ToNarrow: unicodeStringImage,
	}

	systemBasic          = fixed("SystemBasicInformation", SystemBasicInformation32, SystemBasicInformation64)
	systemEmulationBasic = fixed("SystemEmulationBasicInformation", SystemBasicInformation32, SystemBasicInformation64)
	systemCPU            = same[nt.SystemCPUInformationInfo]("SystemCpuInformation")
	systemTimeOfDay      = same[nt.SystemTimeOfDayInformationInfo]("SystemTimeOfDayInformation")

	jobAccounting    = same[nt.JobObjectBasicAccountingInformationInfo]("JobObjectBasicAccountingInformation")
	jobBasicLimit    = fixed("JobObjectBasicLimitInformation", JobBasicLimit32, JobBasicLimit64)
	jobExtendedLimit = fixed("JobObjectExtendedLimitInformation", JobExtendedLimit32, JobExtendedLimit64)
	jobProcessIDList = &Class{
		Name:     "JobObjectBasicProcessIdList",
		Grow:     processIDListGrow,
		ToNarrow: processIDListImage,
	}

	keyValueBasic   = opaque("KeyValueBasicInformation")
	keyValueFull    = opaque("KeyValueFullInformation")
	keyValuePartial = opaque("KeyValuePartialInformation")

	securityDescriptor = &Class{
		Name:     "SecurityDescriptor",
		Grow:     func(n uint64) uint64 { return n + uint64(SecurityDescriptorHeaderDelta) },
		ToNarrow: SecurityDescriptorImage,
	}
)

func invalidClass(kind string, class uint32) error {
	return fmt.Errorf("%s information class %d: %w", kind, class, ntstatus.StatusInvalidInfoClass)
}

// ProcessClass returns the query conversion for a process information
// class.
func ProcessClass(class uint32) (*Class, error) {
	switch class {
	case nt.ProcessBasicInformation:
		return processBasic, nil
	case nt.ProcessVmCounters:
		return processVMCounters, nil
	case nt.ProcessTimes:
		return processTimes, nil
	case nt.ProcessDebugPort:
		return processDebugPort, nil
	case nt.ProcessDefaultHardErrorMode:
		return processHardError, nil
	case nt.ProcessHandleCount:
		return processHandleCount, nil
	case nt.ProcessWow64Information:
		return processWow64, nil
	case nt.ProcessImageFileName:
		return processImageName, nil
	case nt.ProcessExecuteFlags:
		return processExecute, nil
	default:
		return nil, invalidClass("process", class)
	}
}

// ProcessSetClass returns the set conversion for a process information
// class.
func ProcessSetClass(class uint32) (*Class, error) {
	switch class {
	case nt.ProcessDefaultHardErrorMode:
		return processHardError, nil
	case nt.ProcessAffinityMask:
		return processAffinity, nil
	case nt.ProcessExecuteFlags:
		return processExecute, nil
	default:
		return nil, invalidClass("process", class)
	}
}

// ThreadClass returns the conversion for a thread information class.
func ThreadClass(class uint32) (*Class, error) {
	switch class {
	case nt.ThreadBasicInformation:
		return threadBasic, nil
	case nt.ThreadTimes:
		return threadTimes, nil
	default:
		return nil, invalidClass("thread", class)
	}
}

// MemoryClass returns the conversion for a memory information class.
func MemoryClass(class uint32) (*Class, error) {
	switch class {
	case nt.MemoryBasicInformation:
		return memoryBasic, nil
	case nt.MemoryMappedFilenameInformation:
		return memoryMappedFilename, nil
	default:
		return nil, invalidClass("memory", class)
	}
}

// SystemClass returns the conversion for a system information class.
func SystemClass(class uint32) (*Class, error) {
	switch class {
	case nt.SystemBasicInformation, nt.SystemNativeBasicInformation:
		return systemBasic, nil
	case nt.SystemEmulationBasicInformation:
		return systemEmulationBasic, nil
	case nt.SystemCpuInformation, nt.SystemEmulationProcessorInformation:
		return systemCPU, nil
	case nt.SystemTimeOfDayInformation:
		return systemTimeOfDay, nil
	default:
		return nil, invalidClass("system", class)
	}
}

// JobClass returns the query conversion for a job information class.
func JobClass(class uint32) (*Class, error) {
	switch class {
	case nt.JobObjectBasicAccountingInformation:
		return jobAccounting, nil
	case nt.JobObjectBasicLimitInformation:
		return jobBasicLimit, nil
	case nt.JobObjectBasicProcessIdList:
		return jobProcessIDList, nil
	case nt.JobObjectExtendedLimitInformation:
		return jobExtendedLimit, nil
	default:
		return nil, invalidClass("job", class)
	}
}

// JobSetClass returns the set conversion for a job information class.
func JobSetClass(class uint32) (*Class, error) {
	switch class {
	case nt.JobObjectBasicLimitInformation:
		return jobBasicLimit, nil
	case nt.JobObjectExtendedLimitInformation:
		return jobExtendedLimit, nil
	default:
		return nil, invalidClass("job", class)
	}
}

// KeyValueClass returns the conversion for a registry value information
// class.
func KeyValueClass(class uint32) (*Class, error) {
	switch class {
	case nt.KeyValueBasicInformation:
		return keyValueBasic, nil
	case nt.KeyValueFullInformation:
		return keyValueFull, nil
	case nt.KeyValuePartialInformation:
		return keyValuePartial, nil
	default:
		return nil, invalidClass("key value", class)
	}
}

// SecurityDescriptorClass returns the conversion for security descriptors
// returned by security queries.
func SecurityDescriptorClass() *Class {
	return securityDescriptor
}
