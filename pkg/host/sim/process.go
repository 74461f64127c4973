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
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
	"gvisor.dev/compat32/pkg/usermem"
)

func marshal(v any) []byte {
	return binary.Marshal(nil, hostarch.ByteOrder, v)
}

// Simulated process layout.
const (
	pebAddress = 0x7ff5ffde000
	tebAddress = 0x7ff5ffdd000
)

// OpenProcess implements host.Kernel.OpenProcess.
func (h *Host) OpenProcess(ctx context.Context, access uint32, attrs hostarch.Addr, cid nt.ClientID) (nt.Handle, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	p, ok := h.processes[cid.UniqueProcess]
	if !ok {
		return 0, fmt.Errorf("process %#x: %w", cid.UniqueProcess, ntstatus.StatusInvalidCid)
	}
	return c.process.insert(p), nil
}

// TerminateProcess implements host.Kernel.TerminateProcess. A zero handle
// names the calling process.
func (h *Host) TerminateProcess(ctx context.Context, process nt.Handle, exitStatus ntstatus.Status) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	if process == 0 {
		process = nt.CurrentProcess
	}
	p, err := lookup[*Process](c, process)
	if err != nil {
		return err
	}
	if p.exited {
		return fmt.Errorf("process %#x: %w", p.ID, ntstatus.StatusProcessIsTerminating)
	}
	p.exited = true
	p.exitStatus = exitStatus
	if p.job != nil {
		p.job.terminated++
	}
	h.broadcast()
	return nil
}

func (h *Host) affinityMask() uint64 {
	if h.opts.Processors >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<h.opts.Processors - 1
}

func exitStatus(exited bool, s ntstatus.Status) uint32 {
	if !exited {
		return uint32(ntstatus.StatusPending)
	}
	return uint32(s)
}

// QueryInformationProcess implements host.Kernel.QueryInformationProcess.
func (h *Host) QueryInformationProcess(ctx context.Context, process nt.Handle, class uint32, buf hostarch.Buffer) (uint32, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	p, err := lookup[*Process](c, process)
	if err != nil {
		return 0, err
	}
	switch class {
	case nt.ProcessBasicInformation:
		return fillFixed(buf, &nt.ProcessBasicInformationInfo{
			ExitStatus:                   exitStatus(p.exited, p.exitStatus),
			PebBaseAddress:               pebAddress,
			AffinityMask:                 p.affinity,
			BasePriority:                 8,
			UniqueProcessID:              p.ID,
			InheritedFromUniqueProcessID: p.parent,
		})
	case nt.ProcessVmCounters:
		vsize := p.vm.virtualSize()
		return fillFixed(buf, &nt.VMCounters{
			PeakVirtualSize: vsize,
			VirtualSize:     vsize,
			WorkingSetSize:  vsize / 2,
			PagefileUsage:   vsize / 4,
		})
	case nt.ProcessTimes:
		return fillFixed(buf, &nt.KernelUserTimes{CreateTime: nt.TimeToNT(p.created)})
	case nt.ProcessDebugPort:
		return fillFixed(buf, new(uint64))
	case nt.ProcessDefaultHardErrorMode:
		return fillFixed(buf, &p.hardErrors)
	case nt.ProcessHandleCount:
		n := uint32(len(p.handles))
		return fillFixed(buf, &n)
	case nt.ProcessWow64Information:
		return fillFixed(buf, &p.Wow64)
	case nt.ProcessExecuteFlags:
		return fillFixed(buf, &p.execute)
	case nt.ProcessImageFileName:
		return fill(buf, unicodeStringAt(buf.Addr, p.ImageName), ntstatus.StatusInfoLengthMismatch)
	default:
		return 0, fmt.Errorf("process information class %d: %w", class, ntstatus.StatusInvalidInfoClass)
	}
}

// setFixed decodes buf into v, which buf must match in size.
func setFixed(buf hostarch.Buffer, v any) error {
	if buf.Len() != binary.Size(v) {
		return fmt.Errorf("%d bytes for %T: %w", buf.Len(), v, ntstatus.StatusInfoLengthMismatch)
	}
	binary.Unmarshal(buf.Data, hostarch.ByteOrder, v)
	return nil
}

// SetInformationProcess implements host.Kernel.SetInformationProcess.
func (h *Host) SetInformationProcess(ctx context.Context, process nt.Handle, class uint32, buf hostarch.Buffer) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	p, err := lookup[*Process](c, process)
	if err != nil {
		return err
	}
	switch class {
	case nt.ProcessDefaultHardErrorMode:
		return setFixed(buf, &p.hardErrors)
	case nt.ProcessExecuteFlags:
		return setFixed(buf, &p.execute)
	case nt.ProcessAffinityMask:
		var mask uint64
		if err := setFixed(buf, &mask); err != nil {
			return err
		}
		if mask == 0 || mask&^h.affinityMask() != 0 {
			return fmt.Errorf("affinity mask %#x: %w", mask, ntstatus.StatusInvalidParameter)
		}
		p.affinity = mask
		return nil
	default:
		return fmt.Errorf("process information class %d: %w", class, ntstatus.StatusInvalidInfoClass)
	}
}

// QueryInformationThread implements host.Kernel.QueryInformationThread.
func (h *Host) QueryInformationThread(ctx context.Context, thread nt.Handle, class uint32, buf hostarch.Buffer) (uint32, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	t, err := lookup[*Thread](c, thread)
	if err != nil {
		return 0, err
	}
	switch class {
	case nt.ThreadBasicInformation:
		return fillFixed(buf, &nt.ThreadBasicInformationInfo{
			ExitStatus:     uint32(ntstatus.StatusPending),
			TebBaseAddress: tebAddress,
			ClientID:       nt.ClientID{UniqueProcess: t.process.ID, UniqueThread: t.ID},
			AffinityMask:   t.process.affinity,
			Priority:       8,
			BasePriority:   8,
		})
	case nt.ThreadTimes:
		return fillFixed(buf, &nt.KernelUserTimes{CreateTime: nt.TimeToNT(t.created)})
	default:
		return 0, fmt.Errorf("thread information class %d: %w", class, ntstatus.StatusInvalidInfoClass)
	}
}

// guestMemorySize is the memory given to processes created by guests.
const guestMemorySize = 1 << 20

// CreateUserProcess implements host.Kernel.CreateUserProcess. The new
// process gets a small private memory and one thread; it never runs.
func (h *Host) CreateUserProcess(ctx context.Context, processAccess, threadAccess uint32, processAttrs, threadAttrs hostarch.Addr, processFlags, threadFlags uint32, params, attrs hostarch.Addr) (nt.Handle, nt.Handle, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer h.mu.Unlock()
	mem := c.caller.Mem

	var pp nt.RTLUserProcessParameters
	image := ""
	if params != 0 {
		if pp, err = translate.ReadProcessParams(mem, params); err != nil {
			return 0, 0, err
		}
		if pp.Flags&nt.PROCESS_PARAMS_FLAG_NORMALIZED == 0 {
			return 0, 0, fmt.Errorf("denormalized process parameters: %w", ntstatus.StatusInvalidParameter)
		}
		if image, err = usermem.CopyUTF16In(mem, hostarch.Addr(pp.ImagePathName.Buffer), int(pp.ImagePathName.Length)); err != nil {
			return 0, 0, err
		}
	}

	parent := c.process
	var attrList []nt.PSAttribute
	if attrs != 0 {
		var hdr nt.PSAttributeListHeader
		if _, err := usermem.CopyObjectIn(mem, attrs, &hdr); err != nil {
			return 0, 0, err
		}
		n := (int(hdr.TotalLength) - nt.SizeOfPSAttributeListHeader) / nt.SizeOfPSAttribute
		for i := 0; i < n; i++ {
			var a nt.PSAttribute
			if _, err := usermem.CopyObjectIn(mem, attrs+hostarch.Addr(nt.SizeOfPSAttributeListHeader+i*nt.SizeOfPSAttribute), &a); err != nil {
				return 0, 0, err
			}
			switch a.Attribute {
			case nt.PS_ATTRIBUTE_IMAGE_NAME:
				if image, err = usermem.CopyUTF16In(mem, hostarch.Addr(a.Value), int(a.Size)); err != nil {
					return 0, 0, err
				}
			case nt.PS_ATTRIBUTE_PARENT_PROCESS:
				if parent, err = lookup[*Process](c, nt.Handle(a.Value)); err != nil {
					return 0, 0, err
				}
			}
			attrList = append(attrList, a)
		}
	}
	if image == "" {
		return 0, 0, fmt.Errorf("no image name: %w", ntstatus.StatusObjectNameInvalid)
	}

	p := h.newProcessLocked(image, &usermem.BytesIO{Base: LowestUserAddress, Bytes: make([]byte, guestMemorySize)}, parent.Wow64, parent.ID)
	p.params = pp
	if err := p.vm.reserveFixed(LowestUserAddress, guestMemorySize); err != nil {
		return 0, 0, err
	}
	t := p.newThreadLocked()

	for _, a := range attrList {
		if a.Attribute != nt.PS_ATTRIBUTE_CLIENT_ID {
			continue
		}
		if a.Size < uint64(nt.SizeOfClientID) {
			return 0, 0, fmt.Errorf("client id attribute size %d: %w", a.Size, ntstatus.StatusInvalidParameter)
		}
		cid := nt.ClientID{UniqueProcess: p.ID, UniqueThread: t.ID}
		if _, err := usermem.CopyObjectOut(mem, hostarch.Addr(a.Value), &cid); err != nil {
			return 0, 0, err
		}
		if a.ReturnLength != 0 {
			if err := usermem.CopyUint64Out(mem, hostarch.Addr(a.ReturnLength), uint64(nt.SizeOfClientID)); err != nil {
				return 0, 0, err
			}
		}
	}
	h.broadcast()
	return c.process.insert(p), c.process.insert(t), nil
}

// reserveFixed commits [addr, addr+size) as read-write private memory.
func (as *addressSpace) reserveFixed(addr, size uint64) error {
	_, _, err := as.allocate(addr, size, 0, nt.MEM_RESERVE|nt.MEM_COMMIT, nt.PAGE_READWRITE, nt.MEM_PRIVATE)
	return err
}
