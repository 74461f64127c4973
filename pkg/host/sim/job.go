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
)

type job struct {
	objectBase
	limits     nt.JobObjectExtendedLimitInformationInfo
	processes  []*Process
	terminated uint32
}

func (*job) kind() string { return "Job" }

func (j *job) active() uint32 {
	var n uint32
	for _, p := range j.processes {
		if !p.exited {
			n++
		}
	}
	return n
}

// CreateJobObject implements host.Kernel.CreateJobObject.
func (h *Host) CreateJobObject(ctx context.Context, access uint32, attrs hostarch.Addr) (nt.Handle, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	j := &job{objectBase: defaultSecurity()}
	if err := objectSecurity(c.caller.Mem, attrs, j); err != nil {
		return 0, err
	}
	return c.process.insert(j), nil
}

// AssignProcessToJobObject implements host.Kernel.AssignProcessToJobObject.
func (h *Host) AssignProcessToJobObject(ctx context.Context, jobHandle, process nt.Handle) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	j, err := lookup[*job](c, jobHandle)
	if err != nil {
		return err
	}
	p, err := lookup[*Process](c, process)
	if err != nil {
		return err
	}
	if p.job != nil {
		return fmt.Errorf("process %#x already in a job: %w", p.ID, ntstatus.StatusAccessDenied)
	}
	basic := &j.limits.BasicLimitInformation
	if basic.LimitFlags&nt.JOB_OBJECT_LIMIT_ACTIVE_PROCESS != 0 && j.active() >= basic.ActiveProcessLimit {
		return fmt.Errorf("job active process limit %d: %w", basic.ActiveProcessLimit, ntstatus.StatusAccessDenied)
	}
	p.job = j
	j.processes = append(j.processes, p)
	return nil
}

// QueryInformationJobObject implements host.Kernel.QueryInformationJobObject.
func (h *Host) QueryInformationJobObject(ctx context.Context, jobHandle nt.Handle, class uint32, buf hostarch.Buffer) (uint32, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	j, err := lookup[*job](c, jobHandle)
	if err != nil {
		return 0, err
	}
	switch class {
	case nt.JobObjectBasicAccountingInformation:
		return fillFixed(buf, &nt.JobObjectBasicAccountingInformationInfo{
			TotalProcesses:           uint32(len(j.processes)),
			ActiveProcesses:          j.active(),
			TotalTerminatedProcesses: j.terminated,
		})
	case nt.JobObjectBasicLimitInformation:
		return fillFixed(buf, &j.limits.BasicLimitInformation)
	case nt.JobObjectExtendedLimitInformation:
		return fillFixed(buf, &j.limits)
	case nt.JobObjectBasicProcessIdList:
		if buf.Len() < nt.SizeOfJobObjectBasicProcessIDListHeader {
			return uint32(nt.SizeOfJobObjectBasicProcessIDListHeader), ntstatus.StatusInfoLengthMismatch
		}
		var ids []uint64
		for _, p := range j.processes {
			if !p.exited {
				ids = append(ids, p.ID)
			}
		}
		fit := min(len(ids), (buf.Len()-nt.SizeOfJobObjectBasicProcessIDListHeader)/8)
		img := binary.Marshal(nil, hostarch.ByteOrder, &nt.JobObjectBasicProcessIDListHeader{
			NumberOfAssignedProcesses: uint32(len(ids)),
			NumberOfProcessIdsInList:  uint32(fit),
		})
		for _, id := range ids[:fit] {
			img = binary.AppendUint64(img, hostarch.ByteOrder, id)
		}
		copy(buf.Data, img)
		if fit < len(ids) {
			return uint32(len(img)), ntstatus.StatusBufferOverflow
		}
		return uint32(len(img)), nil
	default:
		return 0, fmt.Errorf("job information class %d: %w", class, ntstatus.StatusInvalidInfoClass)
	}
}

// SetInformationJobObject implements host.Kernel.SetInformationJobObject.
func (h *Host) SetInformationJobObject(ctx context.Context, jobHandle nt.Handle, class uint32, buf hostarch.Buffer) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	j, err := lookup[*job](c, jobHandle)
	if err != nil {
		return err
	}
	switch class {
	case nt.JobObjectBasicLimitInformation:
		return setFixed(buf, &j.limits.BasicLimitInformation)
	case nt.JobObjectExtendedLimitInformation:
		return setFixed(buf, &j.limits)
	default:
		return fmt.Errorf("job information class %d: %w", class, ntstatus.StatusInvalidInfoClass)
	}
}
