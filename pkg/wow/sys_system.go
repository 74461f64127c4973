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

package wow

import (
	"fmt"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/cpu"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
)

// systemQuery returns the wide query for a system information class. The
// processor classes describe the emulated processor when the backend can
// report it.
func (t *Thread) systemQuery(class uint32) translate.HostQuery {
	if pi, ok := t.tc.Backend.(cpu.ProcessorInfo); ok && (class == nt.SystemCpuInformation || class == nt.SystemEmulationProcessorInformation) {
		return func(b hostarch.Buffer) (uint32, error) {
			info, err := pi.ProcessorInformation()
			if err != nil {
				return 0, err
			}
			img := binary.Marshal(nil, hostarch.ByteOrder, &info)
			if len(img) > b.Len() {
				return uint32(len(img)), fmt.Errorf("processor information needs %d bytes: %w", len(img), ntstatus.StatusInfoLengthMismatch)
			}
			return uint32(copy(b.Data, img)), nil
		}
	}
	return func(b hostarch.Buffer) (uint32, error) {
		return t.kernel().QuerySystemInformation(t.ctx, class, b)
	}
}

// NtQuerySystemInformation implements NtQuerySystemInformation.
func NtQuerySystemInformation(t *Thread, args *Args) ntstatus.Status {
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()
	retLen := args.Pointer()

	c, err := translate.SystemClass(class)
	if err != nil {
		return t.unsupported(err)
	}
	return t.query(c, t.systemQuery(class), buf, length, retLen)
}

// NtQuerySystemTime implements NtQuerySystemTime.
func NtQuerySystemTime(t *Thread, args *Args) ntstatus.Status {
	timePtr := args.Pointer()

	if timePtr == 0 {
		return ntstatus.StatusAccessViolation
	}
	now, err := t.kernel().QuerySystemTime(t.ctx)
	if err != nil {
		return status(err)
	}
	return status(t.writeInt64(timePtr, now))
}

// NtQueryPerformanceCounter implements NtQueryPerformanceCounter. The
// frequency is optional.
func NtQueryPerformanceCounter(t *Thread, args *Args) ntstatus.Status {
	counterPtr := args.Pointer()
	freqPtr := args.Pointer()

	if counterPtr == 0 {
		return ntstatus.StatusAccessViolation
	}
	counter, freq, err := t.kernel().QueryPerformanceCounter(t.ctx)
	if err != nil {
		return status(err)
	}
	if err := t.writeInt64(counterPtr, counter); err != nil {
		return status(err)
	}
	return status(t.writeInt64(freqPtr, freq))
}
