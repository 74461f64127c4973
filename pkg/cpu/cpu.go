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

// Package cpu defines the interface to the CPU backend, the instruction-level
// emulator or translator that runs guest code.
//
// A backend must implement Backend. The remaining interfaces are optional
// capabilities, discovered with type assertions; a backend that lacks one
// simply does not receive the corresponding notifications.
package cpu

import (
	"context"
	"errors"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/arch"
	"gvisor.dev/compat32/pkg/ntstatus"
)

// ErrStopped is returned by Simulate when the guest asked it to stop.
var ErrStopped = errors.New("simulation stopped")

// Guest receives the system calls made by guest code.
type Guest interface {
	// Syscall handles the guest system call number whose flat argument
	// block is at guest address args. The backend stores the returned
	// status in the guest's return register. If resume is false, Simulate
	// must return once the status is stored.
	Syscall(ctx context.Context, number, args uint32) (status ntstatus.Status, resume bool)
}

// Backend is the set of load-bearing backend operations.
type Backend interface {
	// Simulate runs guest code on the calling goroutine from the current
	// guest context, delivering system calls to g, until a call returns
	// resume == false or ctx is cancelled.
	Simulate(ctx context.Context, g Guest) error

	// GetContext fills c with the guest context of thread, limited to the
	// register groups named by c's flags.
	GetContext(thread nt.Handle, c arch.Context) error

	// SetContext sets the register groups named by c's flags in the guest
	// context of thread.
	SetContext(thread nt.Handle, c arch.Context) error
}

// Initializer is implemented by backends that need per-process or
// per-thread setup.
type Initializer interface {
	ProcessInit() error
	ThreadInit() error
}

// CacheFlusher is implemented by backends that cache translated code.
type CacheFlusher interface {
	// FlushInstructionCache discards translations of [addr, addr+size).
	FlushInstructionCache(addr, size uint64)

	// FlushInstructionCacheHeavy discards all translations.
	FlushInstructionCacheHeavy(addr, size uint64)
}

// Notifier is implemented by backends that track guest memory changes.
// Each change is reported before (after == false) and after it is made;
// status is the outcome, valid only after.
type Notifier interface {
	NotifyMemoryAlloc(addr, size uint64, allocType, prot uint32, after bool, status ntstatus.Status)
	NotifyMemoryFree(addr, size uint64, freeType uint32, after bool, status ntstatus.Status)
	NotifyMemoryProtect(addr, size uint64, prot uint32, after bool, status ntstatus.Status)
	NotifyMapViewOfSection(addr, size uint64, prot uint32)
	NotifyUnmapViewOfSection(addr uint64, after bool, status ntstatus.Status)
	NotifyMemoryDirty(addr, size uint64)
}

// Resetter is implemented by backends that must bring their state in line
// with the host context before an exception is dispatched to the guest.
type Resetter interface {
	ResetToConsistentState(rec *nt.ExceptionRecord, c arch.Wide) error
}

// ProcessorInfo is implemented by backends that report the processor they
// emulate.
type ProcessorInfo interface {
	ProcessorInformation() (nt.SystemCPUInformationInfo, error)
}

// Validate returns an error if b is missing a load-bearing operation.
func Validate(b Backend) error {
	if b == nil {
		return errors.New("no CPU backend")
	}
	if v, ok := b.(interface{ Missing() []string }); ok {
		if missing := v.Missing(); len(missing) != 0 {
			return &MissingError{Symbols: missing}
		}
	}
	return nil
}

// MissingError reports load-bearing backend operations that are absent.
type MissingError struct {
	Symbols []string
}

// Error implements error.Error.
func (e *MissingError) Error() string {
	s := "CPU backend is missing"
	for _, sym := range e.Symbols {
		s += " " + sym
	}
	return s
}
