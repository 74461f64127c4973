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

// Package host defines the boundary between the translation layer and the
// host kernel.
//
// Kernel operations take wide (host layout) arguments. Structures that a
// native caller would pass by pointer are passed by their wide address;
// the kernel reads and writes them through the memory of the calling
// thread, found in the context with CallerFromContext. That memory
// includes both guest memory and the wide copies staged by the
// translation layer.
//
// Errors are ntstatus.Status values, possibly wrapped. Informational and
// warning statuses (STATUS_TIMEOUT, STATUS_BUFFER_OVERFLOW and so on) are
// also returned as errors so that they reach the guest unchanged.
package host

import (
	"context"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// APC is a queued user-mode asynchronous procedure call.
type APC struct {
	Routine uint64
	Args    [3]uint64
}

// Caller identifies the thread making a kernel call.
type Caller struct {
	// Mem is the caller's view of memory.
	Mem usermem.IO

	// Process and Thread are the caller's ids.
	Process uint64
	Thread  uint64

	// DeliverAPC runs a user APC on the calling thread before the call
	// returns. If nil, APCs stay queued.
	DeliverAPC func(ctx context.Context, apc APC)
}

// contextID is the host package's type for context.Context.Value keys.
type contextID int

const (
	// CtxCaller is a Context.Value key for a *Caller.
	CtxCaller contextID = iota
)

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, CtxCaller, c)
}

// CallerFromContext returns the Caller in ctx, or nil if there is none.
func CallerFromContext(ctx context.Context) *Caller {
	if v := ctx.Value(CtxCaller); v != nil {
		return v.(*Caller)
	}
	return nil
}

// Kernel is the host kernel interface.
//
// Query operations fill buf, which lies in the caller's memory, and return
// the number of bytes written, or the number required together with a
// too-small status.
type Kernel interface {
	// Virtual memory.
	AllocateVirtualMemory(ctx context.Context, process nt.Handle, addr *uint64, zeroBits uint64, size *uint64, allocType, prot uint32) error
	FreeVirtualMemory(ctx context.Context, process nt.Handle, addr, size *uint64, freeType uint32) error
	ProtectVirtualMemory(ctx context.Context, process nt.Handle, addr, size *uint64, prot uint32, old *uint32) error
	QueryVirtualMemory(ctx context.Context, process nt.Handle, addr uint64, class uint32, buf hostarch.Buffer) (uint32, error)
	ReadVirtualMemory(ctx context.Context, process nt.Handle, addr uint64, buf hostarch.Addr, size uint64) (uint64, error)
	WriteVirtualMemory(ctx context.Context, process nt.Handle, addr uint64, buf hostarch.Addr, size uint64) (uint64, error)
	FlushInstructionCache(ctx context.Context, process nt.Handle, addr, size uint64) error

	// Sections.
	CreateSection(ctx context.Context, access uint32, attrs hostarch.Addr, maxSize *int64, prot, allocAttrs uint32, file nt.Handle) (nt.Handle, error)
	MapViewOfSection(ctx context.Context, section, process nt.Handle, addr *uint64, zeroBits, commit uint64, offset *int64, viewSize *uint64, inherit, allocType, prot uint32) error
	UnmapViewOfSection(ctx context.Context, process nt.Handle, addr uint64) error

	// Objects and synchronization.
	Close(ctx context.Context, h nt.Handle) error
	DuplicateObject(ctx context.Context, srcProcess, src, dstProcess nt.Handle, access, attrs, options uint32) (nt.Handle, error)
	CreateEvent(ctx context.Context, access uint32, attrs hostarch.Addr, eventType uint32, initial bool) (nt.Handle, error)
	SetEvent(ctx context.Context, h nt.Handle) (int32, error)
	WaitForSingleObject(ctx context.Context, h nt.Handle, alertable bool, timeout nt.Timeout) error
	WaitForMultipleObjects(ctx context.Context, handles []nt.Handle, waitAll, alertable bool, timeout nt.Timeout) error
	DelayExecution(ctx context.Context, alertable bool, timeout nt.Timeout) error

	// Processes and threads.
	OpenProcess(ctx context.Context, access uint32, attrs hostarch.Addr, cid nt.ClientID) (nt.Handle, error)
	TerminateProcess(ctx context.Context, process nt.Handle, exitStatus ntstatus.Status) error
	QueryInformationProcess(ctx context.Context, process nt.Handle, class uint32, buf hostarch.Buffer) (uint32, error)
	SetInformationProcess(ctx context.Context, process nt.Handle, class uint32, buf hostarch.Buffer) error
	QueryInformationThread(ctx context.Context, thread nt.Handle, class uint32, buf hostarch.Buffer) (uint32, error)
	QueueApcThread(ctx context.Context, thread nt.Handle, apc APC) error
	TestAlert(ctx context.Context) error
	CreateUserProcess(ctx context.Context, processAccess, threadAccess uint32, processAttrs, threadAttrs hostarch.Addr, processFlags, threadFlags uint32, params, attrs hostarch.Addr) (process, thread nt.Handle, err error)

	// Files.
	CreateFile(ctx context.Context, access uint32, attrs, iosb hostarch.Addr, allocSize int64, fileAttrs, share, disposition, options uint32, ea []byte) (nt.Handle, error)
	ReadFile(ctx context.Context, file, event nt.Handle, iosb, buf hostarch.Addr, length uint32, offset *int64) error
	WriteFile(ctx context.Context, file, event nt.Handle, iosb, buf hostarch.Addr, length uint32, offset *int64) error

	// Security.
	QuerySecurityObject(ctx context.Context, h nt.Handle, info uint32, buf hostarch.Buffer) (uint32, error)
	SetSecurityObject(ctx context.Context, h nt.Handle, info uint32, sd hostarch.Addr) error
	OpenProcessToken(ctx context.Context, process nt.Handle, access uint32) (nt.Handle, error)
	QueryInformationToken(ctx context.Context, token nt.Handle, class uint32, buf hostarch.Buffer) (uint32, error)

	// System.
	QuerySystemInformation(ctx context.Context, class uint32, buf hostarch.Buffer) (uint32, error)
	QuerySystemTime(ctx context.Context) (int64, error)
	QueryPerformanceCounter(ctx context.Context) (counter, frequency int64, err error)

	// Registry.
	OpenKey(ctx context.Context, access uint32, attrs hostarch.Addr) (nt.Handle, error)
	CreateKey(ctx context.Context, access uint32, attrs hostarch.Addr, titleIndex uint32, class hostarch.Addr, options uint32) (nt.Handle, uint32, error)
	QueryValueKey(ctx context.Context, key nt.Handle, name hostarch.Addr, class uint32, buf hostarch.Buffer) (uint32, error)
	SetValueKey(ctx context.Context, key nt.Handle, name hostarch.Addr, titleIndex, valueType uint32, data []byte) error

	// Jobs.
	CreateJobObject(ctx context.Context, access uint32, attrs hostarch.Addr) (nt.Handle, error)
	AssignProcessToJobObject(ctx context.Context, job, process nt.Handle) error
	QueryInformationJobObject(ctx context.Context, job nt.Handle, class uint32, buf hostarch.Buffer) (uint32, error)
	SetInformationJobObject(ctx context.Context, job nt.Handle, class uint32, buf hostarch.Buffer) error
}

// Win32k is the windowing subsystem. Its calls return a result value
// rather than a status.
type Win32k interface {
	CallNoParam(ctx context.Context, code uint32) (uint64, error)
	CallOneParam(ctx context.Context, arg uint64, code uint32) (uint64, error)
	CallTwoParam(ctx context.Context, arg1, arg2 uint64, code uint32) (uint64, error)
	GetKeyState(ctx context.Context, vk int32) (int16, error)
	GetThreadDesktop(ctx context.Context, thread uint32) (nt.Handle, error)
	MessageCall(ctx context.Context, hwnd nt.Handle, msg uint32, wparam uint64, lparam int64, resultInfo uint64, callType uint32, ansi bool) (int64, error)
}
