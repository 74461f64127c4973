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

// Package cputest provides a scripted CPU backend for tests.
//
// Instead of executing guest instructions, each call to Simulate runs the
// next queued Program, which plays the part of guest code: it reads and
// writes guest memory and the current context, and makes system calls
// through the guest.
package cputest

import (
	"context"
	"fmt"
	"sync"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/arch"
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/cpu"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// Program is one run of guest code.
type Program func(ctx context.Context, b *Backend, g cpu.Guest) error

// Backend is a scripted cpu.Backend. It implements every optional
// capability and records each notification it receives.
type Backend struct {
	// Arch is the guest architecture.
	Arch arch.Arch

	mu       sync.Mutex
	self     arch.Context
	threads  map[nt.Handle]arch.Context
	programs []Program
	events   []string

	// Processor, if set, is reported by ProcessorInformation.
	Processor *nt.SystemCPUInformationInfo
}

var (
	_ cpu.Backend       = (*Backend)(nil)
	_ cpu.Initializer   = (*Backend)(nil)
	_ cpu.CacheFlusher  = (*Backend)(nil)
	_ cpu.Notifier      = (*Backend)(nil)
	_ cpu.Resetter      = (*Backend)(nil)
	_ cpu.ProcessorInfo = (*Backend)(nil)
)

// New returns a Backend for guest architecture a.
func New(a arch.Arch) *Backend {
	c, err := arch.NewContext(a)
	if err != nil {
		panic(err)
	}
	c.SetFlags(a.Flags(arch.All))
	return &Backend{
		Arch:    a,
		self:    c,
		threads: make(map[nt.Handle]arch.Context),
	}
}

// Push queues p to run on a later Simulate call.
func (b *Backend) Push(p Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.programs = append(b.programs, p)
}

// Pending returns the number of queued programs.
func (b *Backend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.programs)
}

// Context returns the current thread's guest context. Programs may modify
// it directly.
func (b *Backend) Context() arch.Context {
	return b.self
}

// Events returns the notifications received so far and clears the record.
func (b *Backend) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev := b.events
	b.events = nil
	return ev
}

func (b *Backend) record(format string, v ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, fmt.Sprintf(format, v...))
}

// Simulate implements cpu.Backend.Simulate by running the next queued
// program.
func (b *Backend) Simulate(ctx context.Context, g cpu.Guest) error {
	b.mu.Lock()
	if len(b.programs) == 0 {
		b.mu.Unlock()
		return fmt.Errorf("no guest program queued at ip %#x", b.self.IP())
	}
	p := b.programs[0]
	b.programs = b.programs[1:]
	b.mu.Unlock()
	return p(ctx, b, g)
}

// Syscall stores args at guest address argsAddr, makes system call number
// through g and stores the result in the return register, as a trap into
// the translation layer would.
func (b *Backend) Syscall(ctx context.Context, g cpu.Guest, mem usermem.IO, argsAddr uint32, number uint32, args ...uint32) (ntstatus.Status, bool) {
	buf := make([]byte, 0, 4*len(args))
	for _, a := range args {
		buf = binary.AppendUint32(buf, hostarch.ByteOrder, a)
	}
	if len(buf) != 0 {
		if _, err := mem.CopyOut(hostarch.Addr(argsAddr), buf); err != nil {
			panic(fmt.Sprintf("writing syscall arguments: %v", err))
		}
	}
	status, resume := g.Syscall(ctx, number, argsAddr)
	b.self.SetReturn(uint32(status))
	return status, resume
}

func (b *Backend) lookup(thread nt.Handle) (arch.Context, error) {
	if thread == nt.CurrentThread {
		return b.self, nil
	}
	c, ok := b.threads[thread]
	if !ok {
		return nil, fmt.Errorf("thread %#x: %w", uint64(thread), ntstatus.StatusInvalidHandle)
	}
	return c, nil
}

// AddThread registers a guest context for another thread.
func (b *Backend) AddThread(thread nt.Handle, c arch.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threads[thread] = c
}

// copyContext copies the register groups named by dst's flags from src.
// Groups are not tracked separately, so the whole record is copied and the
// requested flags are kept.
func copyContext(dst, src arch.Context) {
	flags := dst.Flags()
	buf := binary.Marshal(nil, hostarch.ByteOrder, src)
	binary.Unmarshal(buf, hostarch.ByteOrder, dst)
	dst.SetFlags(flags)
}

// GetContext implements cpu.Backend.GetContext.
func (b *Backend) GetContext(thread nt.Handle, c arch.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	src, err := b.lookup(thread)
	if err != nil {
		return err
	}
	if src.Arch() != c.Arch() {
		return fmt.Errorf("%v context for %v thread: %w", c.Arch(), src.Arch(), ntstatus.StatusInvalidParameter)
	}
	copyContext(c, src)
	return nil
}

// SetContext implements cpu.Backend.SetContext.
func (b *Backend) SetContext(thread nt.Handle, c arch.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	dst, err := b.lookup(thread)
	if err != nil {
		return err
	}
	if dst.Arch() != c.Arch() {
		return fmt.Errorf("%v context for %v thread: %w", c.Arch(), dst.Arch(), ntstatus.StatusInvalidParameter)
	}
	flags := dst.Flags()
	copyContext(dst, c)
	dst.SetFlags(flags)
	return nil
}

// ProcessInit implements cpu.Initializer.ProcessInit.
func (b *Backend) ProcessInit() error {
	b.record("process init")
	return nil
}

// ThreadInit implements cpu.Initializer.ThreadInit.
func (b *Backend) ThreadInit() error {
	b.record("thread init")
	return nil
}

// FlushInstructionCache implements cpu.CacheFlusher.FlushInstructionCache.
func (b *Backend) FlushInstructionCache(addr, size uint64) {
	b.record("flush %#x %#x", addr, size)
}

// FlushInstructionCacheHeavy implements
// cpu.CacheFlusher.FlushInstructionCacheHeavy.
func (b *Backend) FlushInstructionCacheHeavy(addr, size uint64) {
	b.record("flush heavy %#x %#x", addr, size)
}

func phase(after bool) string {
	if after {
		return "post"
	}
	return "pre"
}

// NotifyMemoryAlloc implements cpu.Notifier.NotifyMemoryAlloc.
func (b *Backend) NotifyMemoryAlloc(addr, size uint64, allocType, prot uint32, after bool, status ntstatus.Status) {
	b.record("%s alloc %#x %#x type=%#x prot=%#x status=%#x", phase(after), addr, size, allocType, prot, uint32(status))
}

// NotifyMemoryFree implements cpu.Notifier.NotifyMemoryFree.
func (b *Backend) NotifyMemoryFree(addr, size uint64, freeType uint32, after bool, status ntstatus.Status) {
	b.record("%s free %#x %#x type=%#x status=%#x", phase(after), addr, size, freeType, uint32(status))
}

// NotifyMemoryProtect implements cpu.Notifier.NotifyMemoryProtect.
func (b *Backend) NotifyMemoryProtect(addr, size uint64, prot uint32, after bool, status ntstatus.Status) {
	b.record("%s protect %#x %#x prot=%#x status=%#x", phase(after), addr, size, prot, uint32(status))
}

// NotifyMapViewOfSection implements cpu.Notifier.NotifyMapViewOfSection.
func (b *Backend) NotifyMapViewOfSection(addr, size uint64, prot uint32) {
	b.record("map %#x %#x prot=%#x", addr, size, prot)
}

// NotifyUnmapViewOfSection implements cpu.Notifier.NotifyUnmapViewOfSection.
func (b *Backend) NotifyUnmapViewOfSection(addr uint64, after bool, status ntstatus.Status) {
	b.record("%s unmap %#x status=%#x", phase(after), addr, uint32(status))
}

// NotifyMemoryDirty implements cpu.Notifier.NotifyMemoryDirty.
func (b *Backend) NotifyMemoryDirty(addr, size uint64) {
	b.record("dirty %#x %#x", addr, size)
}

// ResetToConsistentState implements cpu.Resetter.ResetToConsistentState.
func (b *Backend) ResetToConsistentState(rec *nt.ExceptionRecord, c arch.Wide) error {
	b.record("reset code=%#x ip=%#x", rec.ExceptionCode, c.IP())
	return nil
}

// ProcessorInformation implements cpu.ProcessorInfo.ProcessorInformation.
func (b *Backend) ProcessorInformation() (nt.SystemCPUInformationInfo, error) {
	if b.Processor == nil {
		return nt.SystemCPUInformationInfo{}, ntstatus.StatusNotImplemented
	}
	return *b.Processor, nil
}
