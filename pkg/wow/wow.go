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

// Package wow runs the system calls of a 32-bit guest against a 64-bit host
// kernel.
//
// Each guest system call arrives as a number and the guest address of a
// flat block of argument slots. The TranslationContext looks the number up
// in one of its dispatch tables and runs the thunk, which pops the
// arguments, stages host-width copies of the guest's structures in the
// thread's arena, calls the host kernel and writes the results back in the
// guest's layout.
//
// The package also bridges host-initiated transfers of control to guest
// code: exceptions, user-mode callbacks and APCs. Each of these pushes a
// frame onto the thread and runs the CPU backend until the guest completes
// the frame with NtContinue or NtCallbackReturn.
package wow

import (
	"context"
	"fmt"
	"time"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/arch"
	"gvisor.dev/compat32/pkg/config"
	"gvisor.dev/compat32/pkg/cpu"
	"gvisor.dev/compat32/pkg/host"
	"gvisor.dev/compat32/pkg/log"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/xproc"
)

// guestZeroBits limits host allocations made for the guest to addresses
// the guest can reach.
const guestZeroBits = 0x7fffffff

// Options configures a TranslationContext.
type Options struct {
	// Config is the process configuration. Nil means config.Default().
	Config *config.Config

	// Kernel is the host kernel. Required.
	Kernel host.Kernel

	// Win32k is the windowing subsystem. If nil, windowing calls fail
	// with STATUS_NOT_IMPLEMENTED.
	Win32k host.Win32k

	// Backend is the CPU backend. Required.
	Backend cpu.Backend

	// WorkList is this process's cross-process work list. Optional.
	WorkList *xproc.List

	// Peers finds the work lists of other processes. Optional.
	Peers Peers

	// Logger receives diagnostics and trace lines. Nil means log.Log().
	Logger log.Logger
}

// TranslationContext holds everything the thunks of one process share.
// It is read-only after New and may be used by many threads.
type TranslationContext struct {
	// Config is the process configuration.
	Config *config.Config

	// Guest and Host are the paired architectures.
	Guest arch.Arch
	Host  arch.Arch

	// Kernel is the host kernel.
	Kernel host.Kernel

	// Win32k is the windowing subsystem, or nil.
	Win32k host.Win32k

	// Backend is the CPU backend.
	Backend cpu.Backend

	// WorkList is this process's work list, or nil.
	WorkList *xproc.List

	// Peers finds other processes' work lists, or is nil.
	Peers Peers

	logger log.Logger

	// limited logs conditions the guest can trigger at a high rate:
	// dropped notifications and unsupported information classes.
	limited log.Logger

	tables [selectorMask + 1]*Table

	flusher  cpu.CacheFlusher
	notifier cpu.Notifier
	resetter cpu.Resetter
}

// New returns a TranslationContext. It fails if the configuration names no
// valid architecture pair or the backend lacks a load-bearing operation.
func New(opts Options) (*TranslationContext, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Kernel == nil {
		return nil, fmt.Errorf("no host kernel")
	}
	if err := cpu.Validate(opts.Backend); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Log()
	}
	tc := &TranslationContext{
		Config:   cfg,
		Guest:    cfg.Guest(),
		Host:     cfg.Host(),
		Kernel:   opts.Kernel,
		Win32k:   opts.Win32k,
		Backend:  opts.Backend,
		WorkList: opts.WorkList,
		Peers:    opts.Peers,
		logger:   logger,
		limited:  log.RateLimitedLogger(logger, time.Second),
	}
	tc.flusher, _ = opts.Backend.(cpu.CacheFlusher)
	tc.notifier, _ = opts.Backend.(cpu.Notifier)
	tc.resetter, _ = opts.Backend.(cpu.Resetter)
	for selector, list := range staticTables {
		tc.tables[selector] = newTable(selector, list, cfg.Traced)
	}
	if in, ok := opts.Backend.(cpu.Initializer); ok {
		if err := in.ProcessInit(); err != nil {
			return nil, fmt.Errorf("initializing CPU backend: %w", err)
		}
	}
	return tc, nil
}

// Table returns the dispatch table of selector, or nil.
func (tc *TranslationContext) Table(selector uint32) *Table {
	return tc.tables[selector&selectorMask]
}

// Dispatch runs system call number for t with the argument block at guest
// address argsAddr, and returns the status for the guest.
func (tc *TranslationContext) Dispatch(t *Thread, number, argsAddr uint32) ntstatus.Status {
	selector, id := Split(number)
	table := tc.tables[selector]
	if table == nil {
		tc.Fatalf(t.ctx, "syscall %#x: no table for selector %d", number, selector)
	}
	sc := table.Lookup(id)
	if sc == nil {
		return ntstatus.StatusInvalidSystemService
	}

	prev := t.state
	t.state = InSyscall
	defer func() {
		t.arena.ReleaseAll()
		if t.state == InSyscall {
			t.state = prev
		}
		t.ProcessPending()
	}()

	width := tc.Guest.PointerSize()
	data, err := t.tr.CopyToWide(argsAddr, uint32(int(sc.ArgCount)*width))
	if err != nil {
		return ntstatus.FromError(err)
	}
	args := newArgs(sc.Name, data.Data, width, int(sc.ArgCount))
	if !table.traced[id] {
		return sc.Fn(t, args)
	}
	info := table.info[id]
	slots := args.Slots()
	t.tracer.Enter(info, slots)
	start := time.Now()
	status := sc.Fn(t, args)
	t.tracer.Exit(info, slots, status, time.Since(start))
	return status
}

// Fatalf reports a protocol error: it logs the message, terminates the
// host process and panics. It does not return.
func (tc *TranslationContext) Fatalf(ctx context.Context, format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	tc.logger.Warningf("Fatal translation error: %s", msg)
	if err := tc.Kernel.TerminateProcess(ctx, nt.CurrentProcess, ntstatus.StatusInternalError); err != nil {
		tc.logger.Warningf("Terminating process: %v", err)
	}
	panic(msg)
}
