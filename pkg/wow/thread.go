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
	"context"
	"fmt"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/arena"
	"gvisor.dev/compat32/pkg/cpu"
	"gvisor.dev/compat32/pkg/host"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/strace"
	"gvisor.dev/compat32/pkg/translate"
	"gvisor.dev/compat32/pkg/usermem"
)

// State is what a guest thread is doing.
type State int

// Thread states.
const (
	RunningGuest State = iota
	InSyscall
	DispatchingException
	DispatchingCallback
	DispatchingAPC
)

// String implements fmt.Stringer.String.
func (s State) String() string {
	switch s {
	case RunningGuest:
		return "RunningGuest"
	case InSyscall:
		return "InSyscall"
	case DispatchingException:
		return "DispatchingException"
	case DispatchingCallback:
		return "DispatchingCallback"
	case DispatchingAPC:
		return "DispatchingAPC"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Thread is the translation state of one guest thread. Its methods must be
// called on the goroutine that runs the thread.
type Thread struct {
	tc *TranslationContext

	// ctx carries caller.
	ctx    context.Context
	caller *host.Caller

	arena  *arena.Arena
	tr     *translate.Translator
	tracer *strace.Tracer

	state State

	// frames is the innermost pending transfer to guest code.
	frames *frame
}

var _ cpu.Guest = (*Thread)(nil)

// NewThread returns the Thread for host thread id thread of process,
// whose guest memory is mem.
func (tc *TranslationContext) NewThread(ctx context.Context, mem usermem.IO, process, thread uint64) (*Thread, error) {
	a := arena.New()
	a.Debug = tc.Config.ArenaDebug
	t := &Thread{
		tc:    tc,
		arena: a,
		tr:    translate.New(mem, a),
	}
	t.caller = &host.Caller{
		Mem:        t.tr.Host(),
		Process:    process,
		Thread:     thread,
		DeliverAPC: t.DispatchAPC,
	}
	t.ctx = host.WithCaller(ctx, t.caller)
	t.tracer = &strace.Tracer{Logger: tc.logger, Mem: mem, TID: thread}
	if in, ok := tc.Backend.(cpu.Initializer); ok {
		if err := in.ThreadInit(); err != nil {
			return nil, fmt.Errorf("initializing CPU backend thread: %w", err)
		}
	}
	return t, nil
}

// Context returns the context that host calls of t are made with.
func (t *Thread) Context() context.Context {
	return t.ctx
}

// Caller returns t's identity as seen by the host kernel.
func (t *Thread) Caller() *host.Caller {
	return t.caller
}

// State returns what t is doing.
func (t *Thread) State() State {
	return t.state
}

// Translator returns t's structure translator.
func (t *Thread) Translator() *translate.Translator {
	return t.tr
}

// Run runs guest code until the backend stops.
func (t *Thread) Run() error {
	t.state = RunningGuest
	return t.tc.Backend.Simulate(t.ctx, t)
}

// Syscall implements cpu.Guest.Syscall.
func (t *Thread) Syscall(_ context.Context, number, args uint32) (ntstatus.Status, bool) {
	status := t.tc.Dispatch(t, number, args)
	return status, !t.stopping()
}

// ProcessPending drains the process's work list into the backend.
func (t *Thread) ProcessPending() {
	if l := t.tc.WorkList; l != nil {
		l.Process(t.tc.Backend)
	}
}

// kernel returns the host kernel.
func (t *Thread) kernel() host.Kernel {
	return t.tc.Kernel
}

// status converts the outcome of a translation or host call.
func status(err error) ntstatus.Status {
	return ntstatus.FromError(err)
}

// readPtr reads a guest pointer-sized value and widens it.
func (t *Thread) readPtr(addr uint32) (uint64, error) {
	v, err := t.tr.ReadULong(addr)
	return translate.Ptr(v), err
}

// writeHandle stores h through the guest PHANDLE at addr.
func (t *Thread) writeHandle(addr uint32, h nt.Handle) error {
	if addr == 0 {
		return ntstatus.StatusAccessViolation
	}
	return t.tr.WriteHandle(addr, h)
}

// storeHandle stores a handle the host just opened in the current process
// through the guest PHANDLE at addr, closing it if the guest cannot receive
// it.
func (t *Thread) storeHandle(addr uint32, h nt.Handle) error {
	return t.storeHandleIn(addr, nt.CurrentProcess, h)
}

// storeHandleIn is storeHandle for a handle that lives in process.
func (t *Thread) storeHandleIn(addr uint32, process, h nt.Handle) error {
	err := t.writeHandle(addr, h)
	if err == nil {
		return nil
	}
	if cerr := t.closeIn(process, h); cerr != nil {
		t.tc.logger.Warningf("Closing unreturned handle %#x: %v", uint64(h), cerr)
	}
	return err
}

// closeIn closes handle h of process.
func (t *Thread) closeIn(process, h nt.Handle) error {
	k := t.kernel()
	if process == nt.CurrentProcess {
		return k.Close(t.ctx, h)
	}
	local, err := k.DuplicateObject(t.ctx, process, h, nt.CurrentProcess, 0, 0, nt.DUPLICATE_CLOSE_SOURCE)
	if err != nil {
		return err
	}
	return k.Close(t.ctx, local)
}

// writeRetLen stores a returned length if the guest asked for it.
func (t *Thread) writeRetLen(addr, n uint32) error {
	return t.tr.WriteULong(addr, n)
}

// query runs a class-dispatched query into the guest buffer [dst,
// dst+dstLen) and reports the narrow length through retLen. The length is
// reported for buffer-size errors too.
func (t *Thread) query(c *translate.Class, q translate.HostQuery, dst, dstLen, retLen uint32) ntstatus.Status {
	n, err := t.tr.Query(c, q, dst, dstLen)
	s := status(err)
	if s.IsError() && !translate.IsTooSmall(err) {
		return s
	}
	if err := t.writeRetLen(retLen, n); err != nil {
		return status(err)
	}
	return s
}

// readInt64 reads a guest LARGE_INTEGER.
func (t *Thread) readInt64(addr uint32) (int64, error) {
	v, err := usermem.CopyUint64In(t.tr.Guest, hostarch.Addr(addr))
	return int64(v), err
}

// writeInt64 stores a guest LARGE_INTEGER. A zero addr is ignored.
func (t *Thread) writeInt64(addr uint32, v int64) error {
	if addr == 0 {
		return nil
	}
	return usermem.CopyUint64Out(t.tr.Guest, hostarch.Addr(addr), uint64(v))
}

// optionalInt64 reads the LARGE_INTEGER at addr, or returns nil if addr is
// zero.
func (t *Thread) optionalInt64(addr uint32) (*int64, error) {
	if addr == 0 {
		return nil, nil
	}
	v, err := t.readInt64(addr)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// unsupported logs a rejected information class.
func (t *Thread) unsupported(err error) ntstatus.Status {
	t.tc.limited.Debugf("Unsupported request: %v", err)
	return status(err)
}
