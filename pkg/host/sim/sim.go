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

// Package sim implements host.Kernel in process.
//
// The simulated kernel keeps processes, threads, handle tables, a virtual
// memory map per process and a small object namespace (events, sections,
// files, registry keys, tokens and jobs). It is used by tests and by
// wowctl to run guest programs without a real host kernel.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/host"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/log"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// Address space limits of simulated processes.
const (
	LowestUserAddress  = 0x10000
	HighestUserAddress = 0x7ffffffeffff
)

// Options configures a Host.
type Options struct {
	// Processors is the number of processors reported. Zero means 4.
	Processors int

	// ProcessorArchitecture is the native PROCESSOR_ARCHITECTURE_*.
	ProcessorArchitecture uint16

	// EmulatedArchitecture is the PROCESSOR_ARCHITECTURE_* reported for
	// SystemEmulationProcessorInformation.
	EmulatedArchitecture uint16

	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time
}

// Host is a simulated host kernel.
type Host struct {
	opts Options
	boot time.Time

	mu sync.Mutex

	// changed is closed and replaced whenever a waitable object may have
	// become signaled or an APC was queued.
	changed chan struct{}

	processes map[uint64]*Process
	nextID    uint64
	files     map[string]*file
	keys      map[string]*key
}

var _ host.Kernel = (*Host)(nil)

// New returns an empty Host.
func New(opts Options) *Host {
	if opts.Processors == 0 {
		opts.Processors = 4
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	h := &Host{
		opts:      opts,
		changed:   make(chan struct{}),
		processes: make(map[uint64]*Process),
		nextID:    0x100,
		files:     make(map[string]*file),
		keys:      make(map[string]*key),
	}
	h.boot = h.now()
	return h
}

func (h *Host) now() time.Time {
	return h.opts.Clock()
}

// broadcast wakes every waiter.
//
// Preconditions: h.mu is locked.
func (h *Host) broadcast() {
	close(h.changed)
	h.changed = make(chan struct{})
}

func (h *Host) allocID() uint64 {
	id := h.nextID
	h.nextID += 4
	return id
}

// Process is a simulated process.
type Process struct {
	objectBase

	host *Host

	// ID is the process id.
	ID     uint64
	parent uint64

	// ImageName is the NT path of the process image.
	ImageName string

	// Mem is the process's memory.
	Mem usermem.IO

	// Wow64 is the address of the guest process environment block, or 0
	// for a native process.
	Wow64 uint64

	vm         *addressSpace
	handles    map[nt.Handle]object
	nextHandle nt.Handle
	threads    map[uint64]*Thread
	created    time.Time
	exited     bool
	exitStatus ntstatus.Status
	hardErrors uint32
	execute    uint32
	affinity   uint64
	job        *job
	token      *token
	params     nt.RTLUserProcessParameters
}

func (*Process) kind() string { return "Process" }

func (p *Process) signaled() bool { return p.exited }

func (p *Process) acquire() {}

// Thread is a simulated thread.
type Thread struct {
	objectBase

	// ID is the thread id.
	ID      uint64
	process *Process
	apcs    []host.APC
	created time.Time
}

func (*Thread) kind() string { return "Thread" }

// NewProcess creates a process whose memory is mem. If wow64 is nonzero
// the process is a guest process with its environment block there.
func (h *Host) NewProcess(image string, mem usermem.IO, wow64 uint64) *Process {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.newProcessLocked(image, mem, wow64, 0)
}

func (h *Host) newProcessLocked(image string, mem usermem.IO, wow64, parent uint64) *Process {
	p := &Process{
		objectBase: defaultSecurity(),
		host:       h,
		ID:         h.allocID(),
		parent:     parent,
		ImageName:  image,
		Mem:        mem,
		Wow64:      wow64,
		vm:         newAddressSpace(LowestUserAddress, HighestUserAddress),
		handles:    make(map[nt.Handle]object),
		nextHandle: 4,
		threads:    make(map[uint64]*Thread),
		created:    h.now(),
		affinity:   h.affinityMask(),
	}
	p.token = newToken(h.allocID())
	h.processes[p.ID] = p
	log.Debugf("sim: created process %#x %q", p.ID, image)
	return p
}

// NewThread creates a thread in p.
func (p *Process) NewThread() *Thread {
	p.host.mu.Lock()
	defer p.host.mu.Unlock()
	return p.newThreadLocked()
}

func (p *Process) newThreadLocked() *Thread {
	t := &Thread{
		objectBase: defaultSecurity(),
		ID:         p.host.allocID(),
		process:    p,
		created:    p.host.now(),
	}
	p.threads[t.ID] = t
	return t
}

// Caller returns a host.Caller for t, seeing memory through mem.
func (t *Thread) Caller(mem usermem.IO) *host.Caller {
	return &host.Caller{Mem: mem, Process: t.process.ID, Thread: t.ID}
}

// Exited returns the exit status of p, and whether it has exited.
func (p *Process) Exited() (ntstatus.Status, bool) {
	p.host.mu.Lock()
	defer p.host.mu.Unlock()
	return p.exitStatus, p.exited
}

// Reserve marks [addr, addr+size) of p as committed private memory with
// protection prot, as if the loader had mapped it.
func (p *Process) Reserve(addr, size uint64, prot uint32) error {
	p.host.mu.Lock()
	defer p.host.mu.Unlock()
	_, _, err := p.vm.allocate(addr, size, 0, nt.MEM_RESERVE|nt.MEM_COMMIT, prot, nt.MEM_PRIVATE)
	return err
}

// Handles returns the number of open handles of p.
func (p *Process) Handles() int {
	p.host.mu.Lock()
	defer p.host.mu.Unlock()
	return len(p.handles)
}

// insert adds obj to p's handle table.
//
// Preconditions: h.mu is locked.
func (p *Process) insert(obj object) nt.Handle {
	h := p.nextHandle
	p.nextHandle += 4
	p.handles[h] = obj
	return h
}

// call is the resolved identity of a kernel call.
type call struct {
	caller  *host.Caller
	process *Process
	thread  *Thread
}

// resolve looks up the calling thread.
//
// Preconditions: h.mu is locked.
func (h *Host) resolve(ctx context.Context) (call, error) {
	c := host.CallerFromContext(ctx)
	if c == nil {
		return call{}, fmt.Errorf("kernel call without a caller: %w", ntstatus.StatusInternalError)
	}
	p, ok := h.processes[c.Process]
	if !ok {
		return call{}, fmt.Errorf("caller process %#x: %w", c.Process, ntstatus.StatusInvalidCid)
	}
	t, ok := p.threads[c.Thread]
	if !ok {
		return call{}, fmt.Errorf("caller thread %#x: %w", c.Thread, ntstatus.StatusInvalidCid)
	}
	return call{caller: c, process: p, thread: t}, nil
}

// object looks up handle in the caller's table.
//
// Preconditions: h.mu is locked.
func (c call) object(handle nt.Handle) (object, error) {
	switch handle {
	case nt.CurrentProcess:
		return c.process, nil
	case nt.CurrentThread:
		return c.thread, nil
	}
	obj, ok := c.process.handles[handle]
	if !ok {
		return nil, fmt.Errorf("handle %#x: %w", uint64(handle), ntstatus.StatusInvalidHandle)
	}
	return obj, nil
}

// lookup returns the object of type T named by handle.
func lookup[T object](c call, handle nt.Handle) (T, error) {
	var zero T
	obj, err := c.object(handle)
	if err != nil {
		return zero, err
	}
	v, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("handle %#x is a %s, not a %s: %w", uint64(handle), obj.kind(), zero.kind(), ntstatus.StatusObjectTypeMismatch)
	}
	return v, nil
}

// lockedCall locks h and resolves the caller. On success the caller must
// unlock h.mu.
func (h *Host) lockedCall(ctx context.Context) (call, error) {
	h.mu.Lock()
	c, err := h.resolve(ctx)
	if err != nil {
		h.mu.Unlock()
		return call{}, err
	}
	return c, nil
}

// Close implements host.Kernel.Close.
func (h *Host) Close(ctx context.Context, handle nt.Handle) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	if handle.IsPseudo() {
		return nil
	}
	if _, ok := c.process.handles[handle]; !ok {
		return fmt.Errorf("close %#x: %w", uint64(handle), ntstatus.StatusInvalidHandle)
	}
	delete(c.process.handles, handle)
	return nil
}

// DuplicateObject implements host.Kernel.DuplicateObject.
func (h *Host) DuplicateObject(ctx context.Context, srcProcess, src, dstProcess nt.Handle, access, attrs, options uint32) (nt.Handle, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	sp, err := lookup[*Process](c, srcProcess)
	if err != nil {
		return 0, err
	}
	dp, err := lookup[*Process](c, dstProcess)
	if err != nil {
		return 0, err
	}
	// Pseudo-handles name objects relative to the caller.
	obj, err := (call{caller: c.caller, process: sp, thread: c.thread}).object(src)
	if err != nil {
		return 0, err
	}
	if options&nt.DUPLICATE_CLOSE_SOURCE != 0 && !src.IsPseudo() {
		delete(sp.handles, src)
	}
	return dp.insert(obj), nil
}

// FlushInstructionCache implements host.Kernel.FlushInstructionCache.
func (h *Host) FlushInstructionCache(ctx context.Context, process nt.Handle, addr, size uint64) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	_, err = lookup[*Process](c, process)
	return err
}

// QuerySystemTime implements host.Kernel.QuerySystemTime.
func (h *Host) QuerySystemTime(ctx context.Context) (int64, error) {
	return nt.TimeToNT(h.now()), nil
}

// PerformanceFrequency is the rate of the performance counter.
const PerformanceFrequency = 10_000_000

// QueryPerformanceCounter implements host.Kernel.QueryPerformanceCounter.
func (h *Host) QueryPerformanceCounter(ctx context.Context) (int64, int64, error) {
	return int64(h.now().Sub(h.boot) / 100), PerformanceFrequency, nil
}

// readName decodes the object name of the wide OBJECT_ATTRIBUTES at attrs,
// returning the root directory handle too.
func readName(mem usermem.IO, attrs hostarch.Addr) (string, nt.Handle, error) {
	if attrs == 0 {
		return "", 0, nil
	}
	var oa nt.ObjectAttributes
	if _, err := usermem.CopyObjectIn(mem, attrs, &oa); err != nil {
		return "", 0, err
	}
	if oa.Length != uint32(nt.SizeOfObjectAttributes) {
		return "", 0, fmt.Errorf("object attributes length %d: %w", oa.Length, ntstatus.StatusInvalidParameter)
	}
	if oa.ObjectName == 0 {
		return "", nt.Handle(oa.RootDirectory), nil
	}
	var us nt.UnicodeString
	if _, err := usermem.CopyObjectIn(mem, hostarch.Addr(oa.ObjectName), &us); err != nil {
		return "", 0, err
	}
	name, err := usermem.CopyUTF16In(mem, hostarch.Addr(us.Buffer), int(us.Length))
	return name, nt.Handle(oa.RootDirectory), err
}

// objectSecurity applies the security descriptor of the wide
// OBJECT_ATTRIBUTES at attrs, if any, to obj.
func objectSecurity(mem usermem.IO, attrs hostarch.Addr, obj object) error {
	if attrs == 0 {
		return nil
	}
	var oa nt.ObjectAttributes
	if _, err := usermem.CopyObjectIn(mem, attrs, &oa); err != nil {
		return err
	}
	if oa.SecurityDescriptor == 0 {
		return nil
	}
	return obj.base().set(mem, hostarch.Addr(oa.SecurityDescriptor), ^uint32(0))
}
