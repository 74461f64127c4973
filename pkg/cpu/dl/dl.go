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

//go:build linux && (amd64 || arm64)

// Package dl loads a CPU backend from a shared object.
//
// The shared object exports BTCpu* functions with the C ABI below. Only
// BTCpuSimulate, BTCpuGetContext and BTCpuSetContext are required; every
// other symbol is optional and its absence disables the capability.
//
//	uint32_t BTCpuProcessInit(void);
//	uint32_t BTCpuThreadInit(void);
//	void     BTCpuSimulate(uint64_t (*dispatch)(uintptr_t, uintptr_t, uintptr_t), uintptr_t cookie);
//	uint32_t BTCpuGetContext(uint64_t thread, void *ctx);
//	uint32_t BTCpuSetContext(uint64_t thread, void *ctx);
//	void     BTCpuFlushInstructionCache2(uint64_t addr, uint64_t size);
//	void     BTCpuFlushInstructionCacheHeavy(uint64_t addr, uint64_t size);
//	void     BTCpuNotifyMemoryAlloc(uint64_t addr, uint64_t size, uint32_t type, uint32_t prot, int32_t after, uint32_t status);
//	void     BTCpuNotifyMemoryFree(uint64_t addr, uint64_t size, uint32_t type, int32_t after, uint32_t status);
//	void     BTCpuNotifyMemoryProtect(uint64_t addr, uint64_t size, uint32_t prot, int32_t after, uint32_t status);
//	void     BTCpuNotifyMapViewOfSection(uint64_t addr, uint64_t size, uint32_t prot);
//	void     BTCpuNotifyUnmapViewOfSection(uint64_t addr, int32_t after, uint32_t status);
//	void     BTCpuNotifyMemoryDirty(uint64_t addr, uint64_t size);
//	uint32_t BTCpuResetToConsistentState(void *rec, void *ctx);
//	uint32_t BTCpuGetProcessorInformation(void *info);
//
// dispatch is called with the cookie, the system call number and the guest
// address of its arguments. The low 32 bits of its result are the status
// to store in the guest return register; bit 32 asks BTCpuSimulate to
// return.
package dl

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/arch"
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/cpu"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/log"
	"gvisor.dev/compat32/pkg/ntstatus"
)

const stopBit = 1 << 32

// Backend is a CPU backend loaded from a shared object.
type Backend struct {
	path    string
	handle  uintptr
	missing []string
	present map[string]bool

	processInit   func() uint32
	threadInit    func() uint32
	simulate      func(dispatch, cookie uintptr)
	getContext    func(thread uint64, ctx []byte) uint32
	setContext    func(thread uint64, ctx []byte) uint32
	flushCache    func(addr, size uint64)
	flushHeavy    func(addr, size uint64)
	notifyAlloc   func(addr, size uint64, allocType, prot uint32, after int32, status uint32)
	notifyFree    func(addr, size uint64, freeType uint32, after int32, status uint32)
	notifyProtect func(addr, size uint64, prot uint32, after int32, status uint32)
	notifyMap     func(addr, size uint64, prot uint32)
	notifyUnmap   func(addr uint64, after int32, status uint32)
	notifyDirty   func(addr, size uint64)
	reset         func(rec, ctx []byte) uint32
	processorInfo func(info []byte) uint32
}

var (
	_ cpu.Backend       = (*Backend)(nil)
	_ cpu.Initializer   = (*Backend)(nil)
	_ cpu.CacheFlusher  = (*Backend)(nil)
	_ cpu.Notifier      = (*Backend)(nil)
	_ cpu.Resetter      = (*Backend)(nil)
	_ cpu.ProcessorInfo = (*Backend)(nil)
)

// Load opens the shared object at path and binds its BTCpu* symbols. It
// fails if a required symbol is missing.
func Load(path string) (*Backend, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("purego dlopen %s: %w", path, err)
	}
	b := &Backend{path: path, handle: handle, present: make(map[string]bool)}
	b.bind(&b.simulate, "BTCpuSimulate", true)
	b.bind(&b.getContext, "BTCpuGetContext", true)
	b.bind(&b.setContext, "BTCpuSetContext", true)
	b.bind(&b.processInit, "BTCpuProcessInit", false)
	b.bind(&b.threadInit, "BTCpuThreadInit", false)
	b.bind(&b.flushCache, "BTCpuFlushInstructionCache2", false)
	b.bind(&b.flushHeavy, "BTCpuFlushInstructionCacheHeavy", false)
	b.bind(&b.notifyAlloc, "BTCpuNotifyMemoryAlloc", false)
	b.bind(&b.notifyFree, "BTCpuNotifyMemoryFree", false)
	b.bind(&b.notifyProtect, "BTCpuNotifyMemoryProtect", false)
	b.bind(&b.notifyMap, "BTCpuNotifyMapViewOfSection", false)
	b.bind(&b.notifyUnmap, "BTCpuNotifyUnmapViewOfSection", false)
	b.bind(&b.notifyDirty, "BTCpuNotifyMemoryDirty", false)
	b.bind(&b.reset, "BTCpuResetToConsistentState", false)
	b.bind(&b.processorInfo, "BTCpuGetProcessorInformation", false)
	if err := cpu.Validate(b); err != nil {
		purego.Dlclose(handle)
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("Loaded CPU backend %s (%d symbols)", path, len(b.present))
	return b, nil
}

func (b *Backend) bind(fptr any, name string, required bool) {
	sym, err := purego.Dlsym(b.handle, name)
	if err != nil || sym == 0 {
		if required {
			b.missing = append(b.missing, name)
		} else {
			log.Debugf("CPU backend %s has no %s", b.path, name)
		}
		return
	}
	purego.RegisterFunc(fptr, sym)
	b.present[name] = true
}

// Missing returns the required symbols the shared object lacks.
func (b *Backend) Missing() []string {
	return b.missing
}

// Has returns true if the shared object exports the named symbol.
func (b *Backend) Has(name string) bool {
	return b.present[name]
}

// session is one running Simulate call.
type session struct {
	ctx context.Context
	g   cpu.Guest
}

var (
	dispatchOnce sync.Once
	dispatchFn   uintptr
	sessions     sync.Map // cookie uintptr -> *session
	nextCookie   atomic.Uintptr
)

// dispatch is the callback handed to BTCpuSimulate.
func dispatch(cookie, number, args uintptr) uintptr {
	v, ok := sessions.Load(cookie)
	if !ok {
		return stopBit | uintptr(ntstatus.StatusInternalError)
	}
	s := v.(*session)
	if s.ctx.Err() != nil {
		return stopBit | uintptr(ntstatus.StatusCancelled)
	}
	status, resume := s.g.Syscall(s.ctx, uint32(number), uint32(args))
	r := uintptr(status)
	if !resume {
		r |= stopBit
	}
	return r
}

// Simulate implements cpu.Backend.Simulate.
func (b *Backend) Simulate(ctx context.Context, g cpu.Guest) error {
	dispatchOnce.Do(func() {
		dispatchFn = purego.NewCallback(dispatch)
	})
	cookie := nextCookie.Add(1)
	sessions.Store(cookie, &session{ctx: ctx, g: g})
	defer sessions.Delete(cookie)
	b.simulate(dispatchFn, cookie)
	return ctx.Err()
}

func statusError(op string, st uint32) error {
	if s := ntstatus.Status(st); s.IsError() {
		return fmt.Errorf("%s: %w", op, s)
	}
	return nil
}

// GetContext implements cpu.Backend.GetContext.
func (b *Backend) GetContext(thread nt.Handle, c arch.Context) error {
	buf := binary.Marshal(nil, hostarch.ByteOrder, c)
	if err := statusError("BTCpuGetContext", b.getContext(uint64(thread), buf)); err != nil {
		return err
	}
	binary.Unmarshal(buf, hostarch.ByteOrder, c)
	return nil
}

// SetContext implements cpu.Backend.SetContext.
func (b *Backend) SetContext(thread nt.Handle, c arch.Context) error {
	buf := binary.Marshal(nil, hostarch.ByteOrder, c)
	return statusError("BTCpuSetContext", b.setContext(uint64(thread), buf))
}

// ProcessInit implements cpu.Initializer.ProcessInit.
func (b *Backend) ProcessInit() error {
	if b.processInit == nil {
		return nil
	}
	return statusError("BTCpuProcessInit", b.processInit())
}

// ThreadInit implements cpu.Initializer.ThreadInit.
func (b *Backend) ThreadInit() error {
	if b.threadInit == nil {
		return nil
	}
	return statusError("BTCpuThreadInit", b.threadInit())
}

// FlushInstructionCache implements cpu.CacheFlusher.FlushInstructionCache.
func (b *Backend) FlushInstructionCache(addr, size uint64) {
	if b.flushCache != nil {
		b.flushCache(addr, size)
	}
}

// FlushInstructionCacheHeavy implements
// cpu.CacheFlusher.FlushInstructionCacheHeavy.
func (b *Backend) FlushInstructionCacheHeavy(addr, size uint64) {
	if b.flushHeavy != nil {
		b.flushHeavy(addr, size)
	}
}

func boolArg(v bool) int32 {
	if v {
		return 1
	}
	return 0
}

// NotifyMemoryAlloc implements cpu.Notifier.NotifyMemoryAlloc.
func (b *Backend) NotifyMemoryAlloc(addr, size uint64, allocType, prot uint32, after bool, status ntstatus.Status) {
	if b.notifyAlloc != nil {
		b.notifyAlloc(addr, size, allocType, prot, boolArg(after), uint32(status))
	}
}

// NotifyMemoryFree implements cpu.Notifier.NotifyMemoryFree.
func (b *Backend) NotifyMemoryFree(addr, size uint64, freeType uint32, after bool, status ntstatus.Status) {
	if b.notifyFree != nil {
		b.notifyFree(addr, size, freeType, boolArg(after), uint32(status))
	}
}

// NotifyMemoryProtect implements cpu.Notifier.NotifyMemoryProtect.
func (b *Backend) NotifyMemoryProtect(addr, size uint64, prot uint32, after bool, status ntstatus.Status) {
	if b.notifyProtect != nil {
		b.notifyProtect(addr, size, prot, boolArg(after), uint32(status))
	}
}

// NotifyMapViewOfSection implements cpu.Notifier.NotifyMapViewOfSection.
func (b *Backend) NotifyMapViewOfSection(addr, size uint64, prot uint32) {
	if b.notifyMap != nil {
		b.notifyMap(addr, size, prot)
	}
}

// NotifyUnmapViewOfSection implements cpu.Notifier.NotifyUnmapViewOfSection.
func (b *Backend) NotifyUnmapViewOfSection(addr uint64, after bool, status ntstatus.Status) {
	if b.notifyUnmap != nil {
		b.notifyUnmap(addr, boolArg(after), uint32(status))
	}
}

// NotifyMemoryDirty implements cpu.Notifier.NotifyMemoryDirty.
func (b *Backend) NotifyMemoryDirty(addr, size uint64) {
	if b.notifyDirty != nil {
		b.notifyDirty(addr, size)
	}
}

// ResetToConsistentState implements cpu.Resetter.ResetToConsistentState.
func (b *Backend) ResetToConsistentState(rec *nt.ExceptionRecord, c arch.Wide) error {
	if b.reset == nil {
		return nil
	}
	recBuf := binary.Marshal(nil, hostarch.ByteOrder, rec)
	ctxBuf := binary.Marshal(nil, hostarch.ByteOrder, c)
	if err := statusError("BTCpuResetToConsistentState", b.reset(recBuf, ctxBuf)); err != nil {
		return err
	}
	binary.Unmarshal(recBuf, hostarch.ByteOrder, rec)
	binary.Unmarshal(ctxBuf, hostarch.ByteOrder, c)
	return nil
}

// ProcessorInformation implements cpu.ProcessorInfo.ProcessorInformation.
func (b *Backend) ProcessorInformation() (nt.SystemCPUInformationInfo, error) {
	var info nt.SystemCPUInformationInfo
	if b.processorInfo == nil {
		return info, ntstatus.StatusNotImplemented
	}
	buf := make([]byte, nt.SizeOfSystemCPUInformationInfo)
	if err := statusError("BTCpuGetProcessorInformation", b.processorInfo(buf)); err != nil {
		return info, err
	}
	binary.Unmarshal(buf, hostarch.ByteOrder, &info)
	return info, nil
}
