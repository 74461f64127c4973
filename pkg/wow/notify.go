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

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/xproc"
)

// Peers finds the work lists of other guest processes.
type Peers interface {
	// WorkList returns the work list of the guest process with the given
	// id, or nil if it has none.
	WorkList(ctx context.Context, pid uint64) (*xproc.List, error)
}

// target is where the memory notifications of one call go: the backend
// for the current process, the target's work list for another guest
// process, or nowhere.
type target struct {
	tc    *TranslationContext
	local bool
	list  *xproc.List
}

// processID returns the id of process and whether it runs a guest.
func (t *Thread) processID(process nt.Handle) (uint64, bool, error) {
	buf := t.arena.Alloc(nt.SizeOfProcessBasicInformationInfo)
	if _, err := t.kernel().QueryInformationProcess(t.ctx, process, nt.ProcessBasicInformation, buf); err != nil {
		return 0, false, err
	}
	var info nt.ProcessBasicInformationInfo
	if err := t.tr.ReadWide(buf.Addr, &info); err != nil {
		return 0, false, err
	}
	if info.UniqueProcessID == t.caller.Process {
		return info.UniqueProcessID, true, nil
	}
	buf = t.arena.Alloc(8)
	if _, err := t.kernel().QueryInformationProcess(t.ctx, process, nt.ProcessWow64Information, buf); err != nil {
		return 0, false, err
	}
	var peb uint64
	if err := t.tr.ReadWide(buf.Addr, &peb); err != nil {
		return 0, false, err
	}
	return info.UniqueProcessID, peb != 0, nil
}

// target resolves the notification target for memory changes in process.
func (t *Thread) target(process nt.Handle) target {
	g := target{tc: t.tc}
	if process == nt.CurrentProcess {
		g.local = true
		return g
	}
	pid, guest, err := t.processID(process)
	switch {
	case err != nil:
		t.tc.logger.Debugf("No notification target for process handle %#x: %v", uint64(process), err)
	case pid == t.caller.Process:
		g.local = true
	case guest && t.tc.Peers != nil:
		if g.list, err = t.tc.Peers.WorkList(t.ctx, pid); err != nil {
			t.tc.logger.Warningf("Opening work list of process %#x: %v", pid, err)
		}
	}
	return g
}

func (g target) send(op xproc.Op, addr, size uint64, args ...uint32) {
	if g.list == nil {
		return
	}
	if !g.list.Send(op, addr, size, args...) {
		g.tc.limited.Warningf("Work list full, dropping %v of %#x+%#x", op, addr, size)
	}
}

func (g target) preAlloc(addr, size uint64, allocType, prot uint32) {
	if !g.local {
		g.send(xproc.OpPreVirtualAlloc, addr, size, allocType, prot)
	} else if n := g.tc.notifier; n != nil {
		n.NotifyMemoryAlloc(addr, size, allocType, prot, false, 0)
	}
}

func (g target) postAlloc(addr, size uint64, allocType, prot uint32, s ntstatus.Status) {
	if !g.local {
		g.send(xproc.OpPostVirtualAlloc, addr, size, allocType, prot, uint32(s))
	} else if n := g.tc.notifier; n != nil {
		n.NotifyMemoryAlloc(addr, size, allocType, prot, true, s)
	}
}

func (g target) preFree(addr, size uint64, freeType uint32) {
	if !g.local {
		g.send(xproc.OpPreVirtualFree, addr, size, freeType)
	} else if n := g.tc.notifier; n != nil {
		n.NotifyMemoryFree(addr, size, freeType, false, 0)
	}
}

func (g target) postFree(addr, size uint64, freeType uint32, s ntstatus.Status) {
	if !g.local {
		g.send(xproc.OpPostVirtualFree, addr, size, freeType, uint32(s))
	} else if n := g.tc.notifier; n != nil {
		n.NotifyMemoryFree(addr, size, freeType, true, s)
	}
}

func (g target) preProtect(addr, size uint64, prot uint32) {
	if !g.local {
		g.send(xproc.OpPreVirtualProtect, addr, size, prot)
	} else if n := g.tc.notifier; n != nil {
		n.NotifyMemoryProtect(addr, size, prot, false, 0)
	}
}

func (g target) postProtect(addr, size uint64, prot uint32, s ntstatus.Status) {
	if !g.local {
		g.send(xproc.OpPostVirtualProtect, addr, size, prot, uint32(s))
	} else if n := g.tc.notifier; n != nil {
		n.NotifyMemoryProtect(addr, size, prot, true, s)
	}
}

func (g target) flush(addr, size uint64) {
	if !g.local {
		g.send(xproc.OpFlushCache, addr, size)
	} else if f := g.tc.flusher; f != nil {
		f.FlushInstructionCache(addr, size)
	}
}

func (g target) written(addr, size uint64) {
	if !g.local {
		g.send(xproc.OpMemoryWrite, addr, size)
	} else if n := g.tc.notifier; n != nil {
		n.NotifyMemoryDirty(addr, size)
	}
}

func (g target) mapped(addr, size uint64, prot uint32) {
	if n := g.tc.notifier; g.local && n != nil {
		n.NotifyMapViewOfSection(addr, size, prot)
	}
}

func (g target) preUnmap(addr uint64) {
	if n := g.tc.notifier; g.local && n != nil {
		n.NotifyUnmapViewOfSection(addr, false, 0)
	}
}

// postUnmap reports an unmapping. Another process cannot tell which of
// its translations lived in the view, so it is asked to flush them all.
func (g target) postUnmap(addr uint64, s ntstatus.Status) {
	switch {
	case g.local:
		if n := g.tc.notifier; n != nil {
			n.NotifyUnmapViewOfSection(addr, true, s)
		}
	case g.list != nil && s.IsSuccess():
		g.list.RequestFlush()
	}
}
