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
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/host"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

const (
	memBase  = 0x10000
	memSize  = 1 << 20
	attrAddr = memBase + 0x1000
	nameAddr = memBase + 0x1100
	dataAddr = memBase + 0x2000
	bufAddr  = memBase + 0x4000
	iosbAddr = memBase + 0x6000
)

type fixture struct {
	host   *Host
	proc   *Process
	thread *Thread
	mem    *usermem.BytesIO
	caller *host.Caller
	ctx    context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := New(Options{})
	mem := &usermem.BytesIO{Base: memBase, Bytes: make([]byte, memSize)}
	p := h.NewProcess(`\??\C:\test.exe`, mem, 0)
	th := p.NewThread()
	c := th.Caller(mem)
	return &fixture{host: h, proc: p, thread: th, mem: mem, caller: c, ctx: host.WithCaller(context.Background(), c)}
}

// attrs writes a wide OBJECT_ATTRIBUTES naming name relative to root.
func (f *fixture) attrs(t *testing.T, name string, root nt.Handle) hostarch.Addr {
	t.Helper()
	oa := nt.ObjectAttributes{
		Length:        uint32(nt.SizeOfObjectAttributes),
		RootDirectory: uint64(root),
		ObjectName:    uint64(f.unicode(t, name)),
	}
	if _, err := usermem.CopyObjectOut(f.mem, attrAddr, &oa); err != nil {
		t.Fatalf("CopyObjectOut: %v", err)
	}
	return attrAddr
}

// unicode writes a wide UNICODE_STRING holding s.
func (f *fixture) unicode(t *testing.T, s string) hostarch.Addr {
	t.Helper()
	chars := usermem.EncodeUTF16(s)
	if _, err := f.mem.CopyOut(nameAddr+0x20, chars); err != nil {
		t.Fatalf("CopyOut name: %v", err)
	}
	us := nt.UnicodeString{Length: uint16(len(chars)), MaximumLength: uint16(len(chars)), Buffer: nameAddr + 0x20}
	if _, err := usermem.CopyObjectOut(f.mem, nameAddr, &us); err != nil {
		t.Fatalf("CopyObjectOut: %v", err)
	}
	return nameAddr
}

func (f *fixture) buffer(n int) hostarch.Buffer {
	return hostarch.Buffer{Addr: bufAddr, Data: make([]byte, n)}
}

func TestCallerRequired(t *testing.T) {
	h := New(Options{})
	if _, err := h.CreateEvent(context.Background(), 0, 0, nt.NotificationEvent, false); !errors.Is(err, ntstatus.StatusInternalError) {
		t.Errorf("CreateEvent without caller = %v, want %v", err, ntstatus.StatusInternalError)
	}
}

func TestVirtualMemory(t *testing.T) {
	f := newFixture(t)
	var addr, size uint64 = 0, 0x1800
	if err := f.host.AllocateVirtualMemory(f.ctx, nt.CurrentProcess, &addr, 0, &size, nt.MEM_RESERVE|nt.MEM_COMMIT, nt.PAGE_READWRITE); err != nil {
		t.Fatalf("AllocateVirtualMemory: %v", err)
	}
	if addr == 0 || addr%hostarch.AllocationGranularity != 0 || size != 0x2000 {
		t.Fatalf("allocation = [%#x, +%#x), want granularity-aligned 0x2000 bytes", addr, size)
	}

	buf := f.buffer(nt.SizeOfMemoryBasicInformationInfo)
	if _, err := f.host.QueryVirtualMemory(f.ctx, nt.CurrentProcess, addr+0x1000, nt.MemoryBasicInformation, buf); err != nil {
		t.Fatalf("QueryVirtualMemory: %v", err)
	}
	var info nt.MemoryBasicInformationInfo
	binary.Unmarshal(buf.Data, hostarch.ByteOrder, &info)
	want := nt.MemoryBasicInformationInfo{
		BaseAddress:       addr + 0x1000,
		AllocationBase:    addr,
		AllocationProtect: nt.PAGE_READWRITE,
		RegionSize:        0x1000,
		State:             nt.MEM_COMMIT,
		Protect:           nt.PAGE_READWRITE,
		Type:              nt.MEM_PRIVATE,
	}
	if info != want {
		t.Errorf("QueryVirtualMemory = %+v, want %+v", info, want)
	}

	pa, ps := addr, uint64(1)
	var old uint32
	if err := f.host.ProtectVirtualMemory(f.ctx, nt.CurrentProcess, &pa, &ps, nt.PAGE_READONLY, &old); err != nil {
		t.Fatalf("ProtectVirtualMemory: %v", err)
	}
	if pa != addr || ps != hostarch.PageSize || old != nt.PAGE_READWRITE {
		t.Errorf("ProtectVirtualMemory = [%#x, +%#x) old %#x", pa, ps, old)
	}

	fa, fs := addr, uint64(0)
	if err := f.host.FreeVirtualMemory(f.ctx, nt.CurrentProcess, &fa, &fs, nt.MEM_RELEASE); err != nil {
		t.Fatalf("FreeVirtualMemory: %v", err)
	}
	if fs != 0x2000 {
		t.Errorf("released %#x bytes, want 0x2000", fs)
	}
	if _, err := f.host.QueryVirtualMemory(f.ctx, nt.CurrentProcess, addr, nt.MemoryBasicInformation, buf); err != nil {
		t.Fatalf("QueryVirtualMemory: %v", err)
	}
	binary.Unmarshal(buf.Data, hostarch.ByteOrder, &info)
	if info.State != nt.MEM_FREE {
		t.Errorf("state after release = %#x, want MEM_FREE", info.State)
	}
}

func TestVirtualMemoryErrors(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct {
		name      string
		addr      uint64
		size      uint64
		allocType uint32
		prot      uint32
		want      ntstatus.Status
	}{
		{"zero size", 0, 0, nt.MEM_COMMIT | nt.MEM_RESERVE, nt.PAGE_READWRITE, ntstatus.StatusInvalidParameter},
		{"bad type", 0, 0x1000, 0, nt.PAGE_READWRITE, ntstatus.StatusInvalidParameter},
		{"bad protection", 0, 0x1000, nt.MEM_COMMIT | nt.MEM_RESERVE, 0x3, ntstatus.StatusInvalidPageProtection},
		{"commit outside reservation", 0x50000000, 0x1000, nt.MEM_COMMIT, nt.PAGE_READWRITE, ntstatus.StatusConflictingAddresses},
	} {
		t.Run(tc.name, func(t *testing.T) {
			addr, size := tc.addr, tc.size
			err := f.host.AllocateVirtualMemory(f.ctx, nt.CurrentProcess, &addr, 0, &size, tc.allocType, tc.prot)
			if got := ntstatus.FromError(err); got != tc.want {
				t.Errorf("AllocateVirtualMemory = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestZeroBitsLimit(t *testing.T) {
	f := newFixture(t)
	var addr, size uint64 = 0, 0x10000
	if err := f.host.AllocateVirtualMemory(f.ctx, nt.CurrentProcess, &addr, 0x7fffffff, &size, nt.MEM_RESERVE, nt.PAGE_READWRITE); err != nil {
		t.Fatalf("AllocateVirtualMemory: %v", err)
	}
	if addr+size-1 > 0x7fffffff {
		t.Errorf("allocation [%#x, +%#x) above the mask", addr, size)
	}
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	ev, err := f.host.CreateEvent(f.ctx, 0, 0, nt.SynchronizationEvent, false)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	short := nt.RelativeTimeout(time.Millisecond)
	if err := f.host.WaitForSingleObject(f.ctx, ev, false, short); err != ntstatus.StatusTimeout {
		t.Errorf("wait on unsignaled event = %v, want %v", err, ntstatus.StatusTimeout)
	}
	if prev, err := f.host.SetEvent(f.ctx, ev); err != nil || prev != 0 {
		t.Errorf("SetEvent = %d, %v", prev, err)
	}
	if err := f.host.WaitForSingleObject(f.ctx, ev, false, short); err != nil {
		t.Errorf("wait on signaled event = %v", err)
	}
	// Synchronization events reset when a wait is satisfied.
	if err := f.host.WaitForSingleObject(f.ctx, ev, false, short); err != ntstatus.StatusTimeout {
		t.Errorf("second wait = %v, want %v", err, ntstatus.StatusTimeout)
	}
	if _, err := f.host.CreateEvent(f.ctx, 0, 0, 7, false); ntstatus.FromError(err) != ntstatus.StatusInvalidParameter {
		t.Errorf("CreateEvent with bad type = %v", err)
	}
}

func TestWaitMultiple(t *testing.T) {
	f := newFixture(t)
	a, _ := f.host.CreateEvent(f.ctx, 0, 0, nt.NotificationEvent, false)
	b, _ := f.host.CreateEvent(f.ctx, 0, 0, nt.NotificationEvent, true)
	short := nt.RelativeTimeout(time.Millisecond)
	err := f.host.WaitForMultipleObjects(f.ctx, []nt.Handle{a, b}, false, false, short)
	if got := ntstatus.FromError(err); got != ntstatus.StatusWait1 {
		t.Errorf("wait any = %v, want %v", got, ntstatus.StatusWait1)
	}
	if err := f.host.WaitForMultipleObjects(f.ctx, []nt.Handle{a, b}, true, false, short); err != ntstatus.StatusTimeout {
		t.Errorf("wait all = %v, want %v", err, ntstatus.StatusTimeout)
	}
	if err := f.host.WaitForMultipleObjects(f.ctx, nil, false, false, short); ntstatus.FromError(err) != ntstatus.StatusInvalidParameter {
		t.Errorf("empty wait = %v", err)
	}
}

func TestWaitCancelled(t *testing.T) {
	f := newFixture(t)
	ev, _ := f.host.CreateEvent(f.ctx, 0, 0, nt.NotificationEvent, false)
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	if err := f.host.WaitForSingleObject(ctx, ev, false, nt.Timeout{Infinite: true}); !errors.Is(err, ntstatus.StatusCancelled) {
		t.Errorf("wait = %v, want %v", err, ntstatus.StatusCancelled)
	}
}

func TestAPCDelivery(t *testing.T) {
	f := newFixture(t)
	var got []host.APC
	f.caller.DeliverAPC = func(ctx context.Context, apc host.APC) {
		got = append(got, apc)
	}
	apc := host.APC{Routine: 0x401000, Args: [3]uint64{1, 2, 3}}
	if err := f.host.QueueApcThread(f.ctx, nt.CurrentThread, apc); err != nil {
		t.Fatalf("QueueApcThread: %v", err)
	}
	if n := f.thread.PendingAPCs(); n != 1 {
		t.Errorf("PendingAPCs = %d, want 1", n)
	}
	// A non-alertable delay does not deliver.
	if err := f.host.DelayExecution(f.ctx, false, nt.RelativeTimeout(time.Millisecond)); err != nil {
		t.Errorf("DelayExecution = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("APC delivered during a non-alertable delay")
	}
	if err := f.host.DelayExecution(f.ctx, true, nt.Timeout{Infinite: true}); err != ntstatus.StatusUserAPC {
		t.Errorf("alertable DelayExecution = %v, want %v", err, ntstatus.StatusUserAPC)
	}
	if diff := cmp.Diff([]host.APC{apc}, got); diff != "" {
		t.Errorf("delivered APCs mismatch (-want +got):\n%s", diff)
	}

	f.host.QueueApcThread(f.ctx, nt.CurrentThread, apc)
	if err := f.host.TestAlert(f.ctx); err != nil {
		t.Errorf("TestAlert = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("TestAlert delivered %d APCs in total, want 2", len(got))
	}
}

func TestHandles(t *testing.T) {
	f := newFixture(t)
	ev, _ := f.host.CreateEvent(f.ctx, 0, 0, nt.NotificationEvent, false)
	dup, err := f.host.DuplicateObject(f.ctx, nt.CurrentProcess, ev, nt.CurrentProcess, 0, 0, nt.DUPLICATE_SAME_ACCESS)
	if err != nil {
		t.Fatalf("DuplicateObject: %v", err)
	}
	if dup == ev {
		t.Errorf("duplicate has the source handle value %#x", ev)
	}
	if err := f.host.Close(f.ctx, ev); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := f.host.Close(f.ctx, ev); ntstatus.FromError(err) != ntstatus.StatusInvalidHandle {
		t.Errorf("second Close = %v, want %v", err, ntstatus.StatusInvalidHandle)
	}
	if _, err := f.host.SetEvent(f.ctx, dup); err != nil {
		t.Errorf("SetEvent through duplicate: %v", err)
	}
	if _, err := f.host.SetEvent(f.ctx, nt.CurrentProcess); ntstatus.FromError(err) != ntstatus.StatusObjectTypeMismatch {
		t.Errorf("SetEvent on a process = %v, want %v", err, ntstatus.StatusObjectTypeMismatch)
	}
}

func TestFiles(t *testing.T) {
	f := newFixture(t)
	f.host.AddFile(`\??\C:\in.txt`, []byte("hello"))

	h, err := f.host.CreateFile(f.ctx, 0, f.attrs(t, `\??\C:\in.txt`, 0), iosbAddr, 0, 0, 0, nt.FILE_OPEN, 0, nil)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	var iosb nt.IOStatusBlock
	usermem.CopyObjectIn(f.mem, iosbAddr, &iosb)
	if iosb.Status != 0 || iosb.Information != nt.FILE_OPENED {
		t.Errorf("open IOSB = %+v", iosb)
	}

	if err := f.host.ReadFile(f.ctx, h, 0, iosbAddr, dataAddr, 3, nil); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := f.host.ReadFile(f.ctx, h, 0, iosbAddr, dataAddr+3, 100, nil); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	usermem.CopyObjectIn(f.mem, iosbAddr, &iosb)
	if iosb.Information != 2 {
		t.Errorf("second read transferred %d bytes, want 2", iosb.Information)
	}
	got, _ := usermem.CopyBytesIn(f.mem, dataAddr, 5)
	if string(got) != "hello" {
		t.Errorf("read %q, want %q", got, "hello")
	}
	if err := f.host.ReadFile(f.ctx, h, 0, iosbAddr, dataAddr, 1, nil); err != ntstatus.StatusEndOfFile {
		t.Errorf("read at end = %v, want %v", err, ntstatus.StatusEndOfFile)
	}

	off := int64(5)
	f.mem.CopyOut(dataAddr, []byte(", world"))
	if err := f.host.WriteFile(f.ctx, h, 0, iosbAddr, dataAddr, 7, &off); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if data, _ := f.host.File(`\??\C:\in.txt`); string(data) != "hello, world" {
		t.Errorf("file contents = %q", data)
	}

	for _, tc := range []struct {
		name        string
		path        string
		disposition uint32
		want        ntstatus.Status
	}{
		{"open missing", `\??\C:\missing`, nt.FILE_OPEN, ntstatus.StatusObjectNameNotFound},
		{"create existing", `\??\C:\in.txt`, nt.FILE_CREATE, ntstatus.StatusObjectNameCollision},
		{"bad disposition", `\??\C:\in.txt`, 42, ntstatus.StatusInvalidParameter},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.host.CreateFile(f.ctx, 0, f.attrs(t, tc.path, 0), iosbAddr, 0, 0, 0, tc.disposition, 0, nil)
			if got := ntstatus.FromError(err); got != tc.want {
				t.Errorf("CreateFile = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	f := newFixture(t)
	k, disp, err := f.host.CreateKey(f.ctx, 0, f.attrs(t, `\Registry\Machine\Software\Test`, 0), 0, 0, 0)
	if err != nil || disp != nt.REG_CREATED_NEW_KEY {
		t.Fatalf("CreateKey = %d, %v", disp, err)
	}
	if err := f.host.SetValueKey(f.ctx, k, f.unicode(t, "Value"), 0, nt.REG_DWORD, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SetValueKey: %v", err)
	}

	opened, err := f.host.OpenKey(f.ctx, 0, f.attrs(t, `\REGISTRY\MACHINE\SOFTWARE\TEST`, 0))
	if err != nil {
		t.Fatalf("OpenKey: %v", err)
	}
	name := f.unicode(t, "value")
	buf := f.buffer(nt.SizeOfKeyValuePartialInformationHeader + 4)
	n, err := f.host.QueryValueKey(f.ctx, opened, name, nt.KeyValuePartialInformation, buf)
	if err != nil {
		t.Fatalf("QueryValueKey: %v", err)
	}
	var hdr nt.KeyValuePartialInformationHeader
	binary.Unmarshal(buf.Data[:nt.SizeOfKeyValuePartialInformationHeader], hostarch.ByteOrder, &hdr)
	if n != uint32(buf.Len()) || hdr.Type != nt.REG_DWORD || hdr.DataLength != 4 {
		t.Errorf("QueryValueKey = %d, %+v", n, hdr)
	}

	short := f.buffer(nt.SizeOfKeyValuePartialInformationHeader)
	if _, err := f.host.QueryValueKey(f.ctx, opened, name, nt.KeyValuePartialInformation, short); err != ntstatus.StatusBufferOverflow {
		t.Errorf("QueryValueKey with header-only buffer = %v, want %v", err, ntstatus.StatusBufferOverflow)
	}
	tiny := f.buffer(4)
	if _, err := f.host.QueryValueKey(f.ctx, opened, name, nt.KeyValuePartialInformation, tiny); err != ntstatus.StatusBufferTooSmall {
		t.Errorf("QueryValueKey with tiny buffer = %v, want %v", err, ntstatus.StatusBufferTooSmall)
	}

	if _, err := f.host.OpenKey(f.ctx, 0, f.attrs(t, `\Registry\Machine\Missing`, 0)); ntstatus.FromError(err) != ntstatus.StatusObjectNameNotFound {
		t.Errorf("OpenKey of a missing key = %v", err)
	}
	_, disp, err = f.host.CreateKey(f.ctx, 0, f.attrs(t, "Sub", k), 0, 0, 0)
	if err != nil || disp != nt.REG_CREATED_NEW_KEY {
		t.Fatalf("CreateKey relative = %d, %v", disp, err)
	}
	if _, disp, _ := f.host.CreateKey(f.ctx, 0, f.attrs(t, `\Registry\Machine\Software\Test\Sub`, 0), 0, 0, 0); disp != nt.REG_OPENED_EXISTING_KEY {
		t.Errorf("CreateKey of existing key disposition = %d", disp)
	}
}

func TestJobs(t *testing.T) {
	f := newFixture(t)
	j, err := f.host.CreateJobObject(f.ctx, 0, 0)
	if err != nil {
		t.Fatalf("CreateJobObject: %v", err)
	}
	if err := f.host.AssignProcessToJobObject(f.ctx, j, nt.CurrentProcess); err != nil {
		t.Fatalf("AssignProcessToJobObject: %v", err)
	}
	if err := f.host.AssignProcessToJobObject(f.ctx, j, nt.CurrentProcess); ntstatus.FromError(err) != ntstatus.StatusAccessDenied {
		t.Errorf("second assignment = %v, want %v", err, ntstatus.StatusAccessDenied)
	}

	buf := f.buffer(nt.SizeOfJobObjectBasicProcessIDListHeader + 8)
	n, err := f.host.QueryInformationJobObject(f.ctx, j, nt.JobObjectBasicProcessIdList, buf)
	if err != nil {
		t.Fatalf("QueryInformationJobObject: %v", err)
	}
	var hdr nt.JobObjectBasicProcessIDListHeader
	binary.Unmarshal(buf.Data[:nt.SizeOfJobObjectBasicProcessIDListHeader], hostarch.ByteOrder, &hdr)
	id := hostarch.ByteOrder.Uint64(buf.Data[nt.SizeOfJobObjectBasicProcessIDListHeader:])
	if n != uint32(buf.Len()) || hdr.NumberOfAssignedProcesses != 1 || hdr.NumberOfProcessIdsInList != 1 || id != f.proc.ID {
		t.Errorf("process id list = %d, %+v, %#x", n, hdr, id)
	}

	limits := nt.JobObjectBasicLimitInformationInfo{LimitFlags: nt.JOB_OBJECT_LIMIT_ACTIVE_PROCESS, ActiveProcessLimit: 3}
	img := binary.Marshal(nil, hostarch.ByteOrder, &limits)
	if err := f.host.SetInformationJobObject(f.ctx, j, nt.JobObjectBasicLimitInformation, hostarch.Buffer{Addr: bufAddr, Data: img}); err != nil {
		t.Fatalf("SetInformationJobObject: %v", err)
	}
	ext := f.buffer(nt.SizeOfJobObjectExtendedLimitInformationInfo)
	if _, err := f.host.QueryInformationJobObject(f.ctx, j, nt.JobObjectExtendedLimitInformation, ext); err != nil {
		t.Fatalf("QueryInformationJobObject: %v", err)
	}
	var got nt.JobObjectExtendedLimitInformationInfo
	binary.Unmarshal(ext.Data, hostarch.ByteOrder, &got)
	if got.BasicLimitInformation.ActiveProcessLimit != 3 {
		t.Errorf("ActiveProcessLimit = %d, want 3", got.BasicLimitInformation.ActiveProcessLimit)
	}

	if err := f.host.TerminateProcess(f.ctx, 0, ntstatus.StatusSuccess); err != nil {
		t.Fatalf("TerminateProcess: %v", err)
	}
	acct := f.buffer(nt.SizeOfJobObjectBasicAccountingInformationInfo)
	if _, err := f.host.QueryInformationJobObject(f.ctx, j, nt.JobObjectBasicAccountingInformation, acct); err != nil {
		t.Fatalf("QueryInformationJobObject: %v", err)
	}
	var info nt.JobObjectBasicAccountingInformationInfo
	binary.Unmarshal(acct.Data, hostarch.ByteOrder, &info)
	if info.TotalProcesses != 1 || info.ActiveProcesses != 0 || info.TotalTerminatedProcesses != 1 {
		t.Errorf("accounting = %+v", info)
	}
	if _, err := f.host.QueryInformationJobObject(f.ctx, j, 99, acct); ntstatus.FromError(err) != ntstatus.StatusInvalidInfoClass {
		t.Errorf("unknown class = %v", err)
	}
}

func TestProcessTermination(t *testing.T) {
	f := newFixture(t)
	if err := f.host.TerminateProcess(f.ctx, nt.CurrentProcess, 0x1234); err != nil {
		t.Fatalf("TerminateProcess: %v", err)
	}
	if status, exited := f.proc.Exited(); !exited || status != 0x1234 {
		t.Errorf("Exited = %#x, %t", status, exited)
	}
	if err := f.host.TerminateProcess(f.ctx, nt.CurrentProcess, 0); ntstatus.FromError(err) != ntstatus.StatusProcessIsTerminating {
		t.Errorf("second TerminateProcess = %v", err)
	}
	if err := f.host.WaitForSingleObject(f.ctx, nt.CurrentProcess, false, nt.RelativeTimeout(time.Millisecond)); err != nil {
		t.Errorf("wait on exited process = %v", err)
	}
}

func TestWin32k(t *testing.T) {
	f := newFixture(t)
	w := NewWin32k(f.host, 0x40)
	w.SetKeyState(0x10, -128)
	ctx := f.ctx
	if v, _ := w.CallOneParam(ctx, 0xfffffffffffffff0, 3); v != 0xfffffffffffffff0 {
		t.Errorf("CallOneParam = %#x", v)
	}
	if v, _ := w.CallTwoParam(ctx, 2, 3, 1); v != 5 {
		t.Errorf("CallTwoParam = %d", v)
	}
	if s, _ := w.GetKeyState(ctx, 0x10); s != -128 {
		t.Errorf("GetKeyState = %d", s)
	}
	if d, err := w.GetThreadDesktop(ctx, uint32(f.thread.ID)); err != nil || d != 0x40 {
		t.Errorf("GetThreadDesktop = %#x, %v", d, err)
	}
	if _, err := w.GetThreadDesktop(ctx, 1); ntstatus.FromError(err) != ntstatus.StatusInvalidCid {
		t.Errorf("GetThreadDesktop of unknown thread = %v", err)
	}
	if r, _ := w.MessageCall(ctx, 0x20, 0x10, 1, -1, 0, 0, true); r != -1 {
		t.Errorf("MessageCall = %d", r)
	}
	want := []Message{{HWND: 0x20, Msg: 0x10, WParam: 1, LParam: -1, ANSI: true}}
	if diff := cmp.Diff(want, w.Messages()); diff != "" {
		t.Errorf("Messages mismatch (-want +got):\n%s", diff)
	}
}
