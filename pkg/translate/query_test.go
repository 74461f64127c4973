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

package translate

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// fixedHost answers a fixed-size query with v.
func fixedHost(calls *int, v any) HostQuery {
	return func(buf hostarch.Buffer) (uint32, error) {
		*calls++
		b := encode(v)
		if buf.Len() < len(b) {
			return uint32(len(b)), ntstatus.StatusInfoLengthMismatch
		}
		copy(buf.Data, b)
		return uint32(len(b)), nil
	}
}

// variableHost answers a variable-length query with the image build
// returns for a buffer at the given address.
func variableHost(tooSmall ntstatus.Status, build func(addr hostarch.Addr) []byte) HostQuery {
	return func(buf hostarch.Buffer) (uint32, error) {
		b := build(buf.Addr)
		if buf.Len() < len(b) {
			return uint32(len(b)), tooSmall
		}
		copy(buf.Data, b)
		return uint32(len(b)), nil
	}
}

func TestQueryFixed(t *testing.T) {
	tr, guest := newTestTranslator()
	calls := 0
	q := fixedHost(&calls, &nt.ProcessBasicInformationInfo{
		ExitStatus:                   uint32(ntstatus.StatusPending),
		PebBaseAddress:               0x7ffd_f000,
		AffinityMask:                 0xf_0000_000f,
		BasePriority:                 8,
		UniqueProcessID:              0x44,
		InheritedFromUniqueProcessID: 0x20,
	})
	c, err := ProcessClass(nt.ProcessBasicInformation)
	if err != nil {
		t.Fatalf("ProcessClass failed: %v", err)
	}

	n, err := tr.Query(c, q, guestBase, uint32(nt32.SizeOfProcessBasicInformationInfo-1))
	if !errors.Is(err, ntstatus.StatusInfoLengthMismatch) || n != uint32(nt32.SizeOfProcessBasicInformationInfo) {
		t.Errorf("short Query = %d, %v, want %d, %v", n, err, nt32.SizeOfProcessBasicInformationInfo, ntstatus.StatusInfoLengthMismatch)
	}
	if calls != 0 {
		t.Errorf("short Query called the host %d times", calls)
	}

	n, err = tr.Query(c, q, guestBase, 0x100)
	if err != nil || n != uint32(nt32.SizeOfProcessBasicInformationInfo) {
		t.Fatalf("Query = %d, %v", n, err)
	}
	var got nt32.ProcessBasicInformationInfo
	read(t, guest, guestBase, &got)
	want := nt32.ProcessBasicInformationInfo{
		ExitStatus:                   uint32(ntstatus.StatusPending),
		PebBaseAddress:               0x7ffd_f000,
		AffinityMask:                 0xf,
		BasePriority:                 8,
		UniqueProcessID:              0x44,
		InheritedFromUniqueProcessID: 0x20,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryFixedOverflow(t *testing.T) {
	tr, guest := newTestTranslator()
	calls := 0
	q := fixedHost(&calls, &nt.ProcessBasicInformationInfo{PebBaseAddress: 0x1_0000_0000})
	c, _ := ProcessClass(nt.ProcessBasicInformation)
	if _, err := tr.Query(c, q, guestBase, 0x100); !errors.Is(err, ntstatus.StatusIntegerOverflow) {
		t.Errorf("Query = %v, want %v", err, ntstatus.StatusIntegerOverflow)
	}
	// Nothing was written.
	b, _ := usermem.CopyBytesIn(guest, guestBase, 4)
	if diff := cmp.Diff([]byte{0, 0, 0, 0}, b); diff != "" {
		t.Errorf("guest modified (-want +got):\n%s", diff)
	}
}

func TestQueryHostFailure(t *testing.T) {
	tr, _ := newTestTranslator()
	q := func(hostarch.Buffer) (uint32, error) { return 0, ntstatus.StatusInvalidHandle }
	c, _ := ThreadClass(nt.ThreadTimes)
	if _, err := tr.Query(c, q, guestBase, 0x100); !errors.Is(err, ntstatus.StatusInvalidHandle) {
		t.Errorf("Query = %v, want %v", err, ntstatus.StatusInvalidHandle)
	}
	c, _ = ProcessClass(nt.ProcessImageFileName)
	if _, err := tr.Query(c, q, guestBase, 0x100); !errors.Is(err, ntstatus.StatusInvalidHandle) {
		t.Errorf("variable Query = %v, want %v", err, ntstatus.StatusInvalidHandle)
	}
}

func imageNameHost(name string) HostQuery {
	chars := usermem.EncodeUTF16(name)
	return variableHost(ntstatus.StatusInfoLengthMismatch, func(addr hostarch.Addr) []byte {
		us := nt.UnicodeString{
			Length:        uint16(len(chars)),
			MaximumLength: uint16(len(chars)),
			Buffer:        uint64(addr) + uint64(nt.SizeOfUnicodeString),
		}
		return append(encode(&us), chars...)
	})
}

func TestQueryVariableConverges(t *testing.T) {
	const name = `\Device\HarddiskVolume1\app.exe`
	want := uint32(nt32.SizeOfUnicodeString + 2*len(name))
	for _, dstLen := range []uint32{0, 8, want - 1} {
		tr, _ := newTestTranslator()
		c, _ := ProcessClass(nt.ProcessImageFileName)
		n, err := tr.Query(c, imageNameHost(name), guestBase, dstLen)
		if !IsTooSmall(err) || n != want {
			t.Errorf("Query(%d) = %d, %v, want %d and a too-small status", dstLen, n, err, want)
		}
	}

	tr, guest := newTestTranslator()
	c, _ := ProcessClass(nt.ProcessImageFileName)
	n, err := tr.Query(c, imageNameHost(name), guestBase, want)
	if err != nil || n != want {
		t.Fatalf("Query(%d) = %d, %v", want, n, err)
	}
	var us nt32.UnicodeString
	read(t, guest, guestBase, &us)
	if us.Buffer != guestBase+uint32(nt32.SizeOfUnicodeString) {
		t.Errorf("Buffer = %#x, want rebased to %#x", us.Buffer, guestBase+nt32.SizeOfUnicodeString)
	}
	got, err := usermem.CopyUTF16In(guest, hostarch.Addr(us.Buffer), int(us.Length))
	if err != nil || got != name {
		t.Errorf("name = %q, %v, want %q", got, err, name)
	}
}

func TestQuerySecurityDescriptorSize(t *testing.T) {
	build := func(addr hostarch.Addr) []byte {
		return BuildAbsoluteSD(addr, 0, systemSID, adminsSID, nil, emptyACL)
	}
	wideRequired := uint32(len(build(0)))
	q := variableHost(ntstatus.StatusBufferTooSmall, build)

	tr, guest := newTestTranslator()
	n, err := tr.Query(SecurityDescriptorClass(), q, guestBase, 0)
	if !errors.Is(err, ntstatus.StatusBufferTooSmall) {
		t.Fatalf("Query(0) = %v, want %v", err, ntstatus.StatusBufferTooSmall)
	}
	if want := wideRequired - uint32(SecurityDescriptorHeaderDelta); n != want {
		t.Errorf("narrow required = %d, want %d", n, want)
	}

	got, err := tr.Query(SecurityDescriptorClass(), q, guestBase, n)
	if err != nil || got != n {
		t.Fatalf("Query(%d) = %d, %v", n, got, err)
	}
	control, owner, group, sacl, dacl, err := NarrowSecurityDescriptorComponents(guest, guestBase)
	if err != nil {
		t.Fatalf("SecurityDescriptorComponents failed: %v", err)
	}
	if control != nt.SE_DACL_PRESENT {
		t.Errorf("control = %#x, want %#x", control, nt.SE_DACL_PRESENT)
	}
	if diff := cmp.Diff([][]byte{systemSID, adminsSID, nil, emptyACL}, [][]byte{owner, group, sacl, dacl}); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryTokenGroups(t *testing.T) {
	sids := [][]byte{systemSID, adminsSID}
	build := func(addr hostarch.Addr) []byte {
		hdr := nt.SizeOfTokenGroupsHeader + len(sids)*nt.SizeOfSIDAndAttributes
		b := encode(&nt.TokenGroupsHeader{GroupCount: uint32(len(sids))})
		off := hdr
		for i, sid := range sids {
			b = append(b, encode(&nt.SIDAndAttributes{Sid: uint64(addr) + uint64(off), Attributes: uint32(i + 7)})...)
			off += len(sid)
		}
		for _, sid := range sids {
			b = append(b, sid...)
		}
		return b
	}
	wideLen := len(build(0))
	narrowLen := uint32(wideLen - 4 - 8*len(sids))

	tr, guest := newTestTranslator()
	c, _ := TokenClass(nt.TokenGroups)
	q := variableHost(ntstatus.StatusBufferTooSmall, build)
	if n, err := tr.Query(c, q, guestBase, 0); n != narrowLen || !errors.Is(err, ntstatus.StatusBufferTooSmall) {
		t.Fatalf("Query(0) = %d, %v, want %d", n, err, narrowLen)
	}
	if n, err := tr.Query(c, q, guestBase, narrowLen); n != narrowLen || err != nil {
		t.Fatalf("Query(%d) = %d, %v", narrowLen, n, err)
	}
	var hdr nt32.TokenGroupsHeader
	read(t, guest, guestBase, &hdr)
	if hdr.GroupCount != 2 {
		t.Fatalf("GroupCount = %d", hdr.GroupCount)
	}
	for i, want := range sids {
		var sa nt32.SIDAndAttributes
		read(t, guest, guestBase+uint32(nt32.SizeOfTokenGroupsHeader+i*nt32.SizeOfSIDAndAttributes), &sa)
		if sa.Attributes != uint32(i+7) {
			t.Errorf("group %d attributes = %d", i, sa.Attributes)
		}
		got, err := ReadSID(guest, hostarch.Addr(sa.Sid))
		if err != nil {
			t.Fatalf("ReadSID(%#x) failed: %v", sa.Sid, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("group %d SID mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestQueryTokenUser(t *testing.T) {
	build := func(addr hostarch.Addr) []byte {
		b := encode(&nt.SIDAndAttributes{Sid: uint64(addr) + uint64(nt.SizeOfSIDAndAttributes)})
		return append(b, systemSID...)
	}
	tr, guest := newTestTranslator()
	c, _ := TokenClass(nt.TokenUser)
	want := uint32(nt32.SizeOfSIDAndAttributes + len(systemSID))
	if n, err := tr.Query(c, variableHost(ntstatus.StatusBufferTooSmall, build), guestBase, 0x100); n != want || err != nil {
		t.Fatalf("Query = %d, %v, want %d", n, err, want)
	}
	var sa nt32.SIDAndAttributes
	read(t, guest, guestBase, &sa)
	if sa.Sid != guestBase+uint32(nt32.SizeOfSIDAndAttributes) {
		t.Errorf("Sid = %#x", sa.Sid)
	}
}

func TestQueryProcessIDList(t *testing.T) {
	ids := []uint64{4, 8, 0x1234}
	build := func(hostarch.Addr) []byte {
		b := encode(&nt.JobObjectBasicProcessIDListHeader{NumberOfAssignedProcesses: 3, NumberOfProcessIdsInList: 3})
		for _, id := range ids {
			b = binary.AppendUint64(b, hostarch.ByteOrder, id)
		}
		return b
	}
	c, _ := JobClass(nt.JobObjectBasicProcessIdList)
	q := variableHost(ntstatus.StatusBufferOverflow, build)

	tr, guest := newTestTranslator()
	if n, err := tr.Query(c, q, guestBase, 12); n != 20 || !errors.Is(err, ntstatus.StatusBufferOverflow) {
		t.Errorf("Query(12) = %d, %v, want 20, %v", n, err, ntstatus.StatusBufferOverflow)
	}
	if n, err := tr.Query(c, q, guestBase, 20); n != 20 || err != nil {
		t.Fatalf("Query(20) = %d, %v", n, err)
	}
	got := make([]uint32, 3)
	for i := range got {
		got[i], _ = usermem.CopyUint32In(guest, hostarch.Addr(guestBase+8+4*i))
	}
	if diff := cmp.Diff([]uint32{4, 8, 0x1234}, got); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryBasicInformation32(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   nt.MemoryBasicInformationInfo
		size uint32
		err  error
	}{
		{
			name: "committed",
			in:   nt.MemoryBasicInformationInfo{BaseAddress: 0x400000, AllocationBase: 0x400000, RegionSize: 0x1000, State: nt.MEM_COMMIT},
			size: 0x1000,
		},
		{
			name: "free tail is clipped",
			in:   nt.MemoryBasicInformationInfo{BaseAddress: 0x7fff0000, RegionSize: 0x7ff0_0000_0000, State: nt.MEM_FREE},
			size: 0x8001_0000,
		},
		{
			name: "reserved past limit",
			in:   nt.MemoryBasicInformationInfo{BaseAddress: 0xffff0000, AllocationBase: 0xffff0000, RegionSize: 0x20000, State: nt.MEM_RESERVE},
			err:  ntstatus.StatusIntegerOverflow,
		},
		{
			name: "base out of range",
			in:   nt.MemoryBasicInformationInfo{BaseAddress: 0x1_0000_0000, RegionSize: 0x1000, State: nt.MEM_FREE},
			err:  ntstatus.StatusIntegerOverflow,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MemoryBasicInformation32(tc.in)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Errorf("got %v, want %v", err, tc.err)
				}
				return
			}
			if err != nil || got.RegionSize != tc.size {
				t.Errorf("got %+v, %v, want size %#x", got, err, tc.size)
			}
		})
	}
}

func TestSystemBasicInformation32(t *testing.T) {
	got, err := SystemBasicInformation32(nt.SystemBasicInformationInfo{
		PageSize:                     hostarch.PageSize,
		AllocationGranularity:        hostarch.AllocationGranularity,
		LowestUserAddress:            0x10000,
		HighestUserAddress:           0x7fff_fffe_ffff,
		ActiveProcessorsAffinityMask: ^uint64(0),
		NumberOfProcessors:           64,
	})
	if err != nil {
		t.Fatalf("SystemBasicInformation32 failed: %v", err)
	}
	want := nt32.SystemBasicInformationInfo{
		PageSize:                     hostarch.PageSize,
		AllocationGranularity:        hostarch.AllocationGranularity,
		LowestUserAddress:            0x10000,
		HighestUserAddress:           GuestHighestUserAddress,
		ActiveProcessorsAffinityMask: 0xffffffff,
		NumberOfProcessors:           32,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAffinityKeepsLowProcessors(t *testing.T) {
	const mask = 0xf_0000_0005
	pbi, err := ProcessBasicInformation32(nt.ProcessBasicInformationInfo{PebBaseAddress: 0x7ffd_f000, AffinityMask: mask})
	if err != nil {
		t.Fatalf("ProcessBasicInformation32: %v", err)
	}
	tbi, err := ThreadBasicInformation32(nt.ThreadBasicInformationInfo{TebBaseAddress: 0x7ffd_e000, AffinityMask: mask})
	if err != nil {
		t.Fatalf("ThreadBasicInformation32: %v", err)
	}
	if pbi.AffinityMask != 5 || tbi.AffinityMask != 5 {
		t.Errorf("affinity = %#x, %#x, want 0x5", pbi.AffinityMask, tbi.AffinityMask)
	}
}

func TestVMCountersSaturate(t *testing.T) {
	got, _ := VMCounters32(nt.VMCounters{VirtualSize: 0x3_0000_0000, PageFaultCount: 9, WorkingSetSize: 0x1000})
	if got.VirtualSize != 0xffffffff || got.PageFaultCount != 9 || got.WorkingSetSize != 0x1000 {
		t.Errorf("VMCounters32 = %+v", got)
	}
}

func TestJobLimitRoundTrip(t *testing.T) {
	n := nt32.JobObjectExtendedLimitInformationInfo{
		BasicLimitInformation: nt32.JobObjectBasicLimitInformationInfo{
			PerJobUserTimeLimit: 10_000_000,
			LimitFlags:          nt.JOB_OBJECT_LIMIT_ACTIVE_PROCESS | nt.JOB_OBJECT_LIMIT_JOB_MEMORY,
			ActiveProcessLimit:  4,
			Affinity:            3,
		},
		JobMemoryLimit: 0x1000_0000,
	}
	back, err := JobExtendedLimit32(JobExtendedLimit64(n))
	if err != nil {
		t.Fatalf("JobExtendedLimit32 failed: %v", err)
	}
	if diff := cmp.Diff(n, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSet(t *testing.T) {
	tr, guest := newTestTranslator()
	write(t, guest, guestBase, uint32(0x3))

	c, err := ProcessSetClass(nt.ProcessAffinityMask)
	if err != nil {
		t.Fatalf("ProcessSetClass failed: %v", err)
	}
	buf, err := tr.Set(c, guestBase, 4)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if diff := cmp.Diff([]byte{3, 0, 0, 0, 0, 0, 0, 0}, buf.Data); diff != "" {
		t.Errorf("wide mask mismatch (-want +got):\n%s", diff)
	}
	if _, err := tr.Set(c, guestBase, 8); !errors.Is(err, ntstatus.StatusInfoLengthMismatch) {
		t.Errorf("Set(8) = %v, want %v", err, ntstatus.StatusInfoLengthMismatch)
	}

	kv, _ := KeyValueClass(nt.KeyValuePartialInformation)
	if buf, err := tr.Set(kv, 0, 0); err != nil || buf.Len() != 0 {
		t.Errorf("zero-length Set = %v, %v, want empty", buf, err)
	}

	basic, _ := ProcessClass(nt.ProcessDebugPort)
	if _, err := tr.Set(basic, guestBase, 4); !errors.Is(err, ntstatus.StatusInvalidInfoClass) {
		t.Errorf("Set(query-only) = %v, want %v", err, ntstatus.StatusInvalidInfoClass)
	}
}

func TestUnknownClasses(t *testing.T) {
	for name, lookup := range map[string]func(uint32) (*Class, error){
		"process":     ProcessClass,
		"process set": ProcessSetClass,
		"thread":      ThreadClass,
		"memory":      MemoryClass,
		"system":      SystemClass,
		"job":         JobClass,
		"job set":     JobSetClass,
		"token":       TokenClass,
		"key value":   KeyValueClass,
	} {
		if c, err := lookup(0xdead); c != nil || !errors.Is(err, ntstatus.StatusInvalidInfoClass) {
			t.Errorf("%s lookup = %v, %v, want %v", name, c, err, ntstatus.StatusInvalidInfoClass)
		}
	}
}

func TestProcessParamsToWide(t *testing.T) {
	tr, guest := newTestTranslator()
	n := nt32.RTLUserProcessParameters{
		MaximumLength: uint32(nt32.SizeOfRTLUserProcessParameters),
		Length:        uint32(nt32.SizeOfRTLUserProcessParameters),
		StdInput:      0xfffffff6,
		ImagePathName: nt32.UnicodeString{Length: 8, MaximumLength: 10, Buffer: 0x200},
		Environment:   0x300,
	}
	write(t, guest, guestBase, &n)
	addr, err := tr.ProcessParamsToWide(guestBase)
	if err != nil {
		t.Fatalf("ProcessParamsToWide failed: %v", err)
	}
	w, err := ReadProcessParams(tr.Host(), addr)
	if err != nil {
		t.Fatalf("ReadProcessParams failed: %v", err)
	}
	if w.Flags&nt.PROCESS_PARAMS_FLAG_NORMALIZED == 0 {
		t.Errorf("Flags = %#x, want normalized", w.Flags)
	}
	if w.ImagePathName.Buffer != guestBase+0x200 || w.Environment != guestBase+0x300 {
		t.Errorf("offsets not made absolute: image %#x, environment %#x", w.ImagePathName.Buffer, w.Environment)
	}
	if w.StdInput != 0xffff_ffff_ffff_fff6 {
		t.Errorf("StdInput = %#x, want sign-extended", w.StdInput)
	}
	if w.Length != uint32(nt.SizeOfRTLUserProcessParameters) {
		t.Errorf("Length = %d", w.Length)
	}

	back, err := ProcessParams32(w)
	if err != nil {
		t.Fatalf("ProcessParams32 failed: %v", err)
	}
	want := n
	normalize(&want, guestBase)
	if diff := cmp.Diff(want, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPSAttributes(t *testing.T) {
	tr, guest := newTestTranslator()
	write(t, guest, guestBase, uint32(nt32.SizeOfPSAttributeListHeader+2*nt32.SizeOfPSAttribute))
	write(t, guest, guestBase+4, &nt32.PSAttribute{Attribute: nt.PS_ATTRIBUTE_PARENT_PROCESS, Size: 4, Value: 0xffffffff})
	write(t, guest, guestBase+20, &nt32.PSAttribute{Attribute: nt.PS_ATTRIBUTE_CLIENT_ID, Size: 8, Value: guestBase + 0x100, ReturnLength: guestBase + 0x110})

	ps, err := tr.PSAttributesToWide(guestBase)
	if err != nil {
		t.Fatalf("PSAttributesToWide failed: %v", err)
	}
	var hdr nt.PSAttributeListHeader
	if err := tr.ReadWide(ps.Addr, &hdr); err != nil {
		t.Fatalf("ReadWide failed: %v", err)
	}
	if want := uint64(nt.SizeOfPSAttributeListHeader + 2*nt.SizeOfPSAttribute); hdr.TotalLength != want {
		t.Errorf("TotalLength = %d, want %d", hdr.TotalLength, want)
	}
	var parent, cid nt.PSAttribute
	tr.ReadWide(ps.Addr+hostarch.Addr(nt.SizeOfPSAttributeListHeader), &parent)
	tr.ReadWide(ps.Addr+hostarch.Addr(nt.SizeOfPSAttributeListHeader+nt.SizeOfPSAttribute), &cid)
	if nt.Handle(parent.Value) != nt.CurrentProcess || parent.Size != 8 {
		t.Errorf("parent attribute = %+v", parent)
	}
	if !tr.Arena.Owns(hostarch.Addr(cid.Value)) || cid.Size != uint64(nt.SizeOfClientID) {
		t.Errorf("client id attribute = %+v, want staged", cid)
	}

	// The host fills in the client id.
	if _, err := usermem.CopyObjectOut(tr.Host(), hostarch.Addr(cid.Value), &nt.ClientID{UniqueProcess: 0x44, UniqueThread: 0x48}); err != nil {
		t.Fatalf("host write failed: %v", err)
	}
	if err := ps.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	var got nt32.ClientID
	read(t, guest, guestBase+0x100, &got)
	if diff := cmp.Diff(nt32.ClientID{UniqueProcess: 0x44, UniqueThread: 0x48}, got); diff != "" {
		t.Errorf("client id mismatch (-want +got):\n%s", diff)
	}
	if ret, _ := tr.ReadULong(guestBase + 0x110); ret != uint32(nt32.SizeOfClientID) {
		t.Errorf("return length = %d", ret)
	}
}

func TestPSAttributesUnknown(t *testing.T) {
	tr, guest := newTestTranslator()
	write(t, guest, guestBase, uint32(nt32.SizeOfPSAttributeListHeader+nt32.SizeOfPSAttribute))
	write(t, guest, guestBase+4, &nt32.PSAttribute{Attribute: 0x2000f, Size: 4, Value: 1})
	if _, err := tr.PSAttributesToWide(guestBase); !errors.Is(err, ntstatus.StatusNotImplemented) {
		t.Errorf("got %v, want %v", err, ntstatus.StatusNotImplemented)
	}
}

func TestQueryHugeGuestLength(t *testing.T) {
	tr, guest := newTestTranslator()
	kv, err := KeyValueClass(nt.KeyValuePartialInformation)
	if err != nil {
		t.Fatalf("KeyValueClass: %v", err)
	}
	record := []byte{1, 0, 0, 0, 4, 0, 0, 0}
	staged := 0
	q := func(buf hostarch.Buffer) (uint32, error) {
		staged = buf.Len()
		copy(buf.Data, record)
		return uint32(len(record)), nil
	}
	n, err := tr.Query(kv, q, guestBase, 0xffff_fff0)
	if err != nil || n != uint32(len(record)) {
		t.Fatalf("Query = %d, %v", n, err)
	}
	if staged > MaxStaged {
		t.Errorf("staged %d bytes, want at most %d", staged, MaxStaged)
	}
	got := make([]byte, len(record))
	if _, err := guest.CopyIn(guestBase, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if diff := cmp.Diff(record, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	// The rest of the call still has room to stage.
	if b := tr.Arena.Alloc(64); b.Len() != 64 {
		t.Errorf("Alloc(64) after the query = %d bytes", b.Len())
	}
}

func TestGrowDoesNotWrap(t *testing.T) {
	groups, _ := TokenClass(nt.TokenGroups)
	image, _ := ProcessClass(nt.ProcessImageFileName)
	ids, _ := JobClass(nt.JobObjectBasicProcessIdList)
	kv, _ := KeyValueClass(nt.KeyValueFullInformation)
	for _, c := range []*Class{groups, image, ids, kv, SecurityDescriptorClass()} {
		if got := c.Grow(math.MaxUint32); got < math.MaxUint32 {
			t.Errorf("%s: Grow(MaxUint32) = %#x wrapped", c.Name, got)
		}
	}
}
