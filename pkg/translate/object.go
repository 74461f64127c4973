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
	"fmt"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// UnicodeString64 widens a UNICODE_STRING. The character buffer stays in
// guest memory.
func UnicodeString64(s nt32.UnicodeString) nt.UnicodeString {
	return nt.UnicodeString{
		Length:        s.Length,
		MaximumLength: s.MaximumLength,
		Buffer:        Ptr(s.Buffer),
	}
}

// UnicodeString32 narrows a UNICODE_STRING whose buffer is not staged.
func UnicodeString32(s nt.UnicodeString) (nt32.UnicodeString, error) {
	p, err := NarrowPtr(s.Buffer)
	if err != nil {
		return nt32.UnicodeString{}, err
	}
	return nt32.UnicodeString{
		Length:        s.Length,
		MaximumLength: s.MaximumLength,
		Buffer:        p,
	}, nil
}

// UnicodeStringToWide stages the wide copy of the guest UNICODE_STRING at
// addr and returns its address, or 0 if addr is 0.
func (t *Translator) UnicodeStringToWide(addr uint32) (hostarch.Addr, error) {
	if addr == 0 {
		return 0, nil
	}
	var s nt32.UnicodeString
	if err := t.CopyIn(addr, &s); err != nil {
		return 0, err
	}
	if s.Length > s.MaximumLength || s.Length%2 != 0 {
		return 0, fmt.Errorf("unicode string length %d/%d: %w", s.Length, s.MaximumLength, ntstatus.StatusInvalidParameter)
	}
	w := UnicodeString64(s)
	return t.Stage(&w).Addr, nil
}

// ReadUnicodeString decodes the wide UNICODE_STRING at addr in mem.
func ReadUnicodeString(mem usermem.IO, addr hostarch.Addr) (string, error) {
	if addr == 0 {
		return "", nil
	}
	var s nt.UnicodeString
	if _, err := usermem.CopyObjectIn(mem, addr, &s); err != nil {
		return "", err
	}
	return usermem.CopyUTF16In(mem, hostarch.Addr(s.Buffer), int(s.Length))
}

// unicodeStringImage converts a wide UNICODE_STRING followed by its
// characters (as returned by ProcessImageFileName and
// MemoryMappedFilenameInformation) to the narrow layout placed at base.
func unicodeStringImage(wide hostarch.Buffer, base uint32) ([]byte, error) {
	var s nt.UnicodeString
	if err := decode(wide, &s); err != nil {
		return nil, err
	}
	r := rebaser{wide: wide, wideHdr: nt.SizeOfUnicodeString, narrowHdr: nt32.SizeOfUnicodeString, base: base}
	p, err := r.ptr(s.Buffer)
	if err != nil {
		return nil, err
	}
	return r.image(encode(nt32.UnicodeString{Length: s.Length, MaximumLength: s.MaximumLength, Buffer: p})), nil
}

// ObjectAttributesToWide stages the wide copy of the guest OBJECT_ATTRIBUTES
// at addr, including its name and security descriptor, and returns its
// address, or 0 if addr is 0.
func (t *Translator) ObjectAttributesToWide(addr uint32) (hostarch.Addr, error) {
	if addr == 0 {
		return 0, nil
	}
	var a nt32.ObjectAttributes
	if err := t.CopyIn(addr, &a); err != nil {
		return 0, err
	}
	if a.Length != uint32(nt32.SizeOfObjectAttributes) {
		return 0, fmt.Errorf("object attributes length %d: %w", a.Length, ntstatus.StatusInvalidParameter)
	}
	name, err := t.UnicodeStringToWide(a.ObjectName)
	if err != nil {
		return 0, err
	}
	sd, err := t.SecurityDescriptorToWide(a.SecurityDescriptor)
	if err != nil {
		return 0, err
	}
	w := nt.ObjectAttributes{
		Length:             uint32(nt.SizeOfObjectAttributes),
		RootDirectory:      uint64(Handle(a.RootDirectory)),
		ObjectName:         uint64(name),
		Attributes:         a.Attributes,
		SecurityDescriptor: uint64(sd),
		// SECURITY_QUALITY_OF_SERVICE has the same layout at both widths.
		SecurityQualityOfService: Ptr(a.SecurityQualityOfService),
	}
	return t.Stage(&w).Addr, nil
}

// IOStatusBlock32 narrows an IO_STATUS_BLOCK.
func IOStatusBlock32(w nt.IOStatusBlock) (nt32.IOStatusBlock, error) {
	info, err := NarrowULongPtr(w.Information)
	if err != nil {
		return nt32.IOStatusBlock{}, err
	}
	return nt32.IOStatusBlock{Status: w.Status, Information: info}, nil
}

// IOStatusBlock64 widens an IO_STATUS_BLOCK.
func IOStatusBlock64(n nt32.IOStatusBlock) nt.IOStatusBlock {
	return nt.IOStatusBlock{Status: n.Status, Information: uint64(n.Information)}
}

// IOStatusBlockToNarrow copies the staged wide IO_STATUS_BLOCK at wide to
// the guest block at addr. A zero addr is ignored.
func (t *Translator) IOStatusBlockToNarrow(wide hostarch.Addr, addr uint32) error {
	if addr == 0 {
		return nil
	}
	var w nt.IOStatusBlock
	if err := t.ReadWide(wide, &w); err != nil {
		return err
	}
	n, err := IOStatusBlock32(w)
	if err != nil {
		return err
	}
	return t.CopyOut(addr, &n)
}

// ClientID64 widens a CLIENT_ID.
func ClientID64(c nt32.ClientID) nt.ClientID {
	return nt.ClientID{UniqueProcess: Ptr(c.UniqueProcess), UniqueThread: Ptr(c.UniqueThread)}
}

// ClientID32 narrows a CLIENT_ID.
func ClientID32(c nt.ClientID) (nt32.ClientID, error) {
	p, err := NarrowULongPtr(c.UniqueProcess)
	if err != nil {
		return nt32.ClientID{}, err
	}
	th, err := NarrowULongPtr(c.UniqueThread)
	if err != nil {
		return nt32.ClientID{}, err
	}
	return nt32.ClientID{UniqueProcess: p, UniqueThread: th}, nil
}

// ReadTimeout reads the LARGE_INTEGER timeout at addr. A zero addr is an
// infinite timeout.
func (t *Translator) ReadTimeout(addr uint32) (nt.Timeout, error) {
	if addr == 0 {
		return nt.Timeout{Infinite: true}, nil
	}
	v, err := usermem.CopyUint64In(t.Guest, hostarch.Addr(addr))
	if err != nil {
		return nt.Timeout{}, err
	}
	return nt.Timeout{Value: int64(v)}, nil
}

// WriteHandle stores a host handle through a guest PHANDLE.
func (t *Translator) WriteHandle(addr uint32, h nt.Handle) error {
	n, err := NarrowHandle(h)
	if err != nil {
		return err
	}
	return usermem.CopyUint32Out(t.Guest, hostarch.Addr(addr), n)
}

// WriteULong stores a 32-bit value through a guest pointer. A zero addr is
// ignored.
func (t *Translator) WriteULong(addr uint32, v uint32) error {
	if addr == 0 {
		return nil
	}
	return usermem.CopyUint32Out(t.Guest, hostarch.Addr(addr), v)
}

// WritePtr narrows and stores a pointer-sized value through a guest
// pointer. A zero addr is ignored.
func (t *Translator) WritePtr(addr uint32, v uint64) error {
	if addr == 0 {
		return nil
	}
	n, err := NarrowULongPtr(v)
	if err != nil {
		return err
	}
	return usermem.CopyUint32Out(t.Guest, hostarch.Addr(addr), n)
}

// ReadULong loads a 32-bit value through a guest pointer.
func (t *Translator) ReadULong(addr uint32) (uint32, error) {
	return usermem.CopyUint32In(t.Guest, hostarch.Addr(addr))
}

func decode(wide hostarch.Buffer, v any) error {
	if _, err := usermem.CopyObjectIn(&usermem.BytesIO{Base: wide.Addr, Bytes: wide.Data}, wide.Addr, v); err != nil {
		return fmt.Errorf("short wide buffer for %T: %w", v, ntstatus.StatusInfoLengthMismatch)
	}
	return nil
}
