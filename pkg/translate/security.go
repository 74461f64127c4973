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

// SecurityDescriptorHeaderDelta is how much larger the wide absolute
// security descriptor header is than the narrow one.
var SecurityDescriptorHeaderDelta = nt.SizeOfSecurityDescriptor - nt32.SizeOfSecurityDescriptor

// ReadSID returns a copy of the SID at addr.
func ReadSID(mem usermem.IO, addr hostarch.Addr) ([]byte, error) {
	var h nt.SIDHeader
	if _, err := usermem.CopyObjectIn(mem, addr, &h); err != nil {
		return nil, err
	}
	if h.Revision != 1 || h.SubAuthorityCount > nt.SID_MAX_SUB_AUTHORITIES {
		return nil, fmt.Errorf("SID at %v: revision %d, %d sub-authorities: %w", addr, h.Revision, h.SubAuthorityCount, ntstatus.StatusInvalidSid)
	}
	return usermem.CopyBytesIn(mem, addr, nt.SIDLength(h.SubAuthorityCount))
}

// ReadACL returns a copy of the ACL at addr, including all its ACEs.
func ReadACL(mem usermem.IO, addr hostarch.Addr) ([]byte, error) {
	var h nt.ACLHeader
	if _, err := usermem.CopyObjectIn(mem, addr, &h); err != nil {
		return nil, err
	}
	if int(h.AclSize) < nt.SizeOfACLHeader {
		return nil, fmt.Errorf("ACL at %v: size %d: %w", addr, h.AclSize, ntstatus.StatusInvalidAcl)
	}
	return usermem.CopyBytesIn(mem, addr, int(h.AclSize))
}

// sdComponents holds the payloads of a security descriptor.
type sdComponents struct {
	owner, group, sacl, dacl []byte
}

// layout appends the components after a header of hdr bytes, 4-byte
// aligned, and returns the image with the offset of each component (0 if
// absent).
func (c *sdComponents) layout(hdr int) (img []byte, owner, group, sacl, dacl int) {
	img = make([]byte, hdr)
	place := func(p []byte) int {
		if p == nil {
			return 0
		}
		for len(img)%4 != 0 {
			img = append(img, 0)
		}
		off := len(img)
		img = append(img, p...)
		return off
	}
	owner = place(c.owner)
	group = place(c.group)
	sacl = place(c.sacl)
	dacl = place(c.dacl)
	return
}

// readRelative returns a copy of the self-relative security descriptor at
// addr. Its length is derived from the components it references.
func readRelative(mem usermem.IO, addr hostarch.Addr) ([]byte, error) {
	var r nt.SecurityDescriptorRelative
	if _, err := usermem.CopyObjectIn(mem, addr, &r); err != nil {
		return nil, err
	}
	end := nt.SizeOfSecurityDescriptorRelative
	extend := func(off uint32, read func(usermem.IO, hostarch.Addr) ([]byte, error)) error {
		if off == 0 {
			return nil
		}
		b, err := read(mem, addr+hostarch.Addr(off))
		if err != nil {
			return err
		}
		end = max(end, int(off)+len(b))
		return nil
	}
	if err := extend(r.Owner, ReadSID); err != nil {
		return nil, err
	}
	if err := extend(r.Group, ReadSID); err != nil {
		return nil, err
	}
	if r.Control&nt.SE_SACL_PRESENT != 0 {
		if err := extend(r.Sacl, ReadACL); err != nil {
			return nil, err
		}
	}
	if r.Control&nt.SE_DACL_PRESENT != 0 {
		if err := extend(r.Dacl, ReadACL); err != nil {
			return nil, err
		}
	}
	return usermem.CopyBytesIn(mem, addr, end)
}

// SecurityDescriptorToWide stages the wide copy of the guest security
// descriptor at addr and returns its address, or 0 if addr is 0.
//
// A self-relative descriptor has the same layout at both widths and is
// copied verbatim. An absolute descriptor is rebuilt as one contiguous wide
// buffer holding the header followed by copies of its SIDs and ACLs.
func (t *Translator) SecurityDescriptorToWide(addr uint32) (hostarch.Addr, error) {
	if addr == 0 {
		return 0, nil
	}
	var sd nt32.SecurityDescriptor
	if err := t.CopyIn(addr, &sd); err != nil {
		return 0, err
	}
	if sd.Revision != nt.SECURITY_DESCRIPTOR_REVISION {
		return 0, fmt.Errorf("security descriptor revision %d: %w", sd.Revision, ntstatus.StatusUnknownRevision)
	}
	if sd.Control&nt.SE_SELF_RELATIVE != 0 {
		b, err := readRelative(t.Guest, hostarch.Addr(addr))
		if err != nil {
			return 0, err
		}
		return t.StageBytes(b).Addr, nil
	}

	var c sdComponents
	var err error
	if sd.Owner != 0 {
		if c.owner, err = ReadSID(t.Guest, hostarch.Addr(sd.Owner)); err != nil {
			return 0, err
		}
	}
	if sd.Group != 0 {
		if c.group, err = ReadSID(t.Guest, hostarch.Addr(sd.Group)); err != nil {
			return 0, err
		}
	}
	if sd.Control&nt.SE_SACL_PRESENT != 0 && sd.Sacl != 0 {
		if c.sacl, err = ReadACL(t.Guest, hostarch.Addr(sd.Sacl)); err != nil {
			return 0, err
		}
	}
	if sd.Control&nt.SE_DACL_PRESENT != 0 && sd.Dacl != 0 {
		if c.dacl, err = ReadACL(t.Guest, hostarch.Addr(sd.Dacl)); err != nil {
			return 0, err
		}
	}
	img, owner, group, sacl, dacl := c.layout(nt.SizeOfSecurityDescriptor)
	buf := t.Arena.Alloc(len(img))
	copy(buf.Data, img)
	at := func(off int) uint64 {
		if off == 0 {
			return 0
		}
		return uint64(buf.Addr) + uint64(off)
	}
	w := nt.SecurityDescriptor{
		Revision: sd.Revision,
		Sbz1:     sd.Sbz1,
		Control:  sd.Control,
		Owner:    at(owner),
		Group:    at(group),
		Sacl:     at(sacl),
		Dacl:     at(dacl),
	}
	copy(buf.Data, encode(&w))
	return buf.Addr, nil
}

// SecurityDescriptorImage converts the wide security descriptor in wide to
// the narrow image placed at base.
//
// A self-relative descriptor is returned verbatim. An absolute descriptor
// loses SecurityDescriptorHeaderDelta header bytes; pointers into its
// payload are rebased onto the narrow image.
func SecurityDescriptorImage(wide hostarch.Buffer, base uint32) ([]byte, error) {
	if len(wide.Data) < 4 {
		return nil, fmt.Errorf("security descriptor of %d bytes: %w", len(wide.Data), ntstatus.StatusInvalidSecurityDescr)
	}
	if control := hostarch.ByteOrder.Uint16(wide.Data[2:]); control&nt.SE_SELF_RELATIVE != 0 {
		return append([]byte(nil), wide.Data...), nil
	}
	var sd nt.SecurityDescriptor
	if err := decode(wide, &sd); err != nil {
		return nil, err
	}
	r := rebaser{wide: wide, wideHdr: nt.SizeOfSecurityDescriptor, narrowHdr: nt32.SizeOfSecurityDescriptor, base: base}
	n := nt32.SecurityDescriptor{Revision: sd.Revision, Sbz1: sd.Sbz1, Control: sd.Control}
	var err error
	if n.Owner, err = r.ptr(sd.Owner); err != nil {
		return nil, err
	}
	if n.Group, err = r.ptr(sd.Group); err != nil {
		return nil, err
	}
	if n.Sacl, err = r.ptr(sd.Sacl); err != nil {
		return nil, err
	}
	if n.Dacl, err = r.ptr(sd.Dacl); err != nil {
		return nil, err
	}
	return r.image(encode(&n)), nil
}

// BuildAbsoluteSD returns a wide absolute security descriptor placed at
// addr, holding copies of the given components. It is the layout a host
// kernel returns from a security query.
func BuildAbsoluteSD(addr hostarch.Addr, control uint16, owner, group, sacl, dacl []byte) []byte {
	c := sdComponents{owner: owner, group: group, sacl: sacl, dacl: dacl}
	img, o, g, s, d := c.layout(nt.SizeOfSecurityDescriptor)
	at := func(off int) uint64 {
		if off == 0 {
			return 0
		}
		return uint64(addr) + uint64(off)
	}
	if sacl != nil {
		control |= nt.SE_SACL_PRESENT
	}
	if dacl != nil {
		control |= nt.SE_DACL_PRESENT
	}
	w := nt.SecurityDescriptor{
		Revision: nt.SECURITY_DESCRIPTOR_REVISION,
		Control:  control &^ nt.SE_SELF_RELATIVE,
		Owner:    at(o),
		Group:    at(g),
		Sacl:     at(s),
		Dacl:     at(d),
	}
	copy(img, encode(&w))
	return img
}

// SecurityDescriptorComponents extracts copies of the SIDs and ACLs of the
// wide security descriptor at addr in mem, in either form. The returned
// control has SE_SELF_RELATIVE cleared.
func SecurityDescriptorComponents(mem usermem.IO, addr hostarch.Addr) (control uint16, owner, group, sacl, dacl []byte, err error) {
	return descriptorComponents(mem, addr, func() (o, g, s, d hostarch.Addr, err error) {
		var sd nt.SecurityDescriptor
		if _, err = usermem.CopyObjectIn(mem, addr, &sd); err != nil {
			return
		}
		return hostarch.Addr(sd.Owner), hostarch.Addr(sd.Group), hostarch.Addr(sd.Sacl), hostarch.Addr(sd.Dacl), nil
	})
}

// NarrowSecurityDescriptorComponents is SecurityDescriptorComponents for a
// descriptor in the guest's layout.
func NarrowSecurityDescriptorComponents(mem usermem.IO, addr hostarch.Addr) (control uint16, owner, group, sacl, dacl []byte, err error) {
	return descriptorComponents(mem, addr, func() (o, g, s, d hostarch.Addr, err error) {
		var sd nt32.SecurityDescriptor
		if _, err = usermem.CopyObjectIn(mem, addr, &sd); err != nil {
			return
		}
		return hostarch.Addr(sd.Owner), hostarch.Addr(sd.Group), hostarch.Addr(sd.Sacl), hostarch.Addr(sd.Dacl), nil
	})
}

// descriptorComponents reads the descriptor at addr. The self-relative form
// is the same at both widths; absolute reads the pointers of the absolute
// form.
func descriptorComponents(mem usermem.IO, addr hostarch.Addr, absolute func() (o, g, s, d hostarch.Addr, err error)) (control uint16, owner, group, sacl, dacl []byte, err error) {
	var hdr [4]byte
	if _, err = mem.CopyIn(addr, hdr[:]); err != nil {
		return
	}
	if hdr[0] != nt.SECURITY_DESCRIPTOR_REVISION {
		err = ntstatus.StatusUnknownRevision
		return
	}
	control = hostarch.ByteOrder.Uint16(hdr[2:])

	var o, g, s, d hostarch.Addr
	if control&nt.SE_SELF_RELATIVE != 0 {
		var r nt.SecurityDescriptorRelative
		if _, err = usermem.CopyObjectIn(mem, addr, &r); err != nil {
			return
		}
		rel := func(off uint32) hostarch.Addr {
			if off == 0 {
				return 0
			}
			return addr + hostarch.Addr(off)
		}
		o, g, s, d = rel(r.Owner), rel(r.Group), rel(r.Sacl), rel(r.Dacl)
	} else if o, g, s, d, err = absolute(); err != nil {
		return
	}
	control &^= nt.SE_SELF_RELATIVE

	if o != 0 {
		if owner, err = ReadSID(mem, o); err != nil {
			return
		}
	}
	if g != 0 {
		if group, err = ReadSID(mem, g); err != nil {
			return
		}
	}
	if control&nt.SE_SACL_PRESENT != 0 && s != 0 {
		if sacl, err = ReadACL(mem, s); err != nil {
			return
		}
	}
	if control&nt.SE_DACL_PRESENT != 0 && d != 0 {
		if dacl, err = ReadACL(mem, d); err != nil {
			return
		}
	}
	return
}
