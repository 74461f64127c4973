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
	"fmt"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
	"gvisor.dev/compat32/pkg/usermem"
)

// SID returns the binary SID S-1-authority-subs...
func SID(authority uint8, subs ...uint32) []byte {
	b := []byte{1, uint8(len(subs)), 0, 0, 0, 0, 0, authority}
	for _, s := range subs {
		b = binary.AppendUint32(b, hostarch.ByteOrder, s)
	}
	return b
}

// EmptyACL returns an ACL with no entries.
func EmptyACL() []byte {
	return binary.Marshal(nil, hostarch.ByteOrder, &nt.ACLHeader{AclRevision: 2, AclSize: uint16(nt.SizeOfACLHeader)})
}

// Well-known SIDs.
var (
	SystemSID = SID(5, 18)
	UserSID   = SID(5, 21, 1000, 2000, 3000, 1001)
	worldSID  = SID(1, 0)
	usersSID  = SID(5, 32, 545)
	adminsSID = SID(5, 32, 544)
	mediumSID = SID(16, 0x2000)
)

// SE_GROUP_* attributes.
const (
	groupMandatory = 0x1
	groupEnabled   = 0x4
	groupIntegrity = 0x20
)

// descriptor is an object's security descriptor.
type descriptor struct {
	control                  uint16
	owner, group, sacl, dacl []byte
}

func defaultSecurity() objectBase {
	return objectBase{sd: descriptor{owner: SystemSID, group: SystemSID, dacl: EmptyACL()}}
}

// set replaces the parts of b's descriptor selected by info with those of
// the wide descriptor at addr in mem.
func (b *objectBase) set(mem usermem.IO, addr hostarch.Addr, info uint32) error {
	control, owner, group, sacl, dacl, err := translate.SecurityDescriptorComponents(mem, addr)
	if err != nil {
		return err
	}
	if info&nt.OWNER_SECURITY_INFORMATION != 0 && owner != nil {
		b.sd.owner = owner
	}
	if info&nt.GROUP_SECURITY_INFORMATION != 0 && group != nil {
		b.sd.group = group
	}
	if info&nt.DACL_SECURITY_INFORMATION != 0 && control&nt.SE_DACL_PRESENT != 0 {
		b.sd.dacl = dacl
	}
	if info&nt.SACL_SECURITY_INFORMATION != 0 && control&nt.SE_SACL_PRESENT != 0 {
		b.sd.sacl = sacl
	}
	return nil
}

// QuerySecurityObject implements host.Kernel.QuerySecurityObject. The
// descriptor is returned in absolute form, placed at buf.Addr.
func (h *Host) QuerySecurityObject(ctx context.Context, handle nt.Handle, info uint32, buf hostarch.Buffer) (uint32, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	obj, err := c.object(handle)
	if err != nil {
		return 0, err
	}
	sd := obj.base().sd
	var owner, group, sacl, dacl []byte
	if info&nt.OWNER_SECURITY_INFORMATION != 0 {
		owner = sd.owner
	}
	if info&nt.GROUP_SECURITY_INFORMATION != 0 {
		group = sd.group
	}
	if info&nt.DACL_SECURITY_INFORMATION != 0 {
		dacl = sd.dacl
	}
	if info&nt.SACL_SECURITY_INFORMATION != 0 {
		sacl = sd.sacl
	}
	img := translate.BuildAbsoluteSD(buf.Addr, sd.control, owner, group, sacl, dacl)
	return fill(buf, img, ntstatus.StatusBufferTooSmall)
}

// SetSecurityObject implements host.Kernel.SetSecurityObject.
func (h *Host) SetSecurityObject(ctx context.Context, handle nt.Handle, info uint32, sd hostarch.Addr) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	obj, err := c.object(handle)
	if err != nil {
		return err
	}
	if sd == 0 {
		return fmt.Errorf("null security descriptor: %w", ntstatus.StatusAccessViolation)
	}
	return obj.base().set(c.caller.Mem, sd, info)
}

// token is an access token.
type token struct {
	objectBase
	id        uint64
	user      []byte
	groups    [][]byte
	integrity []byte
	dacl      []byte
	session   uint32
}

func (*token) kind() string { return "Token" }

func newToken(id uint64) *token {
	return &token{
		objectBase: defaultSecurity(),
		id:         id,
		user:       UserSID,
		groups:     [][]byte{worldSID, usersSID, adminsSID},
		integrity:  mediumSID,
		dacl:       EmptyACL(),
		session:    1,
	}
}

// OpenProcessToken implements host.Kernel.OpenProcessToken.
func (h *Host) OpenProcessToken(ctx context.Context, process nt.Handle, access uint32) (nt.Handle, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	p, err := lookup[*Process](c, process)
	if err != nil {
		return 0, err
	}
	return c.process.insert(p.token), nil
}

// sidAndAttributes returns a SID_AND_ATTRIBUTES at addr followed by sid.
func sidAndAttributes(addr hostarch.Addr, sid []byte, attrs uint32) []byte {
	hdr := nt.SIDAndAttributes{Sid: uint64(addr) + uint64(nt.SizeOfSIDAndAttributes), Attributes: attrs}
	return append(binary.Marshal(nil, hostarch.ByteOrder, &hdr), sid...)
}

// pointerTo returns a pointer at addr followed by payload.
func pointerTo(addr hostarch.Addr, payload []byte) []byte {
	return append(binary.AppendUint64(nil, hostarch.ByteOrder, uint64(addr)+8), payload...)
}

// QueryInformationToken implements host.Kernel.QueryInformationToken.
func (h *Host) QueryInformationToken(ctx context.Context, handle nt.Handle, class uint32, buf hostarch.Buffer) (uint32, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	t, err := lookup[*token](c, handle)
	if err != nil {
		return 0, err
	}
	var img []byte
	switch class {
	case nt.TokenUser:
		img = sidAndAttributes(buf.Addr, t.user, 0)
	case nt.TokenIntegrityLevel:
		img = sidAndAttributes(buf.Addr, t.integrity, groupIntegrity)
	case nt.TokenGroups:
		n := len(t.groups)
		img = binary.Marshal(nil, hostarch.ByteOrder, &nt.TokenGroupsHeader{GroupCount: uint32(n)})
		off := nt.SizeOfTokenGroupsHeader + n*nt.SizeOfSIDAndAttributes
		var sids []byte
		for _, g := range t.groups {
			sa := nt.SIDAndAttributes{Sid: uint64(buf.Addr) + uint64(off+len(sids)), Attributes: groupMandatory | groupEnabled}
			img = binary.Marshal(img, hostarch.ByteOrder, &sa)
			sids = append(sids, g...)
		}
		img = append(img, sids...)
	case nt.TokenOwner, nt.TokenPrimaryGroup:
		img = pointerTo(buf.Addr, t.user)
	case nt.TokenDefaultDacl:
		img = pointerTo(buf.Addr, t.dacl)
	case nt.TokenType:
		img = binary.AppendUint32(nil, hostarch.ByteOrder, nt.TokenPrimary)
	case nt.TokenSessionId:
		img = binary.AppendUint32(nil, hostarch.ByteOrder, t.session)
	case nt.TokenElevationType:
		img = binary.AppendUint32(nil, hostarch.ByteOrder, 1)
	case nt.TokenElevation:
		img = binary.AppendUint32(nil, hostarch.ByteOrder, 0)
	case nt.TokenStatistics:
		img = binary.Marshal(nil, hostarch.ByteOrder, &nt.TokenStatisticsInfo{
			TokenID:    t.id,
			TokenType:  nt.TokenPrimary,
			GroupCount: uint32(len(t.groups)),
		})
	default:
		return 0, fmt.Errorf("token information class %d: %w", class, ntstatus.StatusInvalidInfoClass)
	}
	return fill(buf, img, ntstatus.StatusBufferTooSmall)
}

// fill copies img into buf, or reports its size with tooSmall if buf is
// shorter.
func fill(buf hostarch.Buffer, img []byte, tooSmall ntstatus.Status) (uint32, error) {
	if len(img) > buf.Len() {
		return uint32(len(img)), tooSmall
	}
	copy(buf.Data, img)
	return uint32(len(img)), nil
}

// fillFixed marshals v into buf, which must be exactly or at least its
// size.
func fillFixed(buf hostarch.Buffer, v any) (uint32, error) {
	return fill(buf, binary.Marshal(nil, hostarch.ByteOrder, v), ntstatus.StatusInfoLengthMismatch)
}
