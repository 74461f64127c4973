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

package nt

import "gvisor.dev/compat32/pkg/binary"

// Security descriptor control bits.
const (
	SE_OWNER_DEFAULTED = 0x0001
	SE_GROUP_DEFAULTED = 0x0002
	SE_DACL_PRESENT    = 0x0004
	SE_DACL_DEFAULTED  = 0x0008
	SE_SACL_PRESENT    = 0x0010
	SE_SACL_DEFAULTED  = 0x0020
	SE_SELF_RELATIVE   = 0x8000
)

// SECURITY_INFORMATION bits.
const (
	OWNER_SECURITY_INFORMATION = 0x1
	GROUP_SECURITY_INFORMATION = 0x2
	DACL_SECURITY_INFORMATION  = 0x4
	SACL_SECURITY_INFORMATION  = 0x8
)

// SECURITY_DESCRIPTOR_REVISION is the only supported revision.
const SECURITY_DESCRIPTOR_REVISION = 1

// SecurityDescriptor corresponds to SECURITY_DESCRIPTOR, the absolute form
// whose Owner, Group, Sacl and Dacl fields are pointers.
type SecurityDescriptor struct {
	Revision uint8
	Sbz1     uint8
	Control  uint16
	_        uint32
	Owner    uint64
	Group    uint64
	Sacl     uint64
	Dacl     uint64
}

// SecurityDescriptorRelative corresponds to SECURITY_DESCRIPTOR_RELATIVE.
// Its fields are offsets from the start of the descriptor, so the layout is
// the same at every width.
type SecurityDescriptorRelative struct {
	Revision uint8
	Sbz1     uint8
	Control  uint16
	Owner    uint32
	Group    uint32
	Sacl     uint32
	Dacl     uint32
}

// SIDHeader is the fixed part of a SID. SubAuthorityCount 32-bit
// sub-authorities follow it.
type SIDHeader struct {
	Revision            uint8
	SubAuthorityCount   uint8
	IdentifierAuthority [6]uint8
}

// ACLHeader corresponds to ACL. AclSize covers the header and all ACEs.
type ACLHeader struct {
	AclRevision uint8
	Sbz1        uint8
	AclSize     uint16
	AceCount    uint16
	Sbz2        uint16
}

// SID_MAX_SUB_AUTHORITIES bounds SubAuthorityCount.
const SID_MAX_SUB_AUTHORITIES = 15

// Sizes of the structures above.
var (
	SizeOfSecurityDescriptor         = binary.Size(SecurityDescriptor{})
	SizeOfSecurityDescriptorRelative = binary.Size(SecurityDescriptorRelative{})
	SizeOfSIDHeader                  = binary.Size(SIDHeader{})
	SizeOfACLHeader                  = binary.Size(ACLHeader{})
)

// SIDLength returns the length of a SID with n sub-authorities.
func SIDLength(n uint8) int {
	return SizeOfSIDHeader + 4*int(n)
}
