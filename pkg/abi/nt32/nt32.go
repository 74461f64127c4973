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

// Package nt32 contains the guest-width (32-bit) layouts of the NT kernel
// interface.
//
// Each type mirrors the host-width type of the same name in package nt.
// Layouts that are identical at both widths are not repeated here.
package nt32

import "gvisor.dev/compat32/pkg/binary"

// Handle is a guest-width object handle.
type Handle uint32

// UnicodeString corresponds to UNICODE_STRING32.
type UnicodeString struct {
	Length        uint16
	MaximumLength uint16
	Buffer        uint32
}

// ObjectAttributes corresponds to OBJECT_ATTRIBUTES32.
type ObjectAttributes struct {
	Length                   uint32
	RootDirectory            uint32
	ObjectName               uint32
	Attributes               uint32
	SecurityDescriptor       uint32
	SecurityQualityOfService uint32
}

// IOStatusBlock corresponds to IO_STATUS_BLOCK32.
type IOStatusBlock struct {
	Status      uint32
	Information uint32
}

// ClientID corresponds to CLIENT_ID32.
type ClientID struct {
	UniqueProcess uint32
	UniqueThread  uint32
}

// SecurityDescriptor corresponds to the absolute SECURITY_DESCRIPTOR with
// 32-bit pointers.
type SecurityDescriptor struct {
	Revision uint8
	Sbz1     uint8
	Control  uint16
	Owner    uint32
	Group    uint32
	Sacl     uint32
	Dacl     uint32
}

// SIDAndAttributes corresponds to SID_AND_ATTRIBUTES32.
type SIDAndAttributes struct {
	Sid        uint32
	Attributes uint32
}

// TokenGroupsHeader is the fixed part of TOKEN_GROUPS32.
type TokenGroupsHeader struct {
	GroupCount uint32
}

// Sizes of the structures above.
var (
	SizeOfUnicodeString      = binary.Size(UnicodeString{})
	SizeOfObjectAttributes   = binary.Size(ObjectAttributes{})
	SizeOfIOStatusBlock      = binary.Size(IOStatusBlock{})
	SizeOfClientID           = binary.Size(ClientID{})
	SizeOfSecurityDescriptor = binary.Size(SecurityDescriptor{})
	SizeOfSIDAndAttributes   = binary.Size(SIDAndAttributes{})
	SizeOfTokenGroupsHeader  = binary.Size(TokenGroupsHeader{})
)
