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

// UnicodeString corresponds to UNICODE_STRING.
type UnicodeString struct {
	Length        uint16
	MaximumLength uint16
	_             uint32
	Buffer        uint64
}

// ObjectAttributes corresponds to OBJECT_ATTRIBUTES.
type ObjectAttributes struct {
	Length                   uint32
	_                        uint32
	RootDirectory            uint64
	ObjectName               uint64
	Attributes               uint32
	_                        uint32
	SecurityDescriptor       uint64
	SecurityQualityOfService uint64
}

// IOStatusBlock corresponds to IO_STATUS_BLOCK.
type IOStatusBlock struct {
	Status      uint32
	_           uint32
	Information uint64
}

// ClientID corresponds to CLIENT_ID.
type ClientID struct {
	UniqueProcess uint64
	UniqueThread  uint64
}

// SecurityQualityOfService corresponds to SECURITY_QUALITY_OF_SERVICE. The
// layout is the same at every width.
type SecurityQualityOfService struct {
	Length              uint32
	ImpersonationLevel  uint32
	ContextTrackingMode uint8
	EffectiveOnly       uint8
	_                   [2]uint8
}

// Sizes of the structures above.
var (
	SizeOfUnicodeString            = binary.Size(UnicodeString{})
	SizeOfObjectAttributes         = binary.Size(ObjectAttributes{})
	SizeOfIOStatusBlock            = binary.Size(IOStatusBlock{})
	SizeOfClientID                 = binary.Size(ClientID{})
	SizeOfSecurityQualityOfService = binary.Size(SecurityQualityOfService{})
)
