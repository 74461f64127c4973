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

// TOKEN_INFORMATION_CLASS values.
const (
	TokenUser           = 1
	TokenGroups         = 2
	TokenPrivileges     = 3
	TokenOwner          = 4
	TokenPrimaryGroup   = 5
	TokenDefaultDacl    = 6
	TokenSource         = 7
	TokenType           = 8
	TokenStatistics     = 10
	TokenSessionId      = 12
	TokenElevationType  = 18
	TokenLinkedToken    = 19
	TokenElevation      = 20
	TokenIntegrityLevel = 25
)

// Token types.
const (
	TokenPrimary       = 1
	TokenImpersonation = 2
)

// SIDAndAttributes corresponds to SID_AND_ATTRIBUTES.
type SIDAndAttributes struct {
	Sid        uint64
	Attributes uint32
	_          uint32
}

// TokenGroupsHeader is the fixed part of TOKEN_GROUPS; GroupCount
// SIDAndAttributes follow it.
type TokenGroupsHeader struct {
	GroupCount uint32
	_          uint32
}

// TokenStatisticsInfo corresponds to TOKEN_STATISTICS, which has the same
// layout at every width.
type TokenStatisticsInfo struct {
	TokenID            uint64
	AuthenticationID   uint64
	ExpirationTime     int64
	TokenType          uint32
	ImpersonationLevel uint32
	DynamicCharged     uint32
	DynamicAvailable   uint32
	GroupCount         uint32
	PrivilegeCount     uint32
	ModifiedID         uint64
}

// Sizes of the structures above.
var (
	SizeOfSIDAndAttributes    = binary.Size(SIDAndAttributes{})
	SizeOfTokenGroupsHeader   = binary.Size(TokenGroupsHeader{})
	SizeOfTokenStatisticsInfo = binary.Size(TokenStatisticsInfo{})
)
