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
)

// sidAndAttributesImage converts TOKEN_USER and TOKEN_MANDATORY_LABEL: one
// SID_AND_ATTRIBUTES followed by the SID.
func sidAndAttributesImage(wide hostarch.Buffer, base uint32) ([]byte, error) {
	var sa nt.SIDAndAttributes
	if err := decode(wide, &sa); err != nil {
		return nil, err
	}
	r := rebaser{wide: wide, wideHdr: nt.SizeOfSIDAndAttributes, narrowHdr: nt32.SizeOfSIDAndAttributes, base: base}
	sid, err := r.ptr(sa.Sid)
	if err != nil {
		return nil, err
	}
	return r.image(encode(nt32.SIDAndAttributes{Sid: sid, Attributes: sa.Attributes})), nil
}

// tokenGroupsImage converts TOKEN_GROUPS: a count, the SID_AND_ATTRIBUTES
// array, then the SIDs.
func tokenGroupsImage(wide hostarch.Buffer, base uint32) ([]byte, error) {
	var hdr nt.TokenGroupsHeader
	if err := decode(wide, &hdr); err != nil {
		return nil, err
	}
	n := int(hdr.GroupCount)
	wideHdr := nt.SizeOfTokenGroupsHeader + n*nt.SizeOfSIDAndAttributes
	if wideHdr > wide.Len() {
		return nil, fmt.Errorf("%d groups in %d bytes: %w", n, wide.Len(), ntstatus.StatusInfoLengthMismatch)
	}
	r := rebaser{
		wide:      wide,
		wideHdr:   wideHdr,
		narrowHdr: nt32.SizeOfTokenGroupsHeader + n*nt32.SizeOfSIDAndAttributes,
		base:      base,
	}
	out := encode(nt32.TokenGroupsHeader{GroupCount: hdr.GroupCount})
	for i := 0; i < n; i++ {
		var sa nt.SIDAndAttributes
		if err := decode(wide.Slice(nt.SizeOfTokenGroupsHeader+i*nt.SizeOfSIDAndAttributes, nt.SizeOfSIDAndAttributes), &sa); err != nil {
			return nil, err
		}
		sid, err := r.ptr(sa.Sid)
		if err != nil {
			return nil, err
		}
		out = append(out, encode(nt32.SIDAndAttributes{Sid: sid, Attributes: sa.Attributes})...)
	}
	return r.image(out), nil
}

// tokenGroupsGrow bounds the wide size of TOKEN_GROUPS whose narrow form is
// n bytes: each array entry doubles and the header gains 4 bytes.
func tokenGroupsGrow(n uint64) uint64 {
	return 2*n + 4
}

// singlePointerImage converts TOKEN_OWNER, TOKEN_PRIMARY_GROUP and
// TOKEN_DEFAULT_DACL: one pointer followed by its payload.
func singlePointerImage(wide hostarch.Buffer, base uint32) ([]byte, error) {
	var p uint64
	if err := decode(wide, &p); err != nil {
		return nil, err
	}
	r := rebaser{wide: wide, wideHdr: 8, narrowHdr: 4, base: base}
	n, err := r.ptr(p)
	if err != nil {
		return nil, err
	}
	return r.image(encode(n)), nil
}

var (
	tokenUser = &Class{
		Name:     "TokenUser",
		Grow:     func(n uint64) uint64 { return n + 8 },
		ToNarrow: sidAndAttributesImage,
	}
	tokenIntegrityLevel = &Class{
		Name:     "TokenIntegrityLevel",
		Grow:     tokenUser.Grow,
		ToNarrow: sidAndAttributesImage,
	}
	tokenGroups = &Class{
		Name:     "TokenGroups",
		Grow:     tokenGroupsGrow,
		ToNarrow: tokenGroupsImage,
	}
	tokenOwner = &Class{
		Name:     "TokenOwner",
		Grow:     func(n uint64) uint64 { return n + 4 },
		ToNarrow: singlePointerImage,
	}
	tokenPrimaryGroup = &Class{
		Name:     "TokenPrimaryGroup",
		Grow:     tokenOwner.Grow,
		ToNarrow: singlePointerImage,
	}
	tokenDefaultDacl = &Class{
		Name:     "TokenDefaultDacl",
		Grow:     tokenOwner.Grow,
		ToNarrow: singlePointerImage,
	}
	tokenType          = same[uint32]("TokenType")
	tokenSessionID     = same[uint32]("TokenSessionId")
	tokenElevationType = same[uint32]("TokenElevationType")
	tokenElevation     = same[uint32]("TokenElevation")
	tokenStatistics    = same[nt.TokenStatisticsInfo]("TokenStatistics")
)

// TokenClass returns the conversion for a token information class.
func TokenClass(class uint32) (*Class, error) {
	switch class {
	case nt.TokenUser:
		return tokenUser, nil
	case nt.TokenGroups:
		return tokenGroups, nil
	case nt.TokenOwner:
		return tokenOwner, nil
	case nt.TokenPrimaryGroup:
		return tokenPrimaryGroup, nil
	case nt.TokenDefaultDacl:
		return tokenDefaultDacl, nil
	case nt.TokenType:
		return tokenType, nil
	case nt.TokenStatistics:
		return tokenStatistics, nil
	case nt.TokenSessionId:
		return tokenSessionID, nil
	case nt.TokenElevationType:
		return tokenElevationType, nil
	case nt.TokenElevation:
		return tokenElevation, nil
	case nt.TokenIntegrityLevel:
		return tokenIntegrityLevel, nil
	default:
		return nil, invalidClass("token", class)
	}
}
