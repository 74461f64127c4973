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

package usermem

import (
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
)

// BytesIO implements IO using a byte slice mapped at Base. Addresses outside
// [Base, Base+len(Bytes)) are treated as unmapped.
type BytesIO struct {
	Base  hostarch.Addr
	Bytes []byte
}

// CopyOut implements IO.CopyOut.
func (b *BytesIO) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	rngN, rngErr := b.rangeCheck(addr, len(src))
	if rngN == 0 {
		return 0, rngErr
	}
	off := int(addr - b.Base)
	return copy(b.Bytes[off:off+rngN], src[:rngN]), rngErr
}

// CopyIn implements IO.CopyIn.
func (b *BytesIO) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	rngN, rngErr := b.rangeCheck(addr, len(dst))
	if rngN == 0 {
		return 0, rngErr
	}
	off := int(addr - b.Base)
	return copy(dst[:rngN], b.Bytes[off:off+rngN]), rngErr
}

// ZeroOut implements IO.ZeroOut.
func (b *BytesIO) ZeroOut(addr hostarch.Addr, toZero int64) (int64, error) {
	if toZero > int64(maxInt) {
		return 0, ntstatus.StatusInvalidParameter
	}
	rngN, rngErr := b.rangeCheck(addr, int(toZero))
	if rngN == 0 {
		return 0, rngErr
	}
	off := int(addr - b.Base)
	clear(b.Bytes[off : off+rngN])
	return int64(rngN), rngErr
}

func (b *BytesIO) rangeCheck(addr hostarch.Addr, length int) (int, error) {
	if length == 0 {
		return 0, nil
	}
	if addr < b.Base {
		return 0, ntstatus.StatusAccessViolation
	}
	off := addr - b.Base
	if off >= hostarch.Addr(len(b.Bytes)) {
		return 0, ntstatus.StatusAccessViolation
	}
	if rem := len(b.Bytes) - int(off); rem < length {
		return rem, ntstatus.StatusAccessViolation
	}
	return length, nil
}

const maxInt = int(^uint(0) >> 1)
