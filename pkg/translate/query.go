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
	"fmt"

	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
)

// Class describes the conversion of one information class.
type Class struct {
	// Name identifies the class in logs.
	Name string

	// NarrowSize and WideSize are the record sizes of a fixed-size class.
	// Both are zero for variable-length classes.
	NarrowSize int
	WideSize   int

	// Grow returns the wide buffer size that holds any record whose narrow
	// form fits in narrowLen bytes. Only variable-length classes set it.
	Grow func(narrowLen uint64) uint64

	// ToNarrow builds the narrow image, to be placed at guest address base,
	// of the wide record in wide.
	ToNarrow func(wide hostarch.Buffer, base uint32) ([]byte, error)

	// ToWide builds the wide record from its narrow bytes. It is nil for
	// classes that cannot be set.
	ToWide func(narrow []byte) ([]byte, error)
}

// Fixed returns true if c has a fixed record size.
func (c *Class) Fixed() bool {
	return c.NarrowSize != 0
}

// MaxStaged bounds the wide buffer staged for the first attempt at a
// variable-length query, whatever length the guest passed. A record that
// does not fit is fetched again at the size the host reports.
const MaxStaged = 1 << 20

// HostQuery fills buf with the wide record. It returns the number of bytes
// written or, if buf was too small, the number of bytes required.
type HostQuery func(buf hostarch.Buffer) (uint32, error)

// IsTooSmall returns true if err reports a buffer that was too small.
func IsTooSmall(err error) bool {
	switch ntstatus.FromError(err) {
	case ntstatus.StatusBufferTooSmall, ntstatus.StatusInfoLengthMismatch, ntstatus.StatusBufferOverflow:
		return true
	default:
		return false
	}
}

// Query runs q for class c on behalf of a guest buffer [dst, dst+dstLen),
// converts the result and writes it to the guest.
//
// It returns the narrow length written or, on a buffer-size error, the
// narrow length required. Supplying the required length on a later call
// succeeds as long as the host's answer does not change. Informational and
// warning statuses from the host are passed through with the data.
func (t *Translator) Query(c *Class, q HostQuery, dst, dstLen uint32) (uint32, error) {
	if c.Fixed() {
		return t.queryFixed(c, q, dst, dstLen)
	}
	return t.queryVariable(c, q, dst, dstLen)
}

func (t *Translator) queryFixed(c *Class, q HostQuery, dst, dstLen uint32) (uint32, error) {
	if int(dstLen) < c.NarrowSize {
		return uint32(c.NarrowSize), fmt.Errorf("%s: %d byte buffer: %w", c.Name, dstLen, ntstatus.StatusInfoLengthMismatch)
	}
	buf := t.Arena.Alloc(c.WideSize)
	if _, err := q(buf); ntstatus.FromError(err).IsError() {
		return 0, err
	}
	img, err := c.ToNarrow(buf, dst)
	if err != nil {
		return 0, err
	}
	if err := t.copyImage(dst, img); err != nil {
		return 0, err
	}
	return uint32(len(img)), nil
}

func (t *Translator) queryVariable(c *Class, q HostQuery, dst, dstLen uint32) (uint32, error) {
	var wideLen uint64
	if dstLen != 0 {
		wideLen = min(c.Grow(uint64(dstLen)), MaxStaged)
	}
	buf := t.Arena.Alloc(int(wideLen))
	n, hostErr := q(buf)
	tooSmall := hostErr
	if IsTooSmall(hostErr) {
		if uint64(n) <= wideLen {
			// The host did not say how much it needs.
			return 0, hostErr
		}
		// Fetch the whole record to learn its exact narrow size.
		buf = t.Arena.Alloc(int(n))
		n, hostErr = q(buf)
		if IsTooSmall(hostErr) || ntstatus.FromError(hostErr).IsError() {
			return 0, hostErr
		}
	} else if ntstatus.FromError(hostErr).IsError() {
		return 0, hostErr
	} else {
		tooSmall = nil
	}
	if int(n) > len(buf.Data) {
		return 0, fmt.Errorf("%s: host reported %d bytes in a %d byte buffer: %w", c.Name, n, len(buf.Data), ntstatus.StatusInternalError)
	}
	img, err := c.ToNarrow(buf.Slice(0, int(n)), dst)
	if err != nil {
		return 0, err
	}
	if len(img) > int(dstLen) {
		if tooSmall == nil {
			tooSmall = ntstatus.StatusBufferTooSmall
		}
		return uint32(len(img)), tooSmall
	}
	if err := t.copyImage(dst, img); err != nil {
		return 0, err
	}
	return uint32(len(img)), hostErr
}

func (t *Translator) copyImage(dst uint32, img []byte) error {
	if len(img) == 0 {
		return nil
	}
	if dst == 0 {
		return ntstatus.StatusAccessViolation
	}
	_, err := t.Guest.CopyOut(hostarch.Addr(dst), img)
	return err
}

// Set reads a narrow record of class c from [src, src+srcLen) and stages
// its wide form. A zero-length variable record is a no-op that returns the
// empty buffer.
func (t *Translator) Set(c *Class, src, srcLen uint32) (hostarch.Buffer, error) {
	if c.ToWide == nil {
		return hostarch.Buffer{}, fmt.Errorf("%s cannot be set: %w", c.Name, ntstatus.StatusInvalidInfoClass)
	}
	if c.Fixed() && int(srcLen) != c.NarrowSize {
		return hostarch.Buffer{}, fmt.Errorf("%s: %d byte record: %w", c.Name, srcLen, ntstatus.StatusInfoLengthMismatch)
	}
	narrow, err := t.CopyToWide(src, srcLen)
	if err != nil || srcLen == 0 {
		return narrow, err
	}
	wide, err := c.ToWide(narrow.Data)
	if err != nil {
		return hostarch.Buffer{}, err
	}
	return t.StageBytes(wide), nil
}

// fixed returns the Class of a fixed-size record converted by the given
// pure functions. to64 may be nil for query-only classes.
func fixed[W, N any](name string, to32 func(W) (N, error), to64 func(N) W) *Class {
	var w W
	var n N
	c := &Class{
		Name:       name,
		NarrowSize: binary.Size(&n),
		WideSize:   binary.Size(&w),
		ToNarrow: func(wide hostarch.Buffer, _ uint32) ([]byte, error) {
			var w W
			if err := decode(wide, &w); err != nil {
				return nil, err
			}
			n, err := to32(w)
			if err != nil {
				return nil, err
			}
			return encode(&n), nil
		},
	}
	if to64 != nil {
		c.ToWide = func(narrow []byte) ([]byte, error) {
			var n N
			if err := binary.Decode(narrow, hostarch.ByteOrder, &n); err != nil {
				return nil, errors.Join(err, ntstatus.StatusInfoLengthMismatch)
			}
			w := to64(n)
			return encode(&w), nil
		}
	}
	return c
}

// same returns the Class of a fixed-size record whose layout is identical
// at both widths.
func same[T any](name string) *Class {
	return fixed(name,
		func(v T) (T, error) { return v, nil },
		func(v T) T { return v })
}

// opaque returns the Class of a variable-length record whose layout is
// identical at both widths.
func opaque(name string) *Class {
	return &Class{
		Name: name,
		Grow: func(n uint64) uint64 { return n },
		ToNarrow: func(wide hostarch.Buffer, _ uint32) ([]byte, error) {
			return append([]byte(nil), wide.Data...), nil
		},
		ToWide: func(narrow []byte) ([]byte, error) {
			return append([]byte(nil), narrow...), nil
		},
	}
}
