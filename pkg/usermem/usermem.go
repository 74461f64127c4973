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

// Package usermem governs access to guest and host-staged memory.
package usermem

import (
	"fmt"
	"io"
	"unicode/utf16"

	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
)

// IO provides access to the contents of a virtual memory space.
//
// Failed accesses report ntstatus.StatusAccessViolation, possibly wrapped.
type IO interface {
	// CopyOut copies len(src) bytes from src to the memory mapped at addr. It
	// returns the number of bytes copied. If the number of bytes copied is <
	// len(src), it returns a non-nil error explaining why.
	CopyOut(addr hostarch.Addr, src []byte) (int, error)

	// CopyIn copies len(dst) bytes from the memory mapped at addr to dst.
	// It returns the number of bytes copied. If the number of bytes copied is
	// < len(dst), it returns a non-nil error explaining why.
	CopyIn(addr hostarch.Addr, dst []byte) (int, error)

	// ZeroOut sets toZero bytes to 0, starting at addr. It returns the number
	// of bytes zeroed. If the number of bytes zeroed is < toZero, it returns a
	// non-nil error explaining why.
	ZeroOut(addr hostarch.Addr, toZero int64) (int64, error)
}

// IOReadWriter is an io.ReadWriter that reads from / writes to addresses
// starting at addr in IO.
type IOReadWriter struct {
	IO   IO
	Addr hostarch.Addr
}

// Read implements io.Reader.Read.
//
// Note that an address space does not have an "end of file", so Read can only
// return io.EOF if IO.CopyIn returns io.EOF.
func (rw *IOReadWriter) Read(dst []byte) (int, error) {
	n, err := rw.IO.CopyIn(rw.Addr, dst)
	rw.advance(n, &err)
	return n, err
}

// Write implements io.Writer.Write.
func (rw *IOReadWriter) Write(src []byte) (int, error) {
	n, err := rw.IO.CopyOut(rw.Addr, src)
	rw.advance(n, &err)
	return n, err
}

func (rw *IOReadWriter) advance(n int, err *error) {
	end, ok := rw.Addr.AddLength(uint64(n))
	if ok {
		rw.Addr = end
	} else if *err == nil {
		// Ensure that a partial copy that wraps around the address space
		// reports an error.
		*err = ntstatus.StatusAccessViolation
	}
}

var _ io.ReadWriter = (*IOReadWriter)(nil)

// CopyObjectOut copies a fixed-size value or slice of fixed-size values from
// src to the memory mapped at addr in uio. It returns the number of bytes
// copied.
//
// CopyObjectOut must use reflection to encode src; performance-sensitive
// callers should do encoding manually.
func CopyObjectOut(uio IO, addr hostarch.Addr, src any) (int, error) {
	b := binary.Marshal(make([]byte, 0, binary.Size(src)), hostarch.ByteOrder, src)
	return uio.CopyOut(addr, b)
}

// CopyObjectIn copies a fixed-size value or slice of fixed-size values from
// the memory mapped at addr in uio to dst. It returns the number of bytes
// copied.
func CopyObjectIn(uio IO, addr hostarch.Addr, dst any) (int, error) {
	b := make([]byte, binary.Size(dst))
	if _, err := uio.CopyIn(addr, b); err != nil {
		return 0, err
	}
	binary.Unmarshal(b, hostarch.ByteOrder, dst)
	return len(b), nil
}

// CopyUint32In reads a little-endian uint32 at addr.
func CopyUint32In(uio IO, addr hostarch.Addr) (uint32, error) {
	var b [4]byte
	if _, err := uio.CopyIn(addr, b[:]); err != nil {
		return 0, err
	}
	return hostarch.ByteOrder.Uint32(b[:]), nil
}

// CopyUint32Out writes v as a little-endian uint32 at addr.
func CopyUint32Out(uio IO, addr hostarch.Addr, v uint32) error {
	var b [4]byte
	hostarch.ByteOrder.PutUint32(b[:], v)
	_, err := uio.CopyOut(addr, b[:])
	return err
}

// CopyUint64In reads a little-endian uint64 at addr.
func CopyUint64In(uio IO, addr hostarch.Addr) (uint64, error) {
	var b [8]byte
	if _, err := uio.CopyIn(addr, b[:]); err != nil {
		return 0, err
	}
	return hostarch.ByteOrder.Uint64(b[:]), nil
}

// CopyUint64Out writes v as a little-endian uint64 at addr.
func CopyUint64Out(uio IO, addr hostarch.Addr, v uint64) error {
	var b [8]byte
	hostarch.ByteOrder.PutUint64(b[:], v)
	_, err := uio.CopyOut(addr, b[:])
	return err
}

// CopyBytesIn returns a copy of n bytes at addr.
func CopyBytesIn(uio IO, addr hostarch.Addr, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d: %w", n, ntstatus.StatusInvalidParameter)
	}
	b := make([]byte, n)
	if _, err := uio.CopyIn(addr, b); err != nil {
		return nil, err
	}
	return b, nil
}

// CopyUTF16In reads a UTF-16LE string of byteLen bytes at addr.
func CopyUTF16In(uio IO, addr hostarch.Addr, byteLen int) (string, error) {
	if byteLen%2 != 0 {
		return "", fmt.Errorf("odd UTF-16 length %d: %w", byteLen, ntstatus.StatusInvalidParameter)
	}
	b, err := CopyBytesIn(uio, addr, byteLen)
	if err != nil {
		return "", err
	}
	return DecodeUTF16(b), nil
}

// EncodeUTF16 returns the UTF-16LE encoding of s, without terminator.
func EncodeUTF16(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(u))
	for i, c := range u {
		hostarch.ByteOrder.PutUint16(b[2*i:], c)
	}
	return b
}

// DecodeUTF16 decodes UTF-16LE bytes. A trailing odd byte is ignored.
func DecodeUTF16(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = hostarch.ByteOrder.Uint16(b[2*i:])
	}
	return string(utf16.Decode(u))
}
