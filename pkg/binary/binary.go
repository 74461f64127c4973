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

// Package binary translates between the fixed-layout structures exchanged
// with guest and host kernels and their binary representation.
//
// Layouts are described by ordinary Go structs containing only fixed-size
// integers, arrays and nested structs. Alignment padding must be spelled out
// as blank (_) fields; the encoding is always packed and padding is always
// written as zeros.
package binary

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"
)

// LittleEndian is the same as encoding/binary.LittleEndian.
var LittleEndian = binary.LittleEndian

// AppendUint16 appends the binary representation of a uint16 to buf.
func AppendUint16(buf []byte, order binary.ByteOrder, num uint16) []byte {
	if a, ok := order.(binary.AppendByteOrder); ok {
		return a.AppendUint16(buf, num)
	}
	buf = append(buf, 0, 0)
	order.PutUint16(buf[len(buf)-2:], num)
	return buf
}

// AppendUint32 appends the binary representation of a uint32 to buf.
func AppendUint32(buf []byte, order binary.ByteOrder, num uint32) []byte {
	if a, ok := order.(binary.AppendByteOrder); ok {
		return a.AppendUint32(buf, num)
	}
	buf = append(buf, 0, 0, 0, 0)
	order.PutUint32(buf[len(buf)-4:], num)
	return buf
}

// AppendUint64 appends the binary representation of a uint64 to buf.
func AppendUint64(buf []byte, order binary.ByteOrder, num uint64) []byte {
	if a, ok := order.(binary.AppendByteOrder); ok {
		return a.AppendUint64(buf, num)
	}
	buf = append(buf, make([]byte, 8)...)
	order.PutUint64(buf[len(buf)-8:], num)
	return buf
}

// scalarSize returns the size of an integer kind, or 0 if k is not one the
// encoding supports. int and uint are rejected: their size is not part of
// any layout.
func scalarSize(k reflect.Kind) int {
	switch k {
	case reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32:
		return 4
	case reflect.Int64, reflect.Uint64:
		return 8
	default:
		return 0
	}
}

func signed(k reflect.Kind) bool {
	return k >= reflect.Int8 && k <= reflect.Int64
}

func invalid(t reflect.Type) {
	panic("invalid type: " + t.String())
}

// fixedSizes caches the size of every slice-free type seen so far. The
// syscall path sizes the same few dozen layouts over and over.
var fixedSizes sync.Map // reflect.Type -> int

// fixedSize returns the size of t, or false if t contains a slice and its
// size depends on the value.
func fixedSize(t reflect.Type) (int, bool) {
	if n, ok := fixedSizes.Load(t); ok {
		return n.(int), true
	}
	var n int
	switch k := t.Kind(); k {
	case reflect.Array:
		e, ok := fixedSize(t.Elem())
		if !ok {
			return 0, false
		}
		n = t.Len() * e
	case reflect.Struct:
		for i := range t.NumField() {
			f, ok := fixedSize(t.Field(i).Type)
			if !ok {
				return 0, false
			}
			n += f
		}
	case reflect.Slice:
		fixedSize(t.Elem()) // Rejects invalid element types.
		return 0, false
	default:
		if n = scalarSize(k); n == 0 {
			invalid(t)
		}
	}
	fixedSizes.Store(t, n)
	return n, true
}

func sizeof(v reflect.Value) int {
	if n, ok := fixedSize(v.Type()); ok {
		return n
	}
	size := 0
	switch v.Kind() {
	case reflect.Array, reflect.Slice:
		for i := range v.Len() {
			size += sizeof(v.Index(i))
		}
	case reflect.Struct:
		for i := range v.NumField() {
			size += sizeof(v.Field(i))
		}
	}
	return size
}

// Size calculates the buffer size needed by Marshal or Unmarshal.
func Size(v any) int {
	return sizeof(reflect.Indirect(reflect.ValueOf(v)))
}

// Offsetof returns the packed offset of the named top-level field of the
// struct v. It panics if v has no such field.
func Offsetof(v any, field string) int {
	data := reflect.Indirect(reflect.ValueOf(v))
	if data.Kind() != reflect.Struct {
		invalid(data.Type())
	}
	off := 0
	for i := range data.NumField() {
		if data.Type().Field(i).Name == field {
			return off
		}
		off += sizeof(data.Field(i))
	}
	panic(fmt.Sprintf("%s has no field %q", data.Type(), field))
}

func appendScalar(buf []byte, order binary.ByteOrder, n int, x uint64) []byte {
	switch n {
	case 1:
		return append(buf, byte(x))
	case 2:
		return AppendUint16(buf, order, uint16(x))
	case 4:
		return AppendUint32(buf, order, uint32(x))
	default:
		return AppendUint64(buf, order, x)
	}
}

// Marshal appends a binary representation of data to buf.
//
// data must only contain fixed-length signed and unsigned ints, arrays,
// slices, structs and compositions of said types. data may be a pointer,
// but cannot contain pointers.
func Marshal(buf []byte, order binary.ByteOrder, data any) []byte {
	return marshal(buf, order, reflect.Indirect(reflect.ValueOf(data)))
}

func marshal(buf []byte, order binary.ByteOrder, v reflect.Value) []byte {
	k := v.Kind()
	if n := scalarSize(k); n != 0 {
		if signed(k) {
			return appendScalar(buf, order, n, uint64(v.Int()))
		}
		return appendScalar(buf, order, n, v.Uint())
	}
	switch k {
	case reflect.Array, reflect.Slice:
		for i := range v.Len() {
			buf = marshal(buf, order, v.Index(i))
		}
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			if t.Field(i).Name == "_" {
				buf = append(buf, make([]byte, sizeof(v.Field(i)))...)
				continue
			}
			buf = marshal(buf, order, v.Field(i))
		}
	default:
		invalid(v.Type())
	}
	return buf
}

// Unmarshal unpacks buf into data.
//
// data must be a slice or a pointer and buf must have a length of exactly
// Size(data). data must only contain fixed-length signed and unsigned ints,
// arrays, slices, structs and compositions of said types.
func Unmarshal(buf []byte, order binary.ByteOrder, data any) {
	value := reflect.ValueOf(data)
	switch value.Kind() {
	case reflect.Ptr:
		value = value.Elem()
	case reflect.Slice:
	default:
		invalid(value.Type())
	}
	buf = unmarshal(buf, order, value)
	if len(buf) != 0 {
		panic(fmt.Sprintf("buffer too long by %d bytes", len(buf)))
	}
}

func need(buf []byte, n int) {
	if len(buf) < n {
		panic(fmt.Sprintf("buffer too short by %d bytes", n-len(buf)))
	}
}

func unmarshal(buf []byte, order binary.ByteOrder, v reflect.Value) []byte {
	k := v.Kind()
	if n := scalarSize(k); n != 0 {
		need(buf, n)
		var x uint64
		switch n {
		case 1:
			x = uint64(buf[0])
		case 2:
			x = uint64(order.Uint16(buf))
		case 4:
			x = uint64(order.Uint32(buf))
		default:
			x = order.Uint64(buf)
		}
		if signed(k) {
			shift := 64 - 8*n
			v.SetInt(int64(x<<shift) >> shift)
		} else {
			v.SetUint(x)
		}
		return buf[n:]
	}
	switch k {
	case reflect.Array, reflect.Slice:
		for i := range v.Len() {
			buf = unmarshal(buf, order, v.Index(i))
		}
	case reflect.Struct:
		for i := range v.NumField() {
			if f := v.Field(i); f.CanSet() {
				buf = unmarshal(buf, order, f)
			} else {
				n := sizeof(f)
				need(buf, n)
				buf = buf[n:]
			}
		}
	default:
		invalid(v.Type())
	}
	return buf
}

// Decode is like Unmarshal, but reads only the leading Size(data) bytes of
// buf and returns an error instead of panicking when buf is too short.
func Decode(buf []byte, order binary.ByteOrder, data any) error {
	n := Size(data)
	if len(buf) < n {
		return fmt.Errorf("decoding %T: need %d bytes, have %d", data, n, len(buf))
	}
	Unmarshal(buf[:n], order, data)
	return nil
}

// Encode writes the binary representation of data to the start of buf,
// returning an error if buf is too short.
func Encode(buf []byte, order binary.ByteOrder, data any) error {
	n := Size(data)
	if len(buf) < n {
		return fmt.Errorf("encoding %T: need %d bytes, have %d", data, n, len(buf))
	}
	Marshal(buf[:0:n], order, data)
	return nil
}
