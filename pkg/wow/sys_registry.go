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

package wow

import (
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
	"gvisor.dev/compat32/pkg/usermem"
)

// NtOpenKey implements NtOpenKey.
func NtOpenKey(t *Thread, args *Args) ntstatus.Status {
	handlePtr := args.Pointer()
	access := args.Uint32()
	attrsPtr := args.Pointer()

	attrs, err := t.tr.ObjectAttributesToWide(attrsPtr)
	if err != nil {
		return status(err)
	}
	h, err := t.kernel().OpenKey(t.ctx, access, attrs)
	if err != nil {
		return status(err)
	}
	return status(t.storeHandle(handlePtr, h))
}

// NtCreateKey implements NtCreateKey.
func NtCreateKey(t *Thread, args *Args) ntstatus.Status {
	handlePtr := args.Pointer()
	access := args.Uint32()
	attrsPtr := args.Pointer()
	titleIndex := args.Uint32()
	classPtr := args.Pointer()
	options := args.Uint32()
	dispositionPtr := args.Pointer()

	attrs, err := t.tr.ObjectAttributesToWide(attrsPtr)
	if err != nil {
		return status(err)
	}
	class, err := t.tr.UnicodeStringToWide(classPtr)
	if err != nil {
		return status(err)
	}
	h, disposition, err := t.kernel().CreateKey(t.ctx, access, attrs, titleIndex, class, options)
	s := status(err)
	if !s.IsSuccess() {
		return s
	}
	if err := t.storeHandle(handlePtr, h); err != nil {
		return status(err)
	}
	if err := t.tr.WriteULong(dispositionPtr, disposition); err != nil {
		return status(err)
	}
	return s
}

// NtQueryValueKey implements NtQueryValueKey.
func NtQueryValueKey(t *Thread, args *Args) ntstatus.Status {
	key := args.Handle()
	namePtr := args.Pointer()
	class := args.Uint32()
	buf := args.Pointer()
	length := args.Uint32()
	retLen := args.Pointer()

	c, err := translate.KeyValueClass(class)
	if err != nil {
		return t.unsupported(err)
	}
	name, err := t.tr.UnicodeStringToWide(namePtr)
	if err != nil {
		return status(err)
	}
	q := func(b hostarch.Buffer) (uint32, error) {
		return t.kernel().QueryValueKey(t.ctx, key, name, class, b)
	}
	return t.query(c, q, buf, length, retLen)
}

// NtSetValueKey implements NtSetValueKey. Value data is width-independent.
func NtSetValueKey(t *Thread, args *Args) ntstatus.Status {
	key := args.Handle()
	namePtr := args.Pointer()
	titleIndex := args.Uint32()
	valueType := args.Uint32()
	dataPtr := args.Pointer()
	size := args.Uint32()

	name, err := t.tr.UnicodeStringToWide(namePtr)
	if err != nil {
		return status(err)
	}
	var data []byte
	if size != 0 {
		if data, err = usermem.CopyBytesIn(t.tr.Guest, hostarch.Addr(dataPtr), int(size)); err != nil {
			return status(err)
		}
	}
	return status(t.kernel().SetValueKey(t.ctx, key, name, titleIndex, valueType, data))
}
