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

package sim

import (
	"context"
	"fmt"
	"strings"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/binary"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

type value struct {
	titleIndex uint32
	typ        uint32
	data       []byte
}

// key is an open registry key. Keys with the same path share values.
type key struct {
	objectBase
	path   string
	values map[string]*value
}

func (*key) kind() string { return "Key" }

// keyPath returns the canonical path of the key named by attrs.
func (c call) keyPath(attrs hostarch.Addr) (string, error) {
	name, root, err := readName(c.caller.Mem, attrs)
	if err != nil {
		return "", err
	}
	if root != 0 {
		parent, err := lookup[*key](c, root)
		if err != nil {
			return "", err
		}
		name = parent.path + `\` + name
	}
	if name == "" {
		return "", fmt.Errorf("empty key name: %w", ntstatus.StatusObjectNameInvalid)
	}
	return strings.ToLower(strings.TrimRight(name, `\`)), nil
}

// OpenKey implements host.Kernel.OpenKey.
func (h *Host) OpenKey(ctx context.Context, access uint32, attrs hostarch.Addr) (nt.Handle, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	path, err := c.keyPath(attrs)
	if err != nil {
		return 0, err
	}
	k, ok := h.keys[path]
	if !ok {
		return 0, fmt.Errorf("key %q: %w", path, ntstatus.StatusObjectNameNotFound)
	}
	return c.process.insert(&key{objectBase: k.objectBase, path: k.path, values: k.values}), nil
}

// CreateKey implements host.Kernel.CreateKey.
func (h *Host) CreateKey(ctx context.Context, access uint32, attrs hostarch.Addr, titleIndex uint32, class hostarch.Addr, options uint32) (nt.Handle, uint32, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer h.mu.Unlock()
	path, err := c.keyPath(attrs)
	if err != nil {
		return 0, 0, err
	}
	disposition := uint32(nt.REG_OPENED_EXISTING_KEY)
	k, ok := h.keys[path]
	if !ok {
		k = &key{objectBase: defaultSecurity(), path: path, values: make(map[string]*value)}
		if err := objectSecurity(c.caller.Mem, attrs, k); err != nil {
			return 0, 0, err
		}
		h.keys[path] = k
		disposition = nt.REG_CREATED_NEW_KEY
	}
	return c.process.insert(&key{objectBase: k.objectBase, path: k.path, values: k.values}), disposition, nil
}

// valueName reads the wide UNICODE_STRING at addr.
func valueName(mem usermem.IO, addr hostarch.Addr) (string, error) {
	if addr == 0 {
		return "", nil
	}
	var us nt.UnicodeString
	if _, err := usermem.CopyObjectIn(mem, addr, &us); err != nil {
		return "", err
	}
	name, err := usermem.CopyUTF16In(mem, hostarch.Addr(us.Buffer), int(us.Length))
	return strings.ToLower(name), err
}

// QueryValueKey implements host.Kernel.QueryValueKey.
//
// When buf cannot hold the whole record, STATUS_BUFFER_OVERFLOW is
// returned with as much as fits if the fixed header fits, otherwise
// STATUS_BUFFER_TOO_SMALL.
func (h *Host) QueryValueKey(ctx context.Context, handle nt.Handle, name hostarch.Addr, class uint32, buf hostarch.Buffer) (uint32, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	k, err := lookup[*key](c, handle)
	if err != nil {
		return 0, err
	}
	vn, err := valueName(c.caller.Mem, name)
	if err != nil {
		return 0, err
	}
	v, ok := k.values[vn]
	if !ok {
		return 0, fmt.Errorf("value %q of %q: %w", vn, k.path, ntstatus.StatusObjectNameNotFound)
	}
	encName := usermem.EncodeUTF16(vn)
	var img []byte
	var header int
	switch class {
	case nt.KeyValueBasicInformation:
		img = binary.AppendUint32(img, hostarch.ByteOrder, v.titleIndex)
		img = binary.AppendUint32(img, hostarch.ByteOrder, v.typ)
		img = binary.AppendUint32(img, hostarch.ByteOrder, uint32(len(encName)))
		header = len(img)
		img = append(img, encName...)
	case nt.KeyValueFullInformation:
		header = 5 * 4
		dataOffset := header + len(encName)
		img = binary.AppendUint32(img, hostarch.ByteOrder, v.titleIndex)
		img = binary.AppendUint32(img, hostarch.ByteOrder, v.typ)
		img = binary.AppendUint32(img, hostarch.ByteOrder, uint32(dataOffset))
		img = binary.AppendUint32(img, hostarch.ByteOrder, uint32(len(v.data)))
		img = binary.AppendUint32(img, hostarch.ByteOrder, uint32(len(encName)))
		img = append(img, encName...)
		img = append(img, v.data...)
	case nt.KeyValuePartialInformation:
		img = binary.Marshal(nil, hostarch.ByteOrder, &nt.KeyValuePartialInformationHeader{
			TitleIndex: v.titleIndex,
			Type:       v.typ,
			DataLength: uint32(len(v.data)),
		})
		header = len(img)
		img = append(img, v.data...)
	default:
		return 0, fmt.Errorf("key value class %d: %w", class, ntstatus.StatusInvalidParameter)
	}
	if len(img) <= buf.Len() {
		return fill(buf, img, ntstatus.StatusBufferOverflow)
	}
	if header > buf.Len() {
		return uint32(len(img)), ntstatus.StatusBufferTooSmall
	}
	copy(buf.Data, img)
	return uint32(len(img)), ntstatus.StatusBufferOverflow
}

// SetValueKey implements host.Kernel.SetValueKey.
func (h *Host) SetValueKey(ctx context.Context, handle nt.Handle, name hostarch.Addr, titleIndex, valueType uint32, data []byte) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	k, err := lookup[*key](c, handle)
	if err != nil {
		return err
	}
	vn, err := valueName(c.caller.Mem, name)
	if err != nil {
		return err
	}
	k.values[vn] = &value{titleIndex: titleIndex, typ: valueType, data: append([]byte(nil), data...)}
	return nil
}
