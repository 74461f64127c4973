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

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// file is a file in the simulated namespace.
type file struct {
	name string
	data []byte
}

// fileHandle is an open file.
type fileHandle struct {
	objectBase
	node *file
	pos  int64
}

func (*fileHandle) kind() string { return "File" }

// FILE_USE_FILE_POINTER_POSITION as a read or write offset means the
// current position.
const useFilePointer = -2

// AddFile creates or replaces the file name with the given contents.
func (h *Host) AddFile(name string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[name] = &file{name: name, data: append([]byte(nil), data...)}
}

// File returns the contents of the file name.
func (h *Host) File(name string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.data...), true
}

func writeIOStatus(mem usermem.IO, iosb hostarch.Addr, status ntstatus.Status, info uint64) error {
	if iosb == 0 {
		return nil
	}
	_, err := usermem.CopyObjectOut(mem, iosb, &nt.IOStatusBlock{Status: uint32(status), Information: info})
	return err
}

// CreateFile implements host.Kernel.CreateFile.
func (h *Host) CreateFile(ctx context.Context, access uint32, attrs, iosb hostarch.Addr, allocSize int64, fileAttrs, share, disposition, options uint32, ea []byte) (nt.Handle, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	name, _, err := readName(c.caller.Mem, attrs)
	if err != nil {
		return 0, err
	}
	if name == "" {
		return 0, fmt.Errorf("empty file name: %w", ntstatus.StatusObjectNameInvalid)
	}
	f, exists := h.files[name]
	var result uint64
	switch disposition {
	case nt.FILE_OPEN:
		if !exists {
			return 0, fmt.Errorf("open %q: %w", name, ntstatus.StatusObjectNameNotFound)
		}
		result = nt.FILE_OPENED
	case nt.FILE_CREATE:
		if exists {
			return 0, fmt.Errorf("create %q: %w", name, ntstatus.StatusObjectNameCollision)
		}
		result = nt.FILE_CREATED
	case nt.FILE_OPEN_IF:
		result = nt.FILE_OPENED
		if !exists {
			result = nt.FILE_CREATED
		}
	case nt.FILE_OVERWRITE:
		if !exists {
			return 0, fmt.Errorf("overwrite %q: %w", name, ntstatus.StatusObjectNameNotFound)
		}
		f.data = nil
		result = nt.FILE_OVERWRITTEN
	case nt.FILE_OVERWRITE_IF, nt.FILE_SUPERSEDE:
		result = nt.FILE_CREATED
		if exists {
			f.data = nil
			result = nt.FILE_OVERWRITTEN
			if disposition == nt.FILE_SUPERSEDE {
				result = nt.FILE_SUPERSEDED
			}
		}
	default:
		return 0, fmt.Errorf("disposition %d: %w", disposition, ntstatus.StatusInvalidParameter)
	}
	if f == nil {
		f = &file{name: name}
		h.files[name] = f
	}
	fh := &fileHandle{objectBase: defaultSecurity(), node: f}
	if err := objectSecurity(c.caller.Mem, attrs, fh); err != nil {
		return 0, err
	}
	if err := writeIOStatus(c.caller.Mem, iosb, ntstatus.StatusSuccess, result); err != nil {
		return 0, err
	}
	return c.process.insert(fh), nil
}

// transfer performs a read or write of length bytes at buf.
func (h *Host) transfer(ctx context.Context, handle, eventHandle nt.Handle, iosb, buf hostarch.Addr, length uint32, offset *int64, write bool) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	fh, err := lookup[*fileHandle](c, handle)
	if err != nil {
		return err
	}
	var ev *event
	if eventHandle != 0 {
		if ev, err = lookup[*event](c, eventHandle); err != nil {
			return err
		}
		ev.state = false
	}
	pos := fh.pos
	if offset != nil && *offset != useFilePointer {
		pos = *offset
	}
	if pos < 0 {
		return fmt.Errorf("file offset %d: %w", pos, ntstatus.StatusInvalidParameter)
	}
	mem := c.caller.Mem
	var n int
	if write {
		data := make([]byte, length)
		if _, err := mem.CopyIn(buf, data); err != nil {
			return err
		}
		if end := pos + int64(length); end > int64(len(fh.node.data)) {
			fh.node.data = append(fh.node.data, make([]byte, end-int64(len(fh.node.data)))...)
		}
		n = copy(fh.node.data[pos:], data)
	} else {
		if pos >= int64(len(fh.node.data)) {
			if err := writeIOStatus(mem, iosb, ntstatus.StatusEndOfFile, 0); err != nil {
				return err
			}
			return ntstatus.StatusEndOfFile
		}
		end := min(pos+int64(length), int64(len(fh.node.data)))
		if n, err = mem.CopyOut(buf, fh.node.data[pos:end]); err != nil {
			return err
		}
	}
	fh.pos = pos + int64(n)
	if err := writeIOStatus(mem, iosb, ntstatus.StatusSuccess, uint64(n)); err != nil {
		return err
	}
	if ev != nil {
		ev.state = true
		h.broadcast()
	}
	return nil
}

// ReadFile implements host.Kernel.ReadFile.
func (h *Host) ReadFile(ctx context.Context, file, event nt.Handle, iosb, buf hostarch.Addr, length uint32, offset *int64) error {
	return h.transfer(ctx, file, event, iosb, buf, length, offset, false)
}

// WriteFile implements host.Kernel.WriteFile.
func (h *Host) WriteFile(ctx context.Context, file, event nt.Handle, iosb, buf hostarch.Addr, length uint32, offset *int64) error {
	return h.transfer(ctx, file, event, iosb, buf, length, offset, true)
}
