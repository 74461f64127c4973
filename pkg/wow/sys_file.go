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
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// ioRequest is a file operation with a wide status block that is narrowed
// into the guest block at iosbPtr once the host returns.
type ioRequest struct {
	t       *Thread
	iosbPtr uint32
	iosb    hostarch.Buffer
}

func (t *Thread) newIORequest(iosbPtr uint32) ioRequest {
	return ioRequest{t: t, iosbPtr: iosbPtr, iosb: t.arena.Alloc(nt.SizeOfIOStatusBlock)}
}

// finish narrows the status block. The host reports a pending operation's
// completion in the wide block, which does not outlive the call, so
// asynchronous completion is not visible to the guest.
func (r ioRequest) finish(s ntstatus.Status) ntstatus.Status {
	if s.IsError() {
		return s
	}
	if s == ntstatus.StatusPending {
		r.t.tc.limited.Warningf("Asynchronous I/O completion is not forwarded to the guest")
	}
	if err := r.t.tr.IOStatusBlockToNarrow(r.iosb.Addr, r.iosbPtr); err != nil {
		return status(err)
	}
	return s
}

// NtCreateFile implements NtCreateFile. Extended attributes have the same
// layout in both widths and are copied as is.
func NtCreateFile(t *Thread, args *Args) ntstatus.Status {
	handlePtr := args.Pointer()
	access := args.Uint32()
	attrsPtr := args.Pointer()
	iosbPtr := args.Pointer()
	allocSizePtr := args.Pointer()
	fileAttrs := args.Uint32()
	share := args.Uint32()
	disposition := args.Uint32()
	options := args.Uint32()
	eaPtr := args.Pointer()
	eaLen := args.Uint32()

	attrs, err := t.tr.ObjectAttributesToWide(attrsPtr)
	if err != nil {
		return status(err)
	}
	var allocSize int64
	if allocSizePtr != 0 {
		if allocSize, err = t.readInt64(allocSizePtr); err != nil {
			return status(err)
		}
	}
	var ea []byte
	if eaPtr != 0 && eaLen != 0 {
		if ea, err = usermem.CopyBytesIn(t.tr.Guest, hostarch.Addr(eaPtr), int(eaLen)); err != nil {
			return status(err)
		}
	}
	r := t.newIORequest(iosbPtr)
	h, err := t.kernel().CreateFile(t.ctx, access, attrs, r.iosb.Addr, allocSize, fileAttrs, share, disposition, options, ea)
	s := r.finish(status(err))
	if !s.IsSuccess() {
		return s
	}
	if err := t.storeHandle(handlePtr, h); err != nil {
		return status(err)
	}
	return s
}

// transfer is the common part of NtReadFile and NtWriteFile.
type transfer func(file, event nt.Handle, iosb, buf hostarch.Addr, length uint32, offset *int64) error

func (t *Thread) fileTransfer(args *Args, op transfer) ntstatus.Status {
	file := args.Handle()
	event := args.Handle()
	apcRoutine := args.Pointer()
	_ = args.Pointer() // APC context
	iosbPtr := args.Pointer()
	buf := args.Pointer()
	length := args.Uint32()
	offsetPtr := args.Pointer()
	_ = args.Pointer() // key

	if apcRoutine != 0 {
		t.tc.limited.Warningf("I/O completion routine %#x is not supported", apcRoutine)
		return ntstatus.StatusNotSupported
	}
	offset, err := t.optionalInt64(offsetPtr)
	if err != nil {
		return status(err)
	}
	r := t.newIORequest(iosbPtr)
	return r.finish(status(op(file, event, r.iosb.Addr, hostarch.Addr(buf), length, offset)))
}

// NtReadFile implements NtReadFile. The data buffer is passed through.
func NtReadFile(t *Thread, args *Args) ntstatus.Status {
	return t.fileTransfer(args, func(file, event nt.Handle, iosb, buf hostarch.Addr, length uint32, offset *int64) error {
		return t.kernel().ReadFile(t.ctx, file, event, iosb, buf, length, offset)
	})
}

// NtWriteFile implements NtWriteFile.
func NtWriteFile(t *Thread, args *Args) ntstatus.Status {
	return t.fileTransfer(args, func(file, event nt.Handle, iosb, buf hostarch.Addr, length uint32, offset *int64) error {
		return t.kernel().WriteFile(t.ctx, file, event, iosb, buf, length, offset)
	})
}
