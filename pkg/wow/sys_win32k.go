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
	"gvisor.dev/compat32/pkg/host"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
)

// win32k returns the windowing services, or nil if there are none.
func (t *Thread) win32k() host.Win32k {
	return t.tc.Win32k
}

// result returns a pointer-sized windowing result in the guest return
// register.
func result(r uint64, err error) ntstatus.Status {
	if err != nil {
		return status(err)
	}
	return ntstatus.Status(uint32(r))
}

// NtUserCallNoParam implements NtUserCallNoParam.
func NtUserCallNoParam(t *Thread, args *Args) ntstatus.Status {
	w := t.win32k()
	if w == nil {
		return ntstatus.StatusNotImplemented
	}
	return result(w.CallNoParam(t.ctx, args.Uint32()))
}

// NtUserCallOneParam implements NtUserCallOneParam.
func NtUserCallOneParam(t *Thread, args *Args) ntstatus.Status {
	w := t.win32k()
	if w == nil {
		return ntstatus.StatusNotImplemented
	}
	arg := args.ULongPtr()
	code := args.Uint32()
	return result(w.CallOneParam(t.ctx, arg, code))
}

// NtUserCallTwoParam implements NtUserCallTwoParam.
func NtUserCallTwoParam(t *Thread, args *Args) ntstatus.Status {
	w := t.win32k()
	if w == nil {
		return ntstatus.StatusNotImplemented
	}
	arg1 := args.ULongPtr()
	arg2 := args.ULongPtr()
	code := args.Uint32()
	return result(w.CallTwoParam(t.ctx, arg1, arg2, code))
}

// NtUserGetKeyState implements NtUserGetKeyState. The SHORT result is
// sign-extended.
func NtUserGetKeyState(t *Thread, args *Args) ntstatus.Status {
	w := t.win32k()
	if w == nil {
		return ntstatus.StatusNotImplemented
	}
	state, err := w.GetKeyState(t.ctx, args.Int32())
	if err != nil {
		return status(err)
	}
	return ntstatus.Status(uint32(int32(state)))
}

// NtUserGetThreadDesktop implements NtUserGetThreadDesktop.
func NtUserGetThreadDesktop(t *Thread, args *Args) ntstatus.Status {
	w := t.win32k()
	if w == nil {
		return ntstatus.StatusNotImplemented
	}
	h, err := w.GetThreadDesktop(t.ctx, args.Uint32())
	if err != nil {
		return status(err)
	}
	n, err := translate.NarrowHandle(h)
	if err != nil {
		return status(err)
	}
	return ntstatus.Status(n)
}

// NtUserMessageCall implements NtUserMessageCall.
func NtUserMessageCall(t *Thread, args *Args) ntstatus.Status {
	w := t.win32k()
	if w == nil {
		return ntstatus.StatusNotImplemented
	}
	hwnd := args.Handle()
	msg := args.Uint32()
	wparam := args.ULongPtr()
	lparam := args.LongPtr()
	resultInfo := translate.Ptr(args.Pointer())
	callType := args.Uint32()
	ansi := args.Bool()

	r, err := w.MessageCall(t.ctx, hwnd, msg, wparam, lparam, resultInfo, callType, ansi)
	if err != nil {
		return status(err)
	}
	n, err := translate.NarrowLongPtr(r)
	if err != nil {
		return status(err)
	}
	return ntstatus.Status(n)
}
