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
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/arch"
	"gvisor.dev/compat32/pkg/cpu"
	"gvisor.dev/compat32/pkg/cpu/cputest"
	"gvisor.dev/compat32/pkg/host"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

const (
	resultAddr  = memBase + 0x3000
	timeoutAddr = memBase + 0x3100
	apcRoutine  = 0x406000
)

// words returns the n guest words at addr.
func (f *fixture) words(addr uint32, n int) ([]uint32, error) {
	words := make([]uint32, n)
	for i := range words {
		v, err := usermem.CopyUint32In(f.mem, hostarch.Addr(addr)+hostarch.Addr(4*i))
		if err != nil {
			return nil, err
		}
		words[i] = v
	}
	return words, nil
}

// stackWords returns the n words at the guest stack pointer of c.
func (f *fixture) stackWords(c arch.Context, n int) ([]uint32, error) {
	return f.words(c.SP(), n)
}

// callbackReturn is a guest program that checks it was entered as callback
// id with args and returns result with status s.
func (f *fixture) callbackReturn(t *testing.T, id uint32, args, result []byte, s ntstatus.Status) cputest.Program {
	n := f.number(t, "NtCallbackReturn")
	return func(ctx context.Context, b *cputest.Backend, g cpu.Guest) error {
		c := b.Context()
		if c.IP() != callbackDispatcher {
			return fmt.Errorf("callback entered at %#x, want %#x", c.IP(), callbackDispatcher)
		}
		words, err := f.stackWords(c, 3)
		if err != nil {
			return err
		}
		if words[0] != id || words[2] != uint32(len(args)) {
			return fmt.Errorf("callback arguments %#x, want id %d and %d bytes", words, id, len(args))
		}
		got, err := usermem.CopyBytesIn(f.mem, hostarch.Addr(words[1]), len(args))
		if err != nil {
			return err
		}
		if string(got) != string(args) {
			return fmt.Errorf("callback argument block %q, want %q", got, args)
		}
		if _, err := f.mem.CopyOut(resultAddr, result); err != nil {
			return err
		}
		if st, resume := b.Syscall(ctx, g, f.mem, argsAddr, n, resultAddr, uint32(len(result)), uint32(s)); st != ntstatus.StatusSuccess || resume {
			return fmt.Errorf("NtCallbackReturn = (%v, %t), want (success, false)", st, resume)
		}
		return nil
	}
}

func TestCallback(t *testing.T) {
	for _, tc := range []struct {
		name    string
		status  ntstatus.Status
		wantErr error
	}{
		{"success", ntstatus.StatusSuccess, nil},
		{"failure", ntstatus.StatusAccessDenied, ntstatus.StatusAccessDenied},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, arch.I386)
			f.backend.Push(f.callbackReturn(t, 7, []byte("args"), []byte("done"), tc.status))

			got, err := f.thread.Callback(f.thread.Context(), 7, []byte("args"))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Callback error = %v, want %v", err, tc.wantErr)
			}
			if string(got) != "done" {
				t.Errorf("Callback result = %q, want %q", got, "done")
			}
			c := f.backend.Context()
			if c.IP() != guestIP || c.SP() != stackTop {
				t.Errorf("context after callback at ip %#x sp %#x, want %#x %#x", c.IP(), c.SP(), guestIP, stackTop)
			}
			if f.thread.frames != nil {
				t.Errorf("frames left after callback")
			}
			if got := f.thread.State(); got != RunningGuest {
				t.Errorf("state = %v, want %v", got, RunningGuest)
			}
		})
	}
}

func TestCallbackNoDispatcher(t *testing.T) {
	f := newFixture(t, arch.I386)
	f.tc.Config.Dispatchers.Callback = 0
	if _, err := f.thread.Callback(f.thread.Context(), 1, nil); !errors.Is(err, ntstatus.StatusNotImplemented) {
		t.Errorf("Callback error = %v, want %v", err, ntstatus.StatusNotImplemented)
	}
}

func TestCallbackWithoutReturn(t *testing.T) {
	f := newFixture(t, arch.I386)
	f.backend.Push(func(context.Context, *cputest.Backend, cpu.Guest) error {
		return nil
	})
	if _, err := f.thread.Callback(f.thread.Context(), 1, nil); !errors.Is(err, ntstatus.StatusInternalError) {
		t.Errorf("Callback error = %v, want %v", err, ntstatus.StatusInternalError)
	}
	if f.thread.frames != nil {
		t.Errorf("frames left after callback")
	}
}

func TestCallbackReturnWithoutCallback(t *testing.T) {
	f := newFixture(t, arch.I386)
	if s := f.syscall(t, "NtCallbackReturn", 0, 0, 0); s != ntstatus.StatusNoCallbackActive {
		t.Errorf("NtCallbackReturn = %v, want %v", s, ntstatus.StatusNoCallbackActive)
	}
}

// writeContext stores a guest i386 context record at ctxAddr.
func (f *fixture) writeContext(c *arch.Context32) error {
	return arch.WriteContext(f.mem, ctxAddr, c)
}

func TestContinueCompletesCallback(t *testing.T) {
	f := newFixture(t, arch.I386)
	n := f.number(t, "NtContinue")
	f.backend.Push(func(ctx context.Context, b *cputest.Backend, g cpu.Guest) error {
		rec := &arch.Context32{
			ContextFlags: arch.I386.Flags(arch.Control | arch.Integer),
			Eip:          0x405000,
			Esp:          0x50000,
			Eax:          0x1234,
		}
		if err := f.writeContext(rec); err != nil {
			return err
		}
		if s, resume := b.Syscall(ctx, g, f.mem, argsAddr, n, ctxAddr, 0); s != 0x1234 || resume {
			return fmt.Errorf("NtContinue = (%v, %t), want (0x1234, false)", s, resume)
		}
		return nil
	})

	got, err := f.thread.Callback(f.thread.Context(), 3, nil)
	if err != nil || got != nil {
		t.Fatalf("Callback = (%q, %v), want (nil, nil)", got, err)
	}
	if c := f.backend.Context(); c.IP() != guestIP || c.SP() != stackTop {
		t.Errorf("context after callback at ip %#x sp %#x, want %#x %#x", c.IP(), c.SP(), guestIP, stackTop)
	}
	if f.backend.Pending() != 0 {
		t.Errorf("%d guest programs not run", f.backend.Pending())
	}
}

func TestCallbackReturnUnwindsAPC(t *testing.T) {
	f := newFixture(t, arch.I386)
	n := f.number(t, "NtCallbackReturn")
	var apcErr error
	f.backend.Push(func(ctx context.Context, b *cputest.Backend, g cpu.Guest) error {
		apcErr = f.thread.dispatchAPC(ctx, host.APC{Routine: apcRoutine})
		return nil
	})
	f.backend.Push(func(ctx context.Context, b *cputest.Backend, g cpu.Guest) error {
		if got := len(frameKinds(f.thread)); got != 2 {
			return fmt.Errorf("%d frames inside APC, want 2", got)
		}
		if _, err := f.mem.CopyOut(resultAddr, []byte("ok")); err != nil {
			return err
		}
		if s, resume := b.Syscall(ctx, g, f.mem, argsAddr, n, resultAddr, 2, 0); s != ntstatus.StatusSuccess || resume {
			return fmt.Errorf("NtCallbackReturn = (%v, %t), want (success, false)", s, resume)
		}
		return nil
	})

	got, err := f.thread.Callback(f.thread.Context(), 9, nil)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}
	if string(got) != "ok" {
		t.Errorf("Callback result = %q, want %q", got, "ok")
	}
	if !errors.Is(apcErr, ErrFrameUnwound) {
		t.Errorf("APC error = %v, want %v", apcErr, ErrFrameUnwound)
	}
	if f.thread.frames != nil {
		t.Errorf("frames left: %v", frameKinds(f.thread))
	}
	if c := f.backend.Context(); c.IP() != guestIP {
		t.Errorf("context after callback at ip %#x, want %#x", c.IP(), guestIP)
	}
}

func frameKinds(t *Thread) []frameKind {
	var kinds []frameKind
	for f := t.frames; f != nil; f = f.next {
		kinds = append(kinds, f.kind)
	}
	return kinds
}

// apcProgram is a guest APC dispatcher that checks its parameters, sets
// ebx in the interrupted context and continues it.
func (f *fixture) apcProgram(t *testing.T, args [3]uint32) cputest.Program {
	n := f.number(t, "NtContinue")
	return func(ctx context.Context, b *cputest.Backend, g cpu.Guest) error {
		c := b.Context()
		if c.IP() != apcDispatcher {
			return fmt.Errorf("APC entered at %#x, want %#x", c.IP(), apcDispatcher)
		}
		words, err := f.stackWords(c, 2)
		if err != nil {
			return err
		}
		params, rcAddr := words[0], words[1]
		got, err := f.words(params, 4)
		if err != nil {
			return err
		}
		if want := []uint32{apcRoutine, args[0], args[1], args[2]}; !cmp.Equal(got, want) {
			return fmt.Errorf("APC parameters %#x, want %#x", got, want)
		}
		rc, err := arch.ReadContext(f.mem, hostarch.Addr(rcAddr), arch.I386)
		if err != nil {
			return err
		}
		rec := rc.(*arch.Context32)
		if ntstatus.Status(rec.Eax) != ntstatus.StatusUserAPC || rec.Eip != guestIP {
			return fmt.Errorf("APC context eax %#x eip %#x, want %#x %#x", rec.Eax, rec.Eip, uint32(ntstatus.StatusUserAPC), guestIP)
		}
		rec.Ebx = 0x5678
		if err := arch.WriteContext(f.mem, hostarch.Addr(rcAddr), rec); err != nil {
			return err
		}
		if s, resume := b.Syscall(ctx, g, f.mem, argsAddr, n, rcAddr, 0); s != ntstatus.StatusUserAPC || resume {
			return fmt.Errorf("NtContinue = (%v, %t), want (%v, false)", s, resume, ntstatus.StatusUserAPC)
		}
		return nil
	}
}

func TestDispatchAPC(t *testing.T) {
	f := newFixture(t, arch.I386)
	f.backend.Push(f.apcProgram(t, [3]uint32{1, 2, 3}))
	if err := f.thread.dispatchAPC(f.thread.Context(), host.APC{Routine: apcRoutine, Args: [3]uint64{1, 2, 3}}); err != nil {
		t.Fatalf("dispatchAPC: %v", err)
	}
	c := f.backend.Context().(*arch.Context32)
	if c.Eip != guestIP || c.Esp != stackTop || c.Ebx != 0x5678 {
		t.Errorf("context after APC eip %#x esp %#x ebx %#x, want %#x %#x 0x5678", c.Eip, c.Esp, c.Ebx, guestIP, stackTop)
	}
}

func TestDispatchAPCRoutineTooHigh(t *testing.T) {
	f := newFixture(t, arch.I386)
	if err := f.thread.dispatchAPC(f.thread.Context(), host.APC{Routine: 1 << 32}); err == nil {
		t.Errorf("dispatchAPC with a 64-bit routine succeeded")
	}
	if f.thread.frames != nil {
		t.Errorf("frames left after failed APC")
	}
}

func TestAlertableDelayDeliversAPC(t *testing.T) {
	f := newFixture(t, arch.I386)
	queue, delay := f.number(t, "NtQueueApcThread"), f.number(t, "NtDelayExecution")
	f.write64(t, timeoutAddr, uint64(nt.RelativeTimeout(time.Second).Value))
	f.backend.Push(func(ctx context.Context, b *cputest.Backend, g cpu.Guest) error {
		if s, _ := b.Syscall(ctx, g, f.mem, argsAddr, queue, 0xfffffffe, apcRoutine, 4, 5, 6); s != ntstatus.StatusSuccess {
			return fmt.Errorf("NtQueueApcThread = %v", s)
		}
		if s, resume := b.Syscall(ctx, g, f.mem, argsAddr, delay, 1, timeoutAddr); s != ntstatus.StatusUserAPC || !resume {
			return fmt.Errorf("NtDelayExecution = (%v, %t), want (%v, true)", s, resume, ntstatus.StatusUserAPC)
		}
		return nil
	})
	f.backend.Push(f.apcProgram(t, [3]uint32{4, 5, 6}))
	if err := f.thread.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	c := f.backend.Context().(*arch.Context32)
	if c.Eip != guestIP || c.Ebx != 0x5678 || ntstatus.Status(c.Eax) != ntstatus.StatusUserAPC {
		t.Errorf("context after APC eip %#x ebx %#x eax %#x, want %#x 0x5678 %#x", c.Eip, c.Ebx, c.Eax, guestIP, uint32(ntstatus.StatusUserAPC))
	}
	if f.backend.Pending() != 0 {
		t.Errorf("%d guest programs not run", f.backend.Pending())
	}
}

func TestDispatchException(t *testing.T) {
	for _, tc := range []struct {
		name  string
		guest arch.Arch
		wide  arch.Wide
		sbp   bool
		want  uint32
	}{
		{
			name:  "i386",
			guest: arch.I386,
			wide:  &arch.ContextAMD64{ContextFlags: arch.AMD64.Flags(arch.Control | arch.Integer), Rip: 0x401235, Rsp: stackTop, Rax: 7},
			want:  0x401235,
		},
		{
			name:  "i386 software breakpoints",
			guest: arch.I386,
			wide:  &arch.ContextAMD64{ContextFlags: arch.AMD64.Flags(arch.Control | arch.Integer), Rip: 0x401235, Rsp: stackTop, Rax: 7},
			sbp:   true,
			want:  0x401234,
		},
		{
			name:  "arm software breakpoints",
			guest: arch.ARM,
			wide:  &arch.ContextARM64{ContextFlags: arch.ARM64.Flags(arch.Control | arch.Integer), Pc: 0x401236, Sp: stackTop, X: [31]uint64{7}},
			sbp:   true,
			want:  0x401234,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.guest)
			f.tc.Config.SoftwareBreakpoints = tc.sbp
			rec := &nt.ExceptionRecord{
				ExceptionCode:    uint32(ntstatus.StatusBreakpoint),
				ExceptionAddress: tc.wide.IP(),
			}
			if err := f.thread.DispatchException(rec, tc.wide); err != nil {
				t.Fatalf("DispatchException: %v", err)
			}
			wantEvents := []string{fmt.Sprintf("reset code=%#x ip=%#x", uint32(ntstatus.StatusBreakpoint), tc.wide.IP())}
			if diff := cmp.Diff(wantEvents, f.backend.Events()); diff != "" {
				t.Errorf("backend events mismatch (-want +got):\n%s", diff)
			}
			if got := f.thread.State(); got != DispatchingException {
				t.Errorf("state = %v, want %v", got, DispatchingException)
			}
			if got := f.backend.Context().IP(); got != exceptionDispatcher {
				t.Errorf("ip = %#x, want %#x", got, exceptionDispatcher)
			}

			cAddr := (uint32(stackTop) - uint32(arch.SizeOf(tc.guest))) &^ 15
			rAddr := (cAddr - uint32(nt32.SizeOfExceptionRecord)) &^ 15
			var nrec nt32.ExceptionRecord
			if _, err := usermem.CopyObjectIn(f.mem, hostarch.Addr(rAddr), &nrec); err != nil {
				t.Fatalf("CopyObjectIn: %v", err)
			}
			if nrec.ExceptionAddress != tc.want || nrec.ExceptionCode != uint32(ntstatus.StatusBreakpoint) {
				t.Errorf("guest record code %#x address %#x, want %#x %#x", nrec.ExceptionCode, nrec.ExceptionAddress, uint32(ntstatus.StatusBreakpoint), tc.want)
			}
			c, err := arch.ReadContext(f.mem, hostarch.Addr(cAddr), tc.guest)
			if err != nil {
				t.Fatalf("ReadContext: %v", err)
			}
			if c.IP() != tc.want || c.SP() != stackTop || returnValue(c) != 7 {
				t.Errorf("guest context ip %#x sp %#x ret %d, want %#x %#x 7", c.IP(), c.SP(), returnValue(c), tc.want, stackTop)
			}
		})
	}
}

func TestRaiseException(t *testing.T) {
	f := newFixture(t, arch.I386)
	rec := nt32.ExceptionRecord{ExceptionCode: uint32(ntstatus.StatusAccessViolation), ExceptionAddress: guestIP}
	if _, err := usermem.CopyObjectOut(f.mem, recAddr, &rec); err != nil {
		t.Fatalf("CopyObjectOut: %v", err)
	}
	c := &arch.Context32{
		ContextFlags: arch.I386.Flags(arch.Control | arch.Integer),
		Eip:          guestIP,
		Esp:          stackTop - 0x100,
		Eax:          0x42,
	}
	if err := f.writeContext(c); err != nil {
		t.Fatalf("writeContext: %v", err)
	}

	if s := f.syscall(t, "NtRaiseException", recAddr, ctxAddr, 1); s != 0x42 {
		t.Errorf("first chance NtRaiseException = %v, want 0x42", s)
	}
	if got := f.backend.Context().IP(); got != exceptionDispatcher {
		t.Errorf("ip = %#x, want %#x", got, exceptionDispatcher)
	}
	if got := f.thread.State(); got != DispatchingException {
		t.Errorf("state = %v, want %v", got, DispatchingException)
	}
	if _, exited := f.proc.Exited(); exited {
		t.Errorf("process exited on a first chance exception")
	}

	if s := f.syscall(t, "NtRaiseException", recAddr, ctxAddr, 0); s != ntstatus.StatusAccessViolation {
		t.Errorf("second chance NtRaiseException = %v, want %v", s, ntstatus.StatusAccessViolation)
	}
	if s, exited := f.proc.Exited(); !exited || s != ntstatus.StatusAccessViolation {
		t.Errorf("Exited = (%v, %t), want (%v, true)", s, exited, ntstatus.StatusAccessViolation)
	}
}

func TestContinueOutsideFrame(t *testing.T) {
	f := newFixture(t, arch.I386)
	c := &arch.Context32{
		ContextFlags: arch.I386.Flags(arch.Control | arch.Integer),
		Eip:          0x405000,
		Esp:          0x50000,
		Eax:          0x99,
	}
	if err := f.writeContext(c); err != nil {
		t.Fatalf("writeContext: %v", err)
	}
	if s := f.syscall(t, "NtContinue", ctxAddr, 0); s != 0x99 {
		t.Errorf("NtContinue = %v, want 0x99", s)
	}
	got := f.backend.Context().(*arch.Context32)
	if got.Eip != 0x405000 || got.Esp != 0x50000 || got.Eax != 0x99 {
		t.Errorf("context eip %#x esp %#x eax %#x, want 0x405000 0x50000 0x99", got.Eip, got.Esp, got.Eax)
	}
}
