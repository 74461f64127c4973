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
	"fmt"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/arch"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
	"gvisor.dev/compat32/pkg/usermem"
)

// readContext reads the guest context record at addr. Its flags must name
// the guest architecture.
func (t *Thread) readContext(addr uint32) (arch.Context, error) {
	if addr == 0 {
		return nil, ntstatus.StatusAccessViolation
	}
	c, err := arch.ReadContext(t.tr.Guest, hostarch.Addr(addr), t.tc.Guest)
	if err != nil {
		return nil, err
	}
	if base := t.tc.Guest.ContextBase(); c.Flags()&base != base {
		return nil, fmt.Errorf("context flags %#x: %w", c.Flags(), ntstatus.StatusInvalidParameter)
	}
	return c, nil
}

// NtGetContextThread implements NtGetContextThread. The register groups
// named by the guest record's flags are filled in.
func NtGetContextThread(t *Thread, args *Args) ntstatus.Status {
	thread := args.Handle()
	ctxPtr := args.Pointer()

	c, err := t.readContext(ctxPtr)
	if err != nil {
		return status(err)
	}
	if err := t.tc.Backend.GetContext(thread, c); err != nil {
		return status(err)
	}
	return status(arch.WriteContext(t.tr.Guest, hostarch.Addr(ctxPtr), c))
}

// NtSetContextThread implements NtSetContextThread. Setting the current
// thread's context keeps its return register.
func NtSetContextThread(t *Thread, args *Args) ntstatus.Status {
	thread := args.Handle()
	ctxPtr := args.Pointer()

	c, err := t.readContext(ctxPtr)
	if err != nil {
		return status(err)
	}
	if err := t.tc.Backend.SetContext(thread, c); err != nil {
		return status(err)
	}
	if thread == nt.CurrentThread && t.tc.Guest.Parts(c.Flags())&arch.Integer != 0 {
		return ntstatus.Status(returnValue(c))
	}
	return ntstatus.StatusSuccess
}

// frameFor returns the frame an NtContinue with the context record at
// ctxAddr completes: the APC frame that placed the record, or else the
// innermost frame.
func (t *Thread) frameFor(ctxAddr uint32) *frame {
	for f := t.frames; f != nil; f = f.next {
		if f.kind == apcFrame && f.ctxAddr == ctxAddr {
			return f
		}
	}
	return t.frames
}

// NtContinue implements NtContinue. Inside a callback or APC it completes
// the matching frame, and the host side installs the context once the
// nested simulation has returned. Otherwise the context is installed
// directly, with its return register intact.
func NtContinue(t *Thread, args *Args) ntstatus.Status {
	ctxPtr := args.Pointer()
	alertable := args.Bool()

	c, err := t.readContext(ctxPtr)
	if err != nil {
		return status(err)
	}
	if f := t.frameFor(ctxPtr); f != nil {
		f.resume = c
		f.alertable = alertable
		t.complete(f)
		return ntstatus.Status(returnValue(c))
	}
	if err := t.tc.Backend.SetContext(nt.CurrentThread, c); err != nil {
		return status(err)
	}
	t.state = RunningGuest
	if alertable {
		if err := t.kernel().TestAlert(t.ctx); err != nil {
			return status(err)
		}
	}
	return ntstatus.Status(returnValue(c))
}

// NtCallbackReturn implements NtCallbackReturn. It completes the innermost
// callback frame with a copy of the guest result buffer.
func NtCallbackReturn(t *Thread, args *Args) ntstatus.Status {
	resultPtr := args.Pointer()
	length := args.Uint32()
	s := ntstatus.Status(args.Uint32())

	var f *frame
	for g := t.frames; g != nil; g = g.next {
		if g.kind == callbackFrame {
			f = g
			break
		}
	}
	if f == nil {
		return ntstatus.StatusNoCallbackActive
	}
	if length != 0 {
		result, err := usermem.CopyBytesIn(t.tr.Guest, hostarch.Addr(resultPtr), int(length))
		if err != nil {
			return status(err)
		}
		f.result = result
	}
	f.status = s
	t.complete(f)
	return ntstatus.StatusSuccess
}

// isBreakpoint returns true for the exception codes of a breakpoint
// instruction.
func isBreakpoint(code uint32) bool {
	s := ntstatus.Status(code)
	return s == ntstatus.StatusBreakpoint || s == ntstatus.StatusWX86Breakpoint
}

// raise places rec and c below the guest stack pointer of c and points the
// guest at the exception dispatcher, with the record and context addresses
// as its arguments. It returns the dispatcher context.
func (t *Thread) raise(rec *nt32.ExceptionRecord, c arch.Context) (arch.Context, error) {
	pc := t.tc.Config.Dispatchers.Exception
	if pc == 0 {
		return nil, fmt.Errorf("no guest exception dispatcher: %w", ntstatus.StatusNotImplemented)
	}
	mem := t.tr.Guest
	ctxAddr := (c.SP() - uint32(c.Size())) &^ 15
	if err := arch.WriteContext(mem, hostarch.Addr(ctxAddr), c); err != nil {
		return nil, fmt.Errorf("writing exception context: %w", err)
	}
	recAddr := (ctxAddr - uint32(nt32.SizeOfExceptionRecord)) &^ 15
	if err := t.tr.CopyOut(recAddr, rec); err != nil {
		return nil, fmt.Errorf("writing exception record: %w", err)
	}
	d := cloneContext(c)
	if err := arch.EnterDispatcher(d, mem, recAddr, pc, recAddr, ctxAddr); err != nil {
		return nil, err
	}
	if err := t.tc.Backend.SetContext(nt.CurrentThread, d); err != nil {
		return nil, err
	}
	t.state = DispatchingException
	return d, nil
}

// DispatchException delivers a host exception raised while running guest
// code to the guest exception dispatcher. Guest execution continues in the
// dispatcher once the backend resumes.
func (t *Thread) DispatchException(rec *nt.ExceptionRecord, w arch.Wide) error {
	if r := t.tc.resetter; r != nil {
		if err := r.ResetToConsistentState(rec, w); err != nil {
			return fmt.Errorf("resetting backend state: %w", err)
		}
	}
	c, err := arch.NewContext(t.tc.Guest)
	if err != nil {
		return err
	}
	if err := arch.ToNarrow(w, c); err != nil {
		return err
	}
	n, err := translate.ExceptionRecord32(*rec)
	if err != nil {
		return err
	}
	if isBreakpoint(n.ExceptionCode) && t.tc.Config.SoftwareBreakpoints {
		width := t.tc.Guest.BreakpointWidth()
		c.SetIP(c.IP() - width)
		n.ExceptionAddress -= width
	}
	t.tc.logger.Debugf("Dispatching exception %v at %#x", ntstatus.Status(n.ExceptionCode), n.ExceptionAddress)
	_, err = t.raise(&n, c)
	return err
}

// NtRaiseException implements NtRaiseException. A second-chance exception
// terminates the process with the exception code.
func NtRaiseException(t *Thread, args *Args) ntstatus.Status {
	recPtr := args.Pointer()
	ctxPtr := args.Pointer()
	firstChance := args.Bool()

	var rec nt32.ExceptionRecord
	if err := t.tr.CopyIn(recPtr, &rec); err != nil {
		return status(err)
	}
	c, err := t.readContext(ctxPtr)
	if err != nil {
		return status(err)
	}
	if !firstChance {
		code := ntstatus.Status(rec.ExceptionCode)
		if err := t.kernel().TerminateProcess(t.ctx, nt.CurrentProcess, code); err != nil {
			return status(err)
		}
		return code
	}
	d, err := t.raise(&rec, c)
	if err != nil {
		return status(err)
	}
	return ntstatus.Status(returnValue(d))
}
