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

	"github.com/mohae/deepcopy"
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/arch"
	"gvisor.dev/compat32/pkg/host"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/translate"
	"gvisor.dev/compat32/pkg/usermem"
)

// ErrFrameUnwound is returned to the host caller of a callback or APC whose
// guest frame was abandoned by the completion of an enclosing callback.
var ErrFrameUnwound = errors.New("guest frame unwound")

type frameKind int

const (
	callbackFrame frameKind = iota
	apcFrame
)

func (k frameKind) String() string {
	if k == callbackFrame {
		return "callback"
	}
	return "APC"
}

// frame is a pending transfer of control from the host to guest code. The
// host side runs a nested simulation until the guest completes the frame or
// an enclosing frame is completed first.
//
// Frames form a stack through next, innermost first.
type frame struct {
	kind frameKind
	next *frame

	// saved is the guest context when the frame was entered.
	saved arch.Context

	// ctxAddr is the guest address of the context record given to an APC
	// routine.
	ctxAddr uint32

	// resume is the context passed to NtContinue, if that completed the
	// frame.
	resume    arch.Context
	alertable bool

	// result and status are passed to NtCallbackReturn.
	result []byte
	status ntstatus.Status

	done    bool
	unwound bool
}

// stopping returns true if the innermost simulation must return to its
// host caller.
func (t *Thread) stopping() bool {
	f := t.frames
	return f != nil && (f.done || f.unwound)
}

// cloneContext returns a deep copy of c.
func cloneContext(c arch.Context) arch.Context {
	return deepcopy.Copy(c).(arch.Context)
}

// returnValue returns the function return register of c.
func returnValue(c arch.Context) uint32 {
	switch c := c.(type) {
	case *arch.Context32:
		return c.Eax
	case *arch.ContextARM:
		return c.R0
	default:
		panic(fmt.Sprintf("unknown guest context %T", c))
	}
}

// currentContext returns the full guest context of t.
func (t *Thread) currentContext() (arch.Context, error) {
	c, err := arch.NewContext(t.tc.Guest)
	if err != nil {
		return nil, err
	}
	c.SetFlags(t.tc.Guest.Flags(arch.All))
	if err := t.tc.Backend.GetContext(nt.CurrentThread, c); err != nil {
		return nil, fmt.Errorf("getting guest context: %w", err)
	}
	return c, nil
}

func (t *Thread) push(kind frameKind) (*frame, error) {
	c, err := t.currentContext()
	if err != nil {
		return nil, err
	}
	f := &frame{kind: kind, next: t.frames, saved: c}
	t.frames = f
	return f, nil
}

// complete marks f done and the frames inside it unwound.
func (t *Thread) complete(f *frame) {
	for g := t.frames; g != f; g = g.next {
		g.unwound = true
	}
	f.done = true
}

// enter points the guest at a dispatcher and simulates until the innermost
// frame is completed or unwound. Arena allocations made before entry
// survive the nested system calls.
func (t *Thread) enter(ctx context.Context, f *frame, c arch.Context, state State) error {
	if err := t.tc.Backend.SetContext(nt.CurrentThread, c); err != nil {
		return fmt.Errorf("entering guest %v dispatcher: %w", f.kind, err)
	}
	saved := t.arena.Detach()
	prev := t.state
	t.state = state
	err := t.tc.Backend.Simulate(ctx, t)
	t.state = prev
	t.arena.Restore(saved)
	t.frames = f.next
	if err != nil && !f.done && !f.unwound {
		return fmt.Errorf("guest %v: %w", f.kind, err)
	}
	return nil
}

// Callback calls guest callback id with the argument block args and
// returns the result passed to NtCallbackReturn. If an enclosing callback
// completes first, it returns ErrFrameUnwound.
func (t *Thread) Callback(ctx context.Context, id uint32, args []byte) ([]byte, error) {
	pc := t.tc.Config.Dispatchers.Callback
	if pc == 0 {
		return nil, fmt.Errorf("no guest callback dispatcher: %w", ntstatus.StatusNotImplemented)
	}
	f, err := t.push(callbackFrame)
	if err != nil {
		return nil, err
	}
	c := cloneContext(f.saved)
	sp := (c.SP() - uint32(len(args))) &^ 15
	if len(args) != 0 {
		if _, err := t.tr.Guest.CopyOut(hostarch.Addr(sp), args); err != nil {
			t.frames = f.next
			return nil, fmt.Errorf("copying callback arguments: %w", err)
		}
	}
	if err := arch.EnterDispatcher(c, t.tr.Guest, sp, pc, id, sp, uint32(len(args))); err != nil {
		t.frames = f.next
		return nil, err
	}
	if err := t.enter(ctx, f, c, DispatchingCallback); err != nil {
		return nil, err
	}
	if f.unwound {
		return nil, ErrFrameUnwound
	}
	if err := t.tc.Backend.SetContext(nt.CurrentThread, f.saved); err != nil {
		return nil, err
	}
	if !f.done {
		return nil, fmt.Errorf("guest callback %d stopped without returning: %w", id, ntstatus.StatusInternalError)
	}
	return f.result, ntstatus.ToError(f.status)
}

// DispatchAPC runs a user APC in guest code. The guest's interrupted
// context is placed on its stack, with STATUS_USER_APC as the return
// value, for the guest dispatcher to pass to NtContinue. Below it lies the
// routine and its three arguments, whose address is the dispatcher's
// first argument; the context address is the second.
func (t *Thread) DispatchAPC(ctx context.Context, apc host.APC) {
	if err := t.dispatchAPC(ctx, apc); err != nil && !errors.Is(err, ErrFrameUnwound) {
		t.tc.logger.Warningf("Delivering APC %#x to thread %#x: %v", apc.Routine, t.caller.Thread, err)
	}
}

func (t *Thread) dispatchAPC(ctx context.Context, apc host.APC) error {
	pc := t.tc.Config.Dispatchers.APC
	if pc == 0 {
		return fmt.Errorf("no guest APC dispatcher: %w", ntstatus.StatusNotImplemented)
	}
	routine, err := translate.NarrowPtr(apc.Routine)
	if err != nil {
		return err
	}
	f, err := t.push(apcFrame)
	if err != nil {
		return err
	}
	mem := t.tr.Guest

	interrupted := cloneContext(f.saved)
	interrupted.SetReturn(uint32(ntstatus.StatusUserAPC))
	f.ctxAddr = (interrupted.SP() - uint32(interrupted.Size())) &^ 15
	if err := arch.WriteContext(mem, hostarch.Addr(f.ctxAddr), interrupted); err != nil {
		t.frames = f.next
		return fmt.Errorf("writing APC context: %w", err)
	}
	params := f.ctxAddr - 16
	for i, v := range []uint32{routine, uint32(apc.Args[0]), uint32(apc.Args[1]), uint32(apc.Args[2])} {
		if err := usermem.CopyUint32Out(mem, hostarch.Addr(params)+hostarch.Addr(4*i), v); err != nil {
			t.frames = f.next
			return fmt.Errorf("writing APC parameters: %w", err)
		}
	}
	c := cloneContext(f.saved)
	if err := arch.EnterDispatcher(c, mem, params, pc, params, f.ctxAddr); err != nil {
		t.frames = f.next
		return err
	}
	if err := t.enter(ctx, f, c, DispatchingAPC); err != nil {
		return err
	}
	switch {
	case f.unwound:
		return ErrFrameUnwound
	case f.done:
		if err := t.tc.Backend.SetContext(nt.CurrentThread, f.resume); err != nil {
			return err
		}
		if f.alertable {
			return t.kernel().TestAlert(ctx)
		}
		return nil
	default:
		t.tc.logger.Warningf("APC %#x returned without NtContinue, resuming the interrupted context", routine)
		return t.tc.Backend.SetContext(nt.CurrentThread, f.saved)
	}
}
