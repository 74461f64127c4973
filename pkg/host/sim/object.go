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
	"time"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/host"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
)

// object is anything a handle can refer to.
type object interface {
	kind() string
	base() *objectBase
}

// waitable is an object that can be waited on.
type waitable interface {
	object
	signaled() bool
	// acquire is called when a wait is satisfied by the object.
	acquire()
}

// objectBase holds the state common to all objects.
type objectBase struct {
	sd descriptor
}

func (b *objectBase) base() *objectBase { return b }

// event is an event object.
type event struct {
	objectBase
	manual bool
	state  bool
}

func (*event) kind() string { return "Event" }

func (e *event) signaled() bool { return e.state }

func (e *event) acquire() {
	if !e.manual {
		e.state = false
	}
}

// CreateEvent implements host.Kernel.CreateEvent.
func (h *Host) CreateEvent(ctx context.Context, access uint32, attrs hostarch.Addr, eventType uint32, initial bool) (nt.Handle, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	if eventType != nt.NotificationEvent && eventType != nt.SynchronizationEvent {
		return 0, fmt.Errorf("event type %d: %w", eventType, ntstatus.StatusInvalidParameter)
	}
	e := &event{objectBase: defaultSecurity(), manual: eventType == nt.NotificationEvent, state: initial}
	if err := objectSecurity(c.caller.Mem, attrs, e); err != nil {
		return 0, err
	}
	return c.process.insert(e), nil
}

// SetEvent implements host.Kernel.SetEvent.
func (h *Host) SetEvent(ctx context.Context, handle nt.Handle) (int32, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	defer h.mu.Unlock()
	e, err := lookup[*event](c, handle)
	if err != nil {
		return 0, err
	}
	var prev int32
	if e.state {
		prev = 1
	}
	e.state = true
	h.broadcast()
	return prev, nil
}

// takeAPCs removes the APCs queued to the caller if they can be delivered.
//
// Preconditions: h.mu is locked.
func (c call) takeAPCs() []host.APC {
	if c.caller.DeliverAPC == nil || len(c.thread.apcs) == 0 {
		return nil
	}
	apcs := c.thread.apcs
	c.thread.apcs = nil
	return apcs
}

func (c call) deliver(ctx context.Context, apcs []host.APC) {
	for _, apc := range apcs {
		c.caller.DeliverAPC(ctx, apc)
	}
}

// wait blocks until objs are signaled (all of them if all is set), the
// timeout expires or, if alertable, an APC is delivered. It returns the
// index of the object that satisfied the wait.
func (h *Host) wait(ctx context.Context, objs []nt.Handle, all, alertable bool, timeout nt.Timeout) (int, error) {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return 0, err
	}
	ws := make([]waitable, len(objs))
	for i, handle := range objs {
		obj, err := c.object(handle)
		if err != nil {
			h.mu.Unlock()
			return 0, err
		}
		w, ok := obj.(waitable)
		if !ok {
			h.mu.Unlock()
			return 0, fmt.Errorf("waiting on a %s: %w", obj.kind(), ntstatus.StatusObjectTypeMismatch)
		}
		ws[i] = w
	}
	h.mu.Unlock()

	var expired <-chan time.Time
	if d := timeout.Duration(h.now()); !timeout.Infinite {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		h.mu.Lock()
		if alertable {
			if apcs := c.takeAPCs(); apcs != nil {
				h.mu.Unlock()
				c.deliver(ctx, apcs)
				return 0, ntstatus.StatusUserAPC
			}
		}
		if i, ok := satisfied(ws, all); ok {
			if all {
				for _, w := range ws {
					w.acquire()
				}
			} else {
				ws[i].acquire()
			}
			h.mu.Unlock()
			return i, nil
		}
		changed := h.changed
		h.mu.Unlock()

		select {
		case <-changed:
		case <-expired:
			return 0, ntstatus.StatusTimeout
		case <-ctx.Done():
			return 0, fmt.Errorf("wait interrupted: %w", ntstatus.StatusCancelled)
		}
	}
}

func satisfied(ws []waitable, all bool) (int, bool) {
	if len(ws) == 0 {
		return 0, false
	}
	for i, w := range ws {
		switch {
		case all && !w.signaled():
			return 0, false
		case !all && w.signaled():
			return i, true
		}
	}
	return 0, all
}

// WaitForSingleObject implements host.Kernel.WaitForSingleObject.
func (h *Host) WaitForSingleObject(ctx context.Context, handle nt.Handle, alertable bool, timeout nt.Timeout) error {
	_, err := h.wait(ctx, []nt.Handle{handle}, false, alertable, timeout)
	return err
}

// WaitForMultipleObjects implements host.Kernel.WaitForMultipleObjects.
func (h *Host) WaitForMultipleObjects(ctx context.Context, handles []nt.Handle, waitAll, alertable bool, timeout nt.Timeout) error {
	if len(handles) == 0 || len(handles) > 64 {
		return fmt.Errorf("waiting on %d objects: %w", len(handles), ntstatus.StatusInvalidParameter)
	}
	i, err := h.wait(ctx, handles, waitAll, alertable, timeout)
	if err != nil {
		return err
	}
	return ntstatus.ToError(ntstatus.Status(i))
}

// DelayExecution implements host.Kernel.DelayExecution.
func (h *Host) DelayExecution(ctx context.Context, alertable bool, timeout nt.Timeout) error {
	if timeout.Infinite && !alertable {
		return fmt.Errorf("infinite non-alertable delay: %w", ntstatus.StatusInvalidParameter)
	}
	_, err := h.wait(ctx, nil, false, alertable, timeout)
	if err == ntstatus.StatusTimeout {
		return nil
	}
	return err
}

// QueueApcThread implements host.Kernel.QueueApcThread.
func (h *Host) QueueApcThread(ctx context.Context, thread nt.Handle, apc host.APC) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()
	t, err := lookup[*Thread](c, thread)
	if err != nil {
		return err
	}
	t.apcs = append(t.apcs, apc)
	h.broadcast()
	return nil
}

// TestAlert implements host.Kernel.TestAlert.
func (h *Host) TestAlert(ctx context.Context) error {
	c, err := h.lockedCall(ctx)
	if err != nil {
		return err
	}
	apcs := c.takeAPCs()
	h.mu.Unlock()
	c.deliver(ctx, apcs)
	return nil
}

// PendingAPCs returns the number of APCs queued to t.
func (t *Thread) PendingAPCs() int {
	t.process.host.mu.Lock()
	defer t.process.host.mu.Unlock()
	return len(t.apcs)
}
