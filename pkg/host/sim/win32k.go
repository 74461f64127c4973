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
	"sync"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/host"
	"gvisor.dev/compat32/pkg/ntstatus"
)

// Message is a window message delivered through MessageCall.
type Message struct {
	HWND       nt.Handle
	Msg        uint32
	WParam     uint64
	LParam     int64
	ResultInfo uint64
	CallType   uint32
	ANSI       bool
}

// Win32k is a simulated windowing subsystem. Routine calls echo their
// arguments so that callers can check argument widening.
type Win32k struct {
	host *Host

	mu       sync.Mutex
	keys     map[int32]int16
	desktop  nt.Handle
	messages []Message
}

var _ host.Win32k = (*Win32k)(nil)

// NewWin32k returns a windowing subsystem attached to h. Thread ids
// passed to GetThreadDesktop are resolved against h.
func NewWin32k(h *Host, desktop nt.Handle) *Win32k {
	return &Win32k{host: h, keys: make(map[int32]int16), desktop: desktop}
}

// SetKeyState sets the state reported for the virtual key vk.
func (w *Win32k) SetKeyState(vk int32, state int16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys[vk] = state
}

// Messages returns the messages delivered so far.
func (w *Win32k) Messages() []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Message(nil), w.messages...)
}

// CallNoParam implements host.Win32k.CallNoParam.
func (w *Win32k) CallNoParam(ctx context.Context, code uint32) (uint64, error) {
	return uint64(code), nil
}

// CallOneParam implements host.Win32k.CallOneParam.
func (w *Win32k) CallOneParam(ctx context.Context, arg uint64, code uint32) (uint64, error) {
	return arg, nil
}

// CallTwoParam implements host.Win32k.CallTwoParam.
func (w *Win32k) CallTwoParam(ctx context.Context, arg1, arg2 uint64, code uint32) (uint64, error) {
	return arg1 + arg2, nil
}

// GetKeyState implements host.Win32k.GetKeyState.
func (w *Win32k) GetKeyState(ctx context.Context, vk int32) (int16, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keys[vk], nil
}

// GetThreadDesktop implements host.Win32k.GetThreadDesktop.
func (w *Win32k) GetThreadDesktop(ctx context.Context, thread uint32) (nt.Handle, error) {
	w.host.mu.Lock()
	defer w.host.mu.Unlock()
	for _, p := range w.host.processes {
		if _, ok := p.threads[uint64(thread)]; ok {
			return w.desktop, nil
		}
	}
	return 0, fmt.Errorf("thread %#x: %w", thread, ntstatus.StatusInvalidCid)
}

// MessageCall implements host.Win32k.MessageCall. The result is lparam.
func (w *Win32k) MessageCall(ctx context.Context, hwnd nt.Handle, msg uint32, wparam uint64, lparam int64, resultInfo uint64, callType uint32, ansi bool) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, Message{
		HWND:       hwnd,
		Msg:        msg,
		WParam:     wparam,
		LParam:     lparam,
		ResultInfo: resultInfo,
		CallType:   callType,
		ANSI:       ansi,
	})
	return lparam, nil
}
