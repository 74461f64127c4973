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

package cputest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/arch"
	"gvisor.dev/compat32/pkg/cpu"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

type echoGuest struct {
	calls [][2]uint32
}

func (g *echoGuest) Syscall(_ context.Context, number, args uint32) (ntstatus.Status, bool) {
	g.calls = append(g.calls, [2]uint32{number, args})
	return ntstatus.Status(number), number != 0
}

func TestSimulateRunsProgramsInOrder(t *testing.T) {
	b := New(arch.I386)
	mem := &usermem.BytesIO{Base: 0x1000, Bytes: make([]byte, 0x1000)}
	g := &echoGuest{}
	for _, n := range []uint32{7, 9} {
		b.Push(func(ctx context.Context, b *Backend, g cpu.Guest) error {
			b.Syscall(ctx, g, mem, 0x1800, n, 1, 2)
			return nil
		})
	}
	for i := 0; i < 2; i++ {
		if err := b.Simulate(context.Background(), g); err != nil {
			t.Fatalf("Simulate: %v", err)
		}
	}
	if err := b.Simulate(context.Background(), g); err == nil {
		t.Errorf("Simulate with no program succeeded")
	}
	if diff := cmp.Diff([][2]uint32{{7, 0x1800}, {9, 0x1800}}, g.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if got := b.Context().(*arch.Context32).Eax; got != 9 {
		t.Errorf("Eax = %d, want 9", got)
	}
}

func TestContexts(t *testing.T) {
	b := New(arch.I386)
	b.Context().SetIP(0x401000)

	c := &arch.Context32{ContextFlags: arch.CONTEXT_I386 | 1}
	if err := b.GetContext(nt.CurrentThread, c); err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if c.Eip != 0x401000 || c.ContextFlags != arch.CONTEXT_I386|1 {
		t.Errorf("GetContext = ip %#x flags %#x", c.Eip, c.ContextFlags)
	}

	c.Eip = 0x402000
	if err := b.SetContext(nt.CurrentThread, c); err != nil {
		t.Fatalf("SetContext: %v", err)
	}
	if got := b.Context().IP(); got != 0x402000 {
		t.Errorf("IP = %#x, want 0x402000", got)
	}

	if err := b.GetContext(nt.Handle(0x44), c); !errors.Is(err, ntstatus.StatusInvalidHandle) {
		t.Errorf("GetContext of unknown thread = %v", err)
	}
	if err := b.GetContext(nt.CurrentThread, &arch.ContextARM{}); !errors.Is(err, ntstatus.StatusInvalidParameter) {
		t.Errorf("GetContext with wrong arch = %v", err)
	}
}

func TestEvents(t *testing.T) {
	b := New(arch.ARM)
	b.NotifyMemoryAlloc(0x10000, 0x1000, nt.MEM_COMMIT, nt.PAGE_READWRITE, false, 0)
	b.FlushInstructionCacheHeavy(0, 0)
	want := []string{
		"pre alloc 0x10000 0x1000 type=0x1000 prot=0x4 status=0x0",
		"flush heavy 0x0 0x0",
	}
	if diff := cmp.Diff(want, b.Events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if ev := b.Events(); len(ev) != 0 {
		t.Errorf("Events not cleared: %v", ev)
	}
}
