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

//go:build !(linux && (amd64 || arm64))

package dl

import (
	"context"
	"fmt"
	"runtime"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/arch"
	"gvisor.dev/compat32/pkg/cpu"
)

// Backend is a CPU backend loaded from a shared object.
type Backend struct{}

// Load returns an error; shared-object backends need callback support.
func Load(path string) (*Backend, error) {
	return nil, fmt.Errorf("loading %s: CPU backends are not supported on %s/%s", path, runtime.GOOS, runtime.GOARCH)
}

// Has returns false.
func (*Backend) Has(string) bool { return false }

// Simulate implements cpu.Backend.Simulate.
func (*Backend) Simulate(context.Context, cpu.Guest) error { return cpu.ErrStopped }

// GetContext implements cpu.Backend.GetContext.
func (*Backend) GetContext(nt.Handle, arch.Context) error { return cpu.ErrStopped }

// SetContext implements cpu.Backend.SetContext.
func (*Backend) SetContext(nt.Handle, arch.Context) error { return cpu.ErrStopped }
