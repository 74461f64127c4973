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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/compat32/pkg/cpu/dl"
)

// Backend implements subcommands.Command for the "backend" command.
type Backend struct{}

// Name implements subcommands.Command.Name.
func (*Backend) Name() string {
	return "backend"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Backend) Synopsis() string {
	return "Load a CPU backend and list the entry points it exports."
}

// Usage implements subcommands.Command.Usage.
func (*Backend) Usage() string {
	return `backend [path] - Load the CPU backend shared object at path, or the
configured one, and list the entry points it exports.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Backend) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Backend) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	path := configOf(args).CPUBackend
	switch f.NArg() {
	case 0:
	case 1:
		path = f.Arg(0)
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}
	if path == "" {
		Fatalf("no CPU backend configured")
	}
	b, err := dl.Load(path)
	if err != nil {
		Fatalf("%v", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SYMBOL\tREQUIRED\tPRESENT\n")
	for _, name := range dl.Required {
		fmt.Fprintf(tw, "%s\t%t\t%t\n", name, true, b.Has(name))
	}
	for _, name := range dl.Optional {
		fmt.Fprintf(tw, "%s\t%t\t%t\n", name, false, b.Has(name))
	}
	if err := tw.Flush(); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}
