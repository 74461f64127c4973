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
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"gvisor.dev/compat32/pkg/config"
	"gvisor.dev/compat32/pkg/wow"
	"gvisor.dev/compat32/pkg/xproc"
)

// Worklist implements subcommands.Command for the "worklist" command.
type Worklist struct {
	dir     string
	entries int
	wait    time.Duration
}

// Name implements subcommands.Command.Name.
func (*Worklist) Name() string {
	return "worklist"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Worklist) Synopsis() string {
	return "Create, inspect and post to cross-process work lists."
}

// Usage implements subcommands.Command.Usage.
func (*Worklist) Usage() string {
	return `worklist [flags] <verb> <pid> [args...]

Verbs:
  create <pid>                          create and format the work list of pid
  stat <pid>                            print entry counts and the flush bit
  send <pid> <op> <addr> <size> [args]  post an entry, e.g. MemoryWrite 0x10000 0x1000
  flush <pid>                           request a whole-cache flush
  drain <pid>                           take and print every pending entry
  remove <pid>                          delete the section files
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (w *Worklist) SetFlags(f *flag.FlagSet) {
	f.StringVar(&w.dir, "dir", "", "directory holding the sections. Defaults to the configured one.")
	f.IntVar(&w.entries, "entries", 0, "number of entries for create. Defaults to the configured number.")
	f.DurationVar(&w.wait, "wait", time.Second, "how long to wait for a section to appear.")
}

// Execute implements subcommands.Command.Execute.
func (w *Worklist) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := configOf(args)
	verb := f.Arg(0)
	pid := parseUint("pid", f.Arg(1), 64)
	rest := f.Args()[2:]
	path := wow.SectionPath(w.sectionDir(conf), pid)

	switch verb {
	case "create":
		n := w.entries
		if n == 0 {
			n = conf.WorkListEntries
		}
		s, err := xproc.CreateSection(path, n)
		if err != nil {
			Fatalf("%v", err)
		}
		defer s.Close()
		fmt.Printf("%s: %d entries\n", s.Path(), s.Len())
		return subcommands.ExitSuccess
	case "remove":
		s := w.open(ctx, path)
		s.Close()
		if err := s.Remove(); err != nil {
			Fatalf("%v", err)
		}
		return subcommands.ExitSuccess
	}

	s := w.open(ctx, path)
	defer s.Close()
	switch verb {
	case "stat":
		st := s.Stats()
		fmt.Printf("entries=%d free=%d pending=%d flush=%t\n", st.Entries, st.Free, st.Pending, st.Flush)
	case "send":
		if len(rest) < 3 || len(rest) > 3+xproc.MaxArgs {
			f.Usage()
			return subcommands.ExitUsageError
		}
		op, err := xproc.ParseOp(rest[0])
		if err != nil {
			Fatalf("%v", err)
		}
		addr := parseUint("address", rest[1], 64)
		size := parseUint("size", rest[2], 64)
		var words []uint32
		for _, a := range rest[3:] {
			words = append(words, uint32(parseUint("argument", a, 32)))
		}
		if !s.Send(op, addr, size, words...) {
			Fatalf("work list %s is full", path)
		}
	case "flush":
		s.RequestFlush()
	case "drain":
		for e := range s.Drain() {
			fmt.Println(e)
		}
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}

func (w *Worklist) sectionDir(conf *config.Config) string {
	if w.dir != "" {
		return w.dir
	}
	return conf.WorkListDir
}

func (w *Worklist) open(ctx context.Context, path string) *xproc.Section {
	ctx, cancel := context.WithTimeout(ctx, w.wait)
	defer cancel()
	s, err := xproc.OpenSection(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			Fatalf("no work list at %s", path)
		}
		Fatalf("%v", err)
	}
	return s
}
