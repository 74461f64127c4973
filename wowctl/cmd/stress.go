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
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/compat32/pkg/log"
	"gvisor.dev/compat32/pkg/xproc"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	senders int
	count   int
	entries int
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "Hammer a work list section with concurrent senders and check delivery."
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - Send entries to a scratch work list section from several
mappings at once while another mapping drains it, then check that every
entry was delivered once, in order per sender, or reported as dropped.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.senders, "senders", 8, "number of concurrent senders.")
	f.IntVar(&s.count, "count", 10000, "entries sent by each sender.")
	f.IntVar(&s.entries, "entries", 0, "work list size. Defaults to the configured size.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := configOf(args)
	if s.senders <= 0 || s.count <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	n := s.entries
	if n == 0 {
		n = conf.WorkListEntries
	}
	dir, err := os.MkdirTemp(conf.WorkListDir, "wowctl-stress")
	if err != nil {
		Fatalf("%v", err)
	}
	defer os.RemoveAll(dir)

	start := time.Now()
	res, err := stress(ctx, filepath.Join(dir, "worklist"), n, s.senders, s.count)
	if err != nil {
		Fatalf("%v", err)
	}
	fmt.Printf("sent=%d delivered=%d dropped=%d batches=%d in %v\n", res.sent, res.delivered, res.dropped, res.batches, time.Since(start))
	return subcommands.ExitSuccess
}

type stressResult struct {
	sent      int64
	delivered int64
	dropped   int64
	batches   int64
}

// stress runs senders goroutines, each with its own mapping of the section
// at path, sending count entries tagged with the sender in Args[0] and a
// sequence number in Addr. The owner mapping drains concurrently.
func stress(ctx context.Context, path string, n, senders, count int) (stressResult, error) {
	owner, err := xproc.CreateSection(path, n)
	if err != nil {
		return stressResult{}, err
	}
	defer owner.Close()

	var res stressResult
	// next holds the sequence number each sender's next delivered entry
	// must have at least.
	next := make([]uint64, senders)
	drain := func() error {
		got := false
		for e := range owner.Drain() {
			got = true
			if e.Op != xproc.OpMemoryWrite || int(e.Args[0]) >= senders {
				return fmt.Errorf("unexpected entry %v", e)
			}
			id := e.Args[0]
			if e.Addr < next[id] {
				return fmt.Errorf("sender %d: entry %d delivered after %d", id, e.Addr, next[id]-1)
			}
			next[id] = e.Addr + 1
			res.delivered++
		}
		if got {
			res.batches++
		}
		return nil
	}

	var done atomic.Bool
	var drainer errgroup.Group
	drainer.Go(func() error {
		for !done.Load() {
			if err := drain(); err != nil {
				return err
			}
		}
		return drain()
	})

	g, gctx := errgroup.WithContext(ctx)
	var sent, dropped atomic.Int64
	for i := 0; i < senders; i++ {
		g.Go(func() error {
			s, err := xproc.OpenSection(gctx, path)
			if err != nil {
				return err
			}
			defer s.Close()
			for seq := 0; seq < count; seq++ {
				if seq%1024 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				if s.Send(xproc.OpMemoryWrite, uint64(seq), 1, uint32(i)) {
					sent.Add(1)
				} else {
					dropped.Add(1)
				}
			}
			log.Debugf("Stress sender %d finished", i)
			return nil
		})
	}
	serr := g.Wait()
	done.Store(true)
	if err := drainer.Wait(); err != nil {
		return res, err
	}
	if serr != nil {
		return res, serr
	}
	res.sent, res.dropped = sent.Load(), dropped.Load()
	if res.delivered != res.sent {
		return res, fmt.Errorf("%d entries sent but %d delivered", res.sent, res.delivered)
	}
	if st := owner.Stats(); st.Free != st.Entries || st.Pending != 0 {
		return res, fmt.Errorf("work list not empty after the run: %+v", st)
	}
	return res, nil
}
