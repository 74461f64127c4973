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
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/compat32/pkg/config"
	"gvisor.dev/compat32/pkg/wow"
)

// Syscalls implements subcommands.Command for the "syscalls" command.
type Syscalls struct {
	output string
	table  string
}

// SyscallDoc describes one entry of a dispatch table.
type SyscallDoc struct {
	Number   uint32 `json:"number"`
	Table    string `json:"table"`
	Name     string `json:"name"`
	ArgCount uint8  `json:"args"`
	Traced   bool   `json:"traced"`
}

type outputFunc func(io.Writer, []SyscallDoc) error

var (
	tableNames = map[string]uint32{
		"core":   wow.CoreTable,
		"win32k": wow.Win32kTable,
		"wide":   wow.WideTable,
	}

	outputMap = map[string]outputFunc{
		"table": outputTable,
		"json":  outputJSON,
		"csv":   outputCSV,
	}
)

// Name implements subcommands.Command.Name.
func (*Syscalls) Name() string {
	return "syscalls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Syscalls) Synopsis() string {
	return "Print the translated system calls."
}

// Usage implements subcommands.Command.Usage.
func (*Syscalls) Usage() string {
	return `syscalls [options] - Print the translated system calls and their numbers.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Syscalls) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.output, "o", "table", "Output format (table, csv, json).")
	f.StringVar(&s.table, "table", "all", "The dispatch table (core, win32k, wide or all).")
}

// Execute implements subcommands.Command.Execute.
func (s *Syscalls) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := configOf(args)
	out, ok := outputMap[s.output]
	if !ok {
		Fatalf("Unsupported output format %q", s.output)
	}
	docs, err := syscallDocs(conf, s.table)
	if err != nil {
		Fatalf("%v", err)
	}
	if err := out(os.Stdout, docs); err != nil {
		Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// syscallDocs lists the syscalls of the named table, or of every table,
// in number order.
func syscallDocs(conf *config.Config, table string) ([]SyscallDoc, error) {
	var docs []SyscallDoc
	for name, selector := range tableNames {
		if table != "all" && table != name {
			continue
		}
		for id, sc := range wow.Syscalls(selector) {
			docs = append(docs, SyscallDoc{
				Number:   wow.Number(selector, uint32(id)),
				Table:    name,
				Name:     sc.Name,
				ArgCount: sc.ArgCount,
				Traced:   conf.Traced(sc.Name),
			})
		}
	}
	if docs == nil {
		return nil, fmt.Errorf("unknown dispatch table %q", table)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Number < docs[j].Number
	})
	return docs, nil
}

// outputTable outputs the syscalls in tabular format.
func outputTable(w io.Writer, docs []SyscallDoc) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "NUM\tTABLE\tNAME\tARGS\tTRACED\n"); err != nil {
		return err
	}
	for _, d := range docs {
		if _, err := fmt.Fprintf(tw, "%#05x\t%s\t%s\t%d\t%t\n", d.Number, d.Table, d.Name, d.ArgCount, d.Traced); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// outputJSON outputs the syscalls in JSON format.
func outputJSON(w io.Writer, docs []SyscallDoc) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(docs)
}

// outputCSV outputs the syscalls in CSV format.
func outputCSV(w io.Writer, docs []SyscallDoc) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Num", "Table", "Name", "Args", "Traced"}); err != nil {
		return err
	}
	for _, d := range docs {
		row := []string{
			strconv.FormatUint(uint64(d.Number), 10),
			d.Table,
			d.Name,
			strconv.Itoa(int(d.ArgCount)),
			strconv.FormatBool(d.Traced),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
