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

// Package cmd holds implementations of the wowctl commands.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"gvisor.dev/compat32/pkg/config"
	"gvisor.dev/compat32/pkg/log"
)

// ErrorLogger is where error messages are written, in addition to the log.
var ErrorLogger io.Writer = os.Stderr

// Fatalf logs the message and exits with failure.
func Fatalf(format string, args ...any) {
	log.Warningf(format, args...)
	fmt.Fprintf(ErrorLogger, "wowctl: "+format+"\n", args...)
	os.Exit(128)
}

// configOf returns the configuration passed to Execute.
func configOf(args []any) *config.Config {
	if len(args) == 0 {
		Fatalf("no configuration passed to command")
	}
	conf, ok := args[0].(*config.Config)
	if !ok {
		Fatalf("command argument is a %T, not a configuration", args[0])
	}
	return conf
}

// parseUint parses a decimal or 0x-prefixed unsigned integer.
func parseUint(name, s string, bits int) uint64 {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		Fatalf("invalid %s %q: %v", name, s, err)
	}
	return v
}
