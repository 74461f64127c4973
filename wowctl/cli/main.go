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

// Package cli is the main entrypoint for wowctl.
package cli

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"gvisor.dev/compat32/pkg/config"
	"gvisor.dev/compat32/pkg/log"
	"gvisor.dev/compat32/wowctl/cmd"
)

var (
	configPath = flag.String("config", "", "path to a TOML or YAML configuration file.")
	debug      = flag.Bool("debug", false, "enable debug logging.")
	logFormat  = flag.String("log-format", "", "log format (text or json). Overrides the configuration.")
	logFile    = flag.String("log-file", "", "also write logs to this file.")
)

// Main is the main entrypoint.
func Main() {
	// All subcommands must be registered before flag parsing.
	forEachCmd(subcommands.Register)
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		cmd.Fatalf("loading configuration: %v", err)
	}
	if *logFormat != "" {
		conf = conf.Clone()
		conf.LogFormat = *logFormat
		if err := conf.Validate(); err != nil {
			cmd.Fatalf("%v", err)
		}
	}

	var emitters log.MultiEmitter
	emitters = append(emitters, conf.Emitter(os.Stderr))
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			cmd.Fatalf("opening log file: %v", err)
		}
		emitters = append(emitters, conf.Emitter(f))
	}
	log.SetTarget(&emitters)
	if err := log.CopyStandardLogTo(log.Info); err != nil {
		cmd.Fatalf("%v", err)
	}
	if *debug {
		log.SetLevel(log.Debug)
	} else {
		log.SetLevel(conf.Level())
	}
	log.Debugf("wowctl %s %s/%s, PID %d, args: %v", runtime.Version(), runtime.GOOS, runtime.GOARCH, os.Getpid(), os.Args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	status := subcommands.Execute(ctx, conf)
	if status != subcommands.ExitSuccess {
		log.Warningf("Failure to execute command, status: %v", status)
	}
	stop()
	os.Exit(int(status))
}

// forEachCmd invokes the passed callback for each command supported by
// wowctl.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(cmd.Syscalls), "")
	cb(new(cmd.Config), "")
	cb(new(cmd.Backend), "")

	const listGroup = "work lists"
	cb(new(cmd.Worklist), listGroup)
	cb(new(cmd.Stress), listGroup)
}
