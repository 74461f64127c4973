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

// Package config holds the translation layer configuration.
//
// A Config is read from a TOML or YAML file, chosen by extension, and then
// overridden by COMPAT32_* environment variables. Once validated it is
// treated as immutable; callers that need a variant take a Clone.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"gvisor.dev/compat32/pkg/arch"
	"gvisor.dev/compat32/pkg/log"
)

// Dispatchers are the guest entry points that host-initiated transfers of
// control land on.
type Dispatchers struct {
	// Exception is the guest exception dispatcher.
	Exception uint32 `toml:"exception" yaml:"exception"`

	// Callback is the guest user-mode callback dispatcher.
	Callback uint32 `toml:"callback" yaml:"callback"`

	// APC is the guest APC dispatcher.
	APC uint32 `toml:"apc" yaml:"apc"`
}

// Config holds the configuration of one translated process.
type Config struct {
	// GuestArch is the guest architecture: i386 or arm.
	GuestArch string `toml:"guest_arch" yaml:"guest_arch"`

	// HostArch is the host architecture. Empty means the host of
	// GuestArch.
	HostArch string `toml:"host_arch" yaml:"host_arch"`

	// SoftwareBreakpoints makes breakpoint exceptions report the address
	// of the breakpoint instruction rather than the one after it.
	SoftwareBreakpoints bool `toml:"software_breakpoints" yaml:"software_breakpoints"`

	// WorkListEntries is the number of entries in the cross-process work
	// list.
	WorkListEntries int `toml:"work_list_entries" yaml:"work_list_entries"`

	// WorkListDir is the directory holding work list sections.
	WorkListDir string `toml:"work_list_dir" yaml:"work_list_dir"`

	// CPUBackend is the path of the CPU backend shared object. Empty
	// means no backend is loaded from disk.
	CPUBackend string `toml:"cpu_backend" yaml:"cpu_backend"`

	// LogLevel is one of warning, info or debug.
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// LogFormat is text or json.
	LogFormat string `toml:"log_format" yaml:"log_format"`

	// LogTag is added to every text log line.
	LogTag string `toml:"log_tag" yaml:"log_tag"`

	// Strace enables syscall tracing.
	Strace bool `toml:"strace" yaml:"strace"`

	// StraceSyscalls restricts tracing to the named calls. Empty traces
	// every call.
	StraceSyscalls []string `toml:"strace_syscalls" yaml:"strace_syscalls"`

	// ArenaDebug poisons released scratch memory.
	ArenaDebug bool `toml:"arena_debug" yaml:"arena_debug"`

	// Dispatchers are the guest dispatcher addresses.
	Dispatchers Dispatchers `toml:"dispatchers" yaml:"dispatchers"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		GuestArch:       "i386",
		WorkListEntries: 256,
		WorkListDir:     os.TempDir(),
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads the configuration file at path over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := c.decode(filepath.Ext(path), data); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) decode(ext string, data []byte) error {
	switch strings.ToLower(ext) {
	case ".toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys %v", undecoded)
		}
		return nil
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(c)
	default:
		return fmt.Errorf("unsupported configuration format %q", ext)
	}
}

// ApplyEnv overrides fields from COMPAT32_* environment variables. The
// environment is read afresh on every call.
func (c *Config) ApplyEnv() {
	env.Load()
	c.GuestArch = env.Str("COMPAT32_GUEST_ARCH", c.GuestArch)
	c.HostArch = env.Str("COMPAT32_HOST_ARCH", c.HostArch)
	if env.Has("COMPAT32_SOFTWARE_BREAKPOINTS") {
		c.SoftwareBreakpoints = env.Bool("COMPAT32_SOFTWARE_BREAKPOINTS")
	}
	c.WorkListEntries = env.Int("COMPAT32_WORK_LIST_ENTRIES", c.WorkListEntries)
	c.WorkListDir = env.Str("COMPAT32_WORK_LIST_DIR", c.WorkListDir)
	c.CPUBackend = env.Str("COMPAT32_CPU_BACKEND", c.CPUBackend)
	c.LogLevel = env.Str("COMPAT32_LOG_LEVEL", c.LogLevel)
	c.LogFormat = env.Str("COMPAT32_LOG_FORMAT", c.LogFormat)
	c.LogTag = env.Str("COMPAT32_LOG_TAG", c.LogTag)
	if env.Has("COMPAT32_STRACE") {
		c.Strace = env.Bool("COMPAT32_STRACE")
	}
	if s := env.Str("COMPAT32_STRACE_SYSCALLS"); s != "" {
		c.StraceSyscalls = strings.Split(s, ",")
	}
	if env.Has("COMPAT32_ARENA_DEBUG") {
		c.ArenaDebug = env.Bool("COMPAT32_ARENA_DEBUG")
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	guest, err := arch.Parse(c.GuestArch)
	if err != nil {
		return err
	}
	if !guest.Narrow() {
		return fmt.Errorf("guest architecture %v is not a 32-bit architecture", guest)
	}
	if c.HostArch != "" {
		host, err := arch.Parse(c.HostArch)
		if err != nil {
			return err
		}
		if want, _ := guest.Host(); host != want {
			return fmt.Errorf("guest architecture %v cannot run on %v", guest, host)
		}
	}
	if c.WorkListEntries <= 0 || c.WorkListEntries >= 1<<31 {
		return fmt.Errorf("work list entries %d out of range", c.WorkListEntries)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be text or json", c.LogFormat)
	}
	return nil
}

// Guest returns the guest architecture. c must be valid.
func (c *Config) Guest() arch.Arch {
	a, err := arch.Parse(c.GuestArch)
	if err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}
	return a
}

// Host returns the host architecture. c must be valid.
func (c *Config) Host() arch.Arch {
	if c.HostArch == "" {
		h, _ := c.Guest().Host()
		return h
	}
	a, err := arch.Parse(c.HostArch)
	if err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}
	return a
}

// Level returns the configured log level. c must be valid.
func (c *Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}
	return l
}

// Traced returns true if calls named name are traced.
func (c *Config) Traced(name string) bool {
	if !c.Strace {
		return false
	}
	if len(c.StraceSyscalls) == 0 {
		return true
	}
	for _, s := range c.StraceSyscalls {
		if strings.TrimSpace(s) == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	return deepcopy.Copy(c).(*Config)
}

// WriteTOML writes c as TOML.
func (c *Config) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Emitter returns a log emitter writing to w in the configured format.
func (c *Config) Emitter(w io.Writer) log.Emitter {
	lw := &log.Writer{Next: w}
	if c.LogFormat == "json" {
		return log.JSONEmitter{Writer: lw}
	}
	return log.GoogleEmitter{Emitter: lw, Tag: c.LogTag}
}
