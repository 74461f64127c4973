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

package log

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// GoogleEmitter is a wrapper that emits logs in a format compatible with
// package github.com/golang/glog:
//
//	Lmmdd hh:mm:ss.uuuuuu pid file:line] msg
//
// where L is the level letter. When Tag is set it follows the pid column,
// which lets the output of several guest processes sharing one log file be
// told apart.
type GoogleEmitter struct {
	// Emitter is the underlying emitter.
	Emitter

	// Tag is an optional process tag.
	Tag string
}

// pid is the process column, padded to the width glog uses.
var pid = fmt.Sprintf("%7d", os.Getpid())

var levelLetter = [...]byte{Warning: 'W', Info: 'I', Debug: 'D'}

// header appends the glog line header to b.
func (g GoogleEmitter) header(b []byte, depth int, level Level, ts time.Time) []byte {
	letter := byte('?')
	if int(level) < len(levelLetter) {
		letter = levelLetter[level]
	}
	_, month, day := ts.Date()
	hour, minute, second := ts.Clock()
	b = fmt.Appendf(b, "%c%02d%02d %02d:%02d:%02d.%06d %s ",
		letter, int(month), day, hour, minute, second, ts.Nanosecond()/1000, pid)
	if g.Tag != "" {
		b = append(b, g.Tag...)
		b = append(b, ' ')
	}
	file, line := "???", 0
	if _, f, l, ok := runtime.Caller(depth + 1); ok {
		if slash := strings.LastIndexByte(f, '/'); slash >= 0 {
			f = f[slash+1:]
		}
		file, line = f, l
	}
	return fmt.Appendf(b, "%s:%d] ", file, line)
}

// Emit emits the message, google-style.
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	var local [256]byte
	b := g.header(local[:0], depth+1, level, timestamp)
	// The arguments are formatted once, by the underlying emitter.
	b = append(b, format...)
	b = append(b, '\n')
	g.Emitter.Emit(depth+1, level, timestamp, string(b), args...)
}
