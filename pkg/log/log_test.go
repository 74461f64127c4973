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
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	expected := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if len(tw.lines) != len(expected) {
		t.Fatalf("Writer should have logged %d lines, got: %q, expected: %q", len(expected), tw.lines, expected)
	}
	for i, l := range tw.lines {
		if l != expected[i] {
			t.Errorf("line %d doesn't match, got: %q, expected: %q", i, l, expected[i])
		}
	}
}

func TestWriterAddsNewline(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("no newline")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}
	if got := strings.Join(tw.lines, ""); got != "no newline\n" {
		t.Errorf("got %q, want %q", got, "no newline\n")
	}
}

func TestLevelFiltering(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warningf("warning %d", 3)
	if len(tw.lines) != 2 {
		t.Fatalf("got lines %q, want 2 lines", tw.lines)
	}
	l.SetLevel(Debug)
	l.Debugf("debug %d", 4)
	if got := tw.lines[len(tw.lines)-1]; got != "debug 4\n" {
		t.Errorf("last line got %q, want %q", got, "debug 4\n")
	}
}

func TestGoogleEmitterFormat(t *testing.T) {
	ts := time.Date(2025, time.March, 4, 5, 6, 7, 8000, time.UTC)
	for _, tc := range []struct {
		tag  string
		want string
	}{
		{"", "W0304 05:06:07.000008 " + pid + " log_test.go:"},
		{"guest-1", "W0304 05:06:07.000008 " + pid + " guest-1 log_test.go:"},
	} {
		tw := &testWriter{}
		g := GoogleEmitter{Emitter: &Writer{Next: tw}, Tag: tc.tag}
		g.Emit(0, Warning, ts, "NtClose(%#x) = %s", 0x24, "STATUS_SUCCESS")
		if len(tw.lines) != 1 {
			t.Fatalf("got lines %q, want 1", tw.lines)
		}
		line := tw.lines[0]
		if !strings.HasPrefix(line, tc.want) {
			t.Errorf("line %q does not start with %q", line, tc.want)
		}
		if !strings.HasSuffix(line, "] NtClose(0x24) = STATUS_SUCCESS\n") {
			t.Errorf("line %q has wrong message", line)
		}
	}
}

func TestDefaultLoggerIsUntaggedGoogleEmitter(t *testing.T) {
	l := Log()
	if l.Level != Info {
		t.Errorf("default level = %v, want %v", l.Level, Info)
	}
	g, ok := l.Emitter.(GoogleEmitter)
	if !ok {
		t.Fatalf("default emitter is %T, want GoogleEmitter", l.Emitter)
	}
	if g.Tag != "" {
		t.Errorf("default tag = %q, want empty", g.Tag)
	}
	if _, ok := g.Emitter.(*Writer); !ok {
		t.Errorf("default sink is %T, want *Writer", g.Emitter)
	}
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: Debug},
		{in: "WARNING", want: Warning},
		{in: "", want: Info},
		{in: "verbose", want: Info, wantErr: true},
	} {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %t", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}, time.Hour)
	for i := 0; i < 10; i++ {
		l.Warningf("dropped notification %d", i)
	}
	if len(tw.lines) != 1 {
		t.Errorf("got %d lines, want 1: %q", len(tw.lines), tw.lines)
	}
}

func TestRateLimitedLoggerReportsSuppressed(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}, time.Hour).(*rateLimitedLogger)
	for i := 0; i < 3; i++ {
		l.Warningf("work list full")
	}
	l.Debugf("not counted")
	l.limit.SetLimit(rate.Inf)
	l.Warningf("work list full")
	want := []string{
		"work list full\n",
		"work list full (2 similar messages suppressed)\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}
