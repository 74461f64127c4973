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

package nt

import (
	"math"
	"time"
)

// epochDelta is the number of 100ns intervals between 1601-01-01 and
// 1970-01-01.
const epochDelta = 116444736000000000

// TimeToNT converts t to an NT system time: 100ns intervals since 1601.
func TimeToNT(t time.Time) int64 {
	return t.UnixNano()/100 + epochDelta
}

// NTToTime converts an NT system time to a time.Time.
func NTToTime(v int64) time.Time {
	return time.Unix(0, (v-epochDelta)*100)
}

// Timeout is a LARGE_INTEGER wait timeout. Negative values are intervals
// relative to now, non-negative values are absolute system times, and a null
// pointer means wait forever.
type Timeout struct {
	Infinite bool
	Value    int64
}

// RelativeTimeout returns the Timeout for an interval of d.
func RelativeTimeout(d time.Duration) Timeout {
	return Timeout{Value: -int64(d / 100)}
}

// Relative returns true if t is an interval.
func (t Timeout) Relative() bool {
	return !t.Infinite && t.Value < 0
}

// Duration returns the time left before t expires, measured from now. An
// infinite timeout returns math.MaxInt64, an expired one returns 0.
func (t Timeout) Duration(now time.Time) time.Duration {
	if t.Infinite {
		return math.MaxInt64
	}
	var d time.Duration
	if t.Value < 0 {
		d = time.Duration(-t.Value) * 100
	} else {
		d = NTToTime(t.Value).Sub(now)
	}
	if d < 0 {
		return 0
	}
	return d
}
