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

import "gvisor.dev/compat32/pkg/binary"

// EXCEPTION_MAXIMUM_PARAMETERS bounds ExceptionInformation.
const EXCEPTION_MAXIMUM_PARAMETERS = 15

// Exception flags.
const (
	EXCEPTION_NONCONTINUABLE = 0x01
	EXCEPTION_UNWINDING      = 0x02
	EXCEPTION_SOFTWARE       = 0x80
)

// ExceptionRecord corresponds to EXCEPTION_RECORD.
type ExceptionRecord struct {
	ExceptionCode        uint32
	ExceptionFlags       uint32
	ExceptionRecord      uint64
	ExceptionAddress     uint64
	NumberParameters     uint32
	_                    uint32
	ExceptionInformation [EXCEPTION_MAXIMUM_PARAMETERS]uint64
}

// SizeOfExceptionRecord is the size of ExceptionRecord.
var SizeOfExceptionRecord = binary.Size(ExceptionRecord{})

// KeyValueInformationClass values. The KEY_VALUE_*_INFORMATION records
// contain no pointers and have the same layout at every width.
const (
	KeyValueBasicInformation   = 0
	KeyValueFullInformation    = 1
	KeyValuePartialInformation = 2
)

// KeyValuePartialInformationHeader is the fixed part of
// KEY_VALUE_PARTIAL_INFORMATION; DataLength bytes follow it.
type KeyValuePartialInformationHeader struct {
	TitleIndex uint32
	Type       uint32
	DataLength uint32
}

// SizeOfKeyValuePartialInformationHeader is the size of
// KeyValuePartialInformationHeader.
var SizeOfKeyValuePartialInformationHeader = binary.Size(KeyValuePartialInformationHeader{})
