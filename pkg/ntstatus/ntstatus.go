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

// Package ntstatus contains the status codes returned to guest code.
//
// Status values implement error so that they can flow through ordinary Go
// error returns and be compared directly, the same way unix.Errno values
// are.
package ntstatus

import (
	"errors"
	"fmt"
)

// Status is an NTSTATUS code.
type Status uint32

// Success and informational codes.
const (
	StatusSuccess          Status = 0x00000000
	StatusWait1            Status = 0x00000001
	StatusUserAPC          Status = 0x000000c0
	StatusAlerted          Status = 0x00000101
	StatusTimeout          Status = 0x00000102
	StatusPending          Status = 0x00000103
	StatusProcessNotInJob  Status = 0x00000123
	StatusProcessInJob     Status = 0x00000124
	StatusObjectNameExists Status = 0x40000000
	StatusWX86Breakpoint   Status = 0x4000001f
)

// Warning codes.
const (
	StatusBreakpoint     Status = 0x80000003
	StatusSingleStep     Status = 0x80000004
	StatusBufferOverflow Status = 0x80000005
	StatusPartialCopy    Status = 0x8000000d
	StatusNoMoreEntries  Status = 0x8000001a
)

// Error codes.
const (
	StatusUnsuccessful           Status = 0xc0000001
	StatusNotImplemented         Status = 0xc0000002
	StatusInvalidInfoClass       Status = 0xc0000003
	StatusInfoLengthMismatch     Status = 0xc0000004
	StatusAccessViolation        Status = 0xc0000005
	StatusInvalidHandle          Status = 0xc0000008
	StatusInvalidCid             Status = 0xc000000b
	StatusInvalidParameter       Status = 0xc000000d
	StatusNoSuchFile             Status = 0xc000000f
	StatusEndOfFile              Status = 0xc0000011
	StatusNoMemory               Status = 0xc0000017
	StatusConflictingAddresses   Status = 0xc0000018
	StatusInvalidSystemService   Status = 0xc000001c
	StatusIllegalInstruction     Status = 0xc000001d
	StatusInvalidViewSize        Status = 0xc000001f
	StatusAccessDenied           Status = 0xc0000022
	StatusBufferTooSmall         Status = 0xc0000023
	StatusObjectTypeMismatch     Status = 0xc0000024
	StatusNotCommitted           Status = 0xc000002d
	StatusObjectNameInvalid      Status = 0xc0000033
	StatusObjectNameNotFound     Status = 0xc0000034
	StatusObjectNameCollision    Status = 0xc0000035
	StatusObjectPathNotFound     Status = 0xc000003a
	StatusInvalidPageProtection  Status = 0xc0000045
	StatusUnknownRevision        Status = 0xc0000058
	StatusInvalidAcl             Status = 0xc0000077
	StatusInvalidSid             Status = 0xc0000078
	StatusInvalidSecurityDescr   Status = 0xc0000079
	StatusNoToken                Status = 0xc000007c
	StatusIntegerOverflow        Status = 0xc0000095
	StatusFreeVMNotAtBase        Status = 0xc000009f
	StatusMemoryNotAllocated     Status = 0xc00000a0
	StatusNotSupported           Status = 0xc00000bb
	StatusInternalError          Status = 0xc00000e5
	StatusProcessIsTerminating   Status = 0xc000010a
	StatusCancelled              Status = 0xc0000120
	StatusInvalidAddress         Status = 0xc0000141
	StatusNoCallbackActive       Status = 0xc0000258
	StatusInvalidDeviceRequest   Status = 0xc0000010
)

var names = map[Status]string{
	StatusSuccess:               "STATUS_SUCCESS",
	StatusWait1:                 "STATUS_WAIT_1",
	StatusUserAPC:               "STATUS_USER_APC",
	StatusAlerted:               "STATUS_ALERTED",
	StatusTimeout:               "STATUS_TIMEOUT",
	StatusPending:               "STATUS_PENDING",
	StatusProcessNotInJob:       "STATUS_PROCESS_NOT_IN_JOB",
	StatusProcessInJob:          "STATUS_PROCESS_IN_JOB",
	StatusObjectNameExists:      "STATUS_OBJECT_NAME_EXISTS",
	StatusWX86Breakpoint:        "STATUS_WX86_BREAKPOINT",
	StatusBreakpoint:            "STATUS_BREAKPOINT",
	StatusSingleStep:            "STATUS_SINGLE_STEP",
	StatusBufferOverflow:        "STATUS_BUFFER_OVERFLOW",
	StatusPartialCopy:           "STATUS_PARTIAL_COPY",
	StatusNoMoreEntries:         "STATUS_NO_MORE_ENTRIES",
	StatusUnsuccessful:          "STATUS_UNSUCCESSFUL",
	StatusNotImplemented:        "STATUS_NOT_IMPLEMENTED",
	StatusInvalidInfoClass:      "STATUS_INVALID_INFO_CLASS",
	StatusInfoLengthMismatch:    "STATUS_INFO_LENGTH_MISMATCH",
	StatusAccessViolation:       "STATUS_ACCESS_VIOLATION",
	StatusInvalidHandle:         "STATUS_INVALID_HANDLE",
	StatusInvalidCid:            "STATUS_INVALID_CID",
	StatusInvalidParameter:      "STATUS_INVALID_PARAMETER",
	StatusNoSuchFile:            "STATUS_NO_SUCH_FILE",
	StatusEndOfFile:             "STATUS_END_OF_FILE",
	StatusNoMemory:              "STATUS_NO_MEMORY",
	StatusConflictingAddresses:  "STATUS_CONFLICTING_ADDRESSES",
	StatusInvalidSystemService:  "STATUS_INVALID_SYSTEM_SERVICE",
	StatusIllegalInstruction:    "STATUS_ILLEGAL_INSTRUCTION",
	StatusInvalidViewSize:       "STATUS_INVALID_VIEW_SIZE",
	StatusAccessDenied:          "STATUS_ACCESS_DENIED",
	StatusBufferTooSmall:        "STATUS_BUFFER_TOO_SMALL",
	StatusObjectTypeMismatch:    "STATUS_OBJECT_TYPE_MISMATCH",
	StatusNotCommitted:          "STATUS_NOT_COMMITTED",
	StatusObjectNameInvalid:     "STATUS_OBJECT_NAME_INVALID",
	StatusObjectNameNotFound:    "STATUS_OBJECT_NAME_NOT_FOUND",
	StatusObjectNameCollision:   "STATUS_OBJECT_NAME_COLLISION",
	StatusObjectPathNotFound:    "STATUS_OBJECT_PATH_NOT_FOUND",
	StatusInvalidPageProtection: "STATUS_INVALID_PAGE_PROTECTION",
	StatusUnknownRevision:       "STATUS_UNKNOWN_REVISION",
	StatusInvalidAcl:            "STATUS_INVALID_ACL",
	StatusInvalidSid:            "STATUS_INVALID_SID",
	StatusInvalidSecurityDescr:  "STATUS_INVALID_SECURITY_DESCR",
	StatusNoToken:               "STATUS_NO_TOKEN",
	StatusIntegerOverflow:       "STATUS_INTEGER_OVERFLOW",
	StatusFreeVMNotAtBase:       "STATUS_FREE_VM_NOT_AT_BASE",
	StatusMemoryNotAllocated:    "STATUS_MEMORY_NOT_ALLOCATED",
	StatusNotSupported:          "STATUS_NOT_SUPPORTED",
	StatusInternalError:         "STATUS_INTERNAL_ERROR",
	StatusProcessIsTerminating:  "STATUS_PROCESS_IS_TERMINATING",
	StatusCancelled:             "STATUS_CANCELLED",
	StatusInvalidAddress:        "STATUS_INVALID_ADDRESS",
	StatusNoCallbackActive:      "STATUS_NO_CALLBACK_ACTIVE",
	StatusInvalidDeviceRequest:  "STATUS_INVALID_DEVICE_REQUEST",
}

// String returns the symbolic name of s, or its hexadecimal value if s has
// no name.
func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("%#08x", uint32(s))
}

// Error implements error.Error.
func (s Status) Error() string {
	return s.String()
}

// Severity returns the two severity bits of s: 0 success, 1 informational,
// 2 warning, 3 error.
func (s Status) Severity() uint32 {
	return uint32(s) >> 30
}

// IsError returns true if s has error severity.
func (s Status) IsError() bool {
	return s.Severity() == 3
}

// IsSuccess returns true if s has success or informational severity. This is
// the NT_SUCCESS predicate.
func (s Status) IsSuccess() bool {
	return int32(s) >= 0
}

// FromError converts err to the status reported to the guest.
//
// nil maps to StatusSuccess. Any Status in err's chain is returned as is;
// anything else is StatusUnsuccessful.
func FromError(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusUnsuccessful
}

// ToError converts s to an error, returning nil for StatusSuccess.
func ToError(s Status) error {
	if s == StatusSuccess {
		return nil
	}
	return s
}
