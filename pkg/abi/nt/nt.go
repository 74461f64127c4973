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

// Package nt contains the host-width (64-bit) layouts and constants of the
// NT kernel interface.
//
// Pointer-sized fields are uint64. Structures are packed by pkg/binary, so
// alignment holes are spelled out as blank fields.
package nt

// Handle is a host-width object handle.
type Handle uint64

// Pseudo-handles. These are small negative values, so narrow pseudo-handles
// must be sign-extended to reach them.
const (
	CurrentProcess Handle = ^Handle(0)     // -1
	CurrentThread  Handle = ^Handle(0) - 1 // -2
)

// IsPseudo returns true if h is one of the negative pseudo-handles.
func (h Handle) IsPseudo() bool {
	return int64(h) < 0 && int64(h) >= -6
}

// From winnt.h: virtual memory allocation types and states.
const (
	MEM_COMMIT      = 0x00001000
	MEM_RESERVE     = 0x00002000
	MEM_DECOMMIT    = 0x00004000
	MEM_RELEASE     = 0x00008000
	MEM_FREE        = 0x00010000
	MEM_PRIVATE     = 0x00020000
	MEM_MAPPED      = 0x00040000
	MEM_RESET       = 0x00080000
	MEM_TOP_DOWN    = 0x00100000
	MEM_IMAGE       = 0x01000000
	MEM_RESERVE_ALL = MEM_RESERVE | MEM_COMMIT
)

// From winnt.h: page protections.
const (
	PAGE_NOACCESS          = 0x01
	PAGE_READONLY          = 0x02
	PAGE_READWRITE         = 0x04
	PAGE_WRITECOPY         = 0x08
	PAGE_EXECUTE           = 0x10
	PAGE_EXECUTE_READ      = 0x20
	PAGE_EXECUTE_READWRITE = 0x40
	PAGE_EXECUTE_WRITECOPY = 0x80
	PAGE_GUARD             = 0x100
	PAGE_NOCACHE           = 0x200
)

// PageProtectionIsExecutable returns true if prot grants execute access.
func PageProtectionIsExecutable(prot uint32) bool {
	return prot&(PAGE_EXECUTE|PAGE_EXECUTE_READ|PAGE_EXECUTE_READWRITE|PAGE_EXECUTE_WRITECOPY) != 0
}

// PageProtectionIsValid returns true if prot names exactly one base
// protection.
func PageProtectionIsValid(prot uint32) bool {
	base := prot & 0xff
	return base != 0 && base&(base-1) == 0
}

// From winnt.h: section attributes.
const (
	SEC_FILE    = 0x00800000
	SEC_IMAGE   = 0x01000000
	SEC_RESERVE = 0x04000000
	SEC_COMMIT  = 0x08000000
)

// Object attribute flags.
const (
	OBJ_INHERIT          = 0x00000002
	OBJ_PERMANENT        = 0x00000010
	OBJ_EXCLUSIVE        = 0x00000020
	OBJ_CASE_INSENSITIVE = 0x00000040
	OBJ_OPENIF           = 0x00000080
	OBJ_KERNEL_HANDLE    = 0x00000200
)

// NtDuplicateObject options.
const (
	DUPLICATE_CLOSE_SOURCE    = 0x1
	DUPLICATE_SAME_ACCESS     = 0x2
	DUPLICATE_SAME_ATTRIBUTES = 0x4
)

// Event types.
const (
	NotificationEvent    = 0
	SynchronizationEvent = 1
)

// NtCreateFile dispositions and results.
const (
	FILE_SUPERSEDE    = 0
	FILE_OPEN         = 1
	FILE_CREATE       = 2
	FILE_OPEN_IF      = 3
	FILE_OVERWRITE    = 4
	FILE_OVERWRITE_IF = 5

	FILE_SUPERSEDED  = 0
	FILE_OPENED      = 1
	FILE_CREATED     = 2
	FILE_OVERWRITTEN = 3
	FILE_EXISTS      = 4
)

// Registry value types and key dispositions.
const (
	REG_NONE     = 0
	REG_SZ       = 1
	REG_BINARY   = 3
	REG_DWORD    = 4
	REG_MULTI_SZ = 7
	REG_QWORD    = 11

	REG_CREATED_NEW_KEY     = 1
	REG_OPENED_EXISTING_KEY = 2
)

// LargeInteger is LARGE_INTEGER. It has the same layout at every width.
type LargeInteger int64
