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

package translate

import (
	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/hostarch"
)

// ExceptionRecord32 narrows an EXCEPTION_RECORD. The faulting address and
// the chained record pointer must be guest addresses. Parameters are
// opaque and are truncated.
func ExceptionRecord32(w nt.ExceptionRecord) (nt32.ExceptionRecord, error) {
	addr, err := NarrowPtr(w.ExceptionAddress)
	if err != nil {
		return nt32.ExceptionRecord{}, err
	}
	next, err := NarrowPtr(w.ExceptionRecord)
	if err != nil {
		return nt32.ExceptionRecord{}, err
	}
	n := nt32.ExceptionRecord{
		ExceptionCode:    w.ExceptionCode,
		ExceptionFlags:   w.ExceptionFlags,
		ExceptionRecord:  next,
		ExceptionAddress: addr,
		NumberParameters: min(w.NumberParameters, nt.EXCEPTION_MAXIMUM_PARAMETERS),
	}
	for i := range n.NumberParameters {
		n.ExceptionInformation[i] = uint32(w.ExceptionInformation[i])
	}
	return n, nil
}

// ExceptionRecord64 widens an EXCEPTION_RECORD.
func ExceptionRecord64(n nt32.ExceptionRecord) nt.ExceptionRecord {
	w := nt.ExceptionRecord{
		ExceptionCode:    n.ExceptionCode,
		ExceptionFlags:   n.ExceptionFlags,
		ExceptionRecord:  Ptr(n.ExceptionRecord),
		ExceptionAddress: Ptr(n.ExceptionAddress),
		NumberParameters: min(n.NumberParameters, nt.EXCEPTION_MAXIMUM_PARAMETERS),
	}
	for i := range w.NumberParameters {
		w.ExceptionInformation[i] = uint64(n.ExceptionInformation[i])
	}
	return w
}

// ExceptionRecordToWide stages the wide copy of the guest EXCEPTION_RECORD
// at addr.
func (t *Translator) ExceptionRecordToWide(addr uint32) (hostarch.Addr, error) {
	var n nt32.ExceptionRecord
	if err := t.CopyIn(addr, &n); err != nil {
		return 0, err
	}
	w := ExceptionRecord64(n)
	return t.Stage(&w).Addr, nil
}

// ExceptionRecordToNarrow writes the narrow copy of the wide record at wide
// to the guest at addr.
func (t *Translator) ExceptionRecordToNarrow(wide hostarch.Addr, addr uint32) error {
	var w nt.ExceptionRecord
	if err := t.ReadWide(wide, &w); err != nil {
		return err
	}
	n, err := ExceptionRecord32(w)
	if err != nil {
		return err
	}
	return t.CopyOut(addr, &n)
}
