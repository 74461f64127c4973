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
	"fmt"

	"gvisor.dev/compat32/pkg/abi/nt"
	"gvisor.dev/compat32/pkg/abi/nt32"
	"gvisor.dev/compat32/pkg/hostarch"
	"gvisor.dev/compat32/pkg/ntstatus"
	"gvisor.dev/compat32/pkg/usermem"
)

// ProcessParams64 widens RTL_USER_PROCESS_PARAMETERS. String buffers and
// the environment stay where they are; handles are sign-extended. The
// lengths describe the wide structure.
func ProcessParams64(n nt32.RTLUserProcessParameters) nt.RTLUserProcessParameters {
	size := uint32(nt.SizeOfRTLUserProcessParameters)
	return nt.RTLUserProcessParameters{
		MaximumLength: size,
		Length:        size,
		Flags:         n.Flags,
		DebugFlags:    n.DebugFlags,
		ConsoleHandle: uint64(Handle(n.ConsoleHandle)),
		ConsoleFlags:  n.ConsoleFlags,
		StdInput:      uint64(Handle(n.StdInput)),
		StdOutput:     uint64(Handle(n.StdOutput)),
		StdError:      uint64(Handle(n.StdError)),
		CurrentDirectory: nt.CurDir{
			DosPath: UnicodeString64(n.CurrentDirectory.DosPath),
			Handle:  uint64(Handle(n.CurrentDirectory.Handle)),
		},
		DllPath:         UnicodeString64(n.DllPath),
		ImagePathName:   UnicodeString64(n.ImagePathName),
		CommandLine:     UnicodeString64(n.CommandLine),
		Environment:     Ptr(n.Environment),
		X:               n.X,
		Y:               n.Y,
		XSize:           n.XSize,
		YSize:           n.YSize,
		XCountChars:     n.XCountChars,
		YCountChars:     n.YCountChars,
		FillAttribute:   n.FillAttribute,
		WindowFlags:     n.WindowFlags,
		ShowWindowFlags: n.ShowWindowFlags,
		WindowTitle:     UnicodeString64(n.WindowTitle),
		Desktop:         UnicodeString64(n.Desktop),
		ShellInfo:       UnicodeString64(n.ShellInfo),
		RuntimeInfo:     UnicodeString64(n.RuntimeInfo),
	}
}

// ProcessParams32 narrows RTL_USER_PROCESS_PARAMETERS.
func ProcessParams32(w nt.RTLUserProcessParameters) (nt32.RTLUserProcessParameters, error) {
	var (
		n   nt32.RTLUserProcessParameters
		err error
	)
	strs := []struct {
		dst *nt32.UnicodeString
		src nt.UnicodeString
	}{
		{&n.CurrentDirectory.DosPath, w.CurrentDirectory.DosPath},
		{&n.DllPath, w.DllPath},
		{&n.ImagePathName, w.ImagePathName},
		{&n.CommandLine, w.CommandLine},
		{&n.WindowTitle, w.WindowTitle},
		{&n.Desktop, w.Desktop},
		{&n.ShellInfo, w.ShellInfo},
		{&n.RuntimeInfo, w.RuntimeInfo},
	}
	for _, s := range strs {
		if *s.dst, err = UnicodeString32(s.src); err != nil {
			return nt32.RTLUserProcessParameters{}, err
		}
	}
	handles := []struct {
		dst *uint32
		src uint64
	}{
		{&n.ConsoleHandle, w.ConsoleHandle},
		{&n.StdInput, w.StdInput},
		{&n.StdOutput, w.StdOutput},
		{&n.StdError, w.StdError},
		{&n.CurrentDirectory.Handle, w.CurrentDirectory.Handle},
	}
	for _, h := range handles {
		if *h.dst, err = NarrowHandle(nt.Handle(h.src)); err != nil {
			return nt32.RTLUserProcessParameters{}, err
		}
	}
	if n.Environment, err = NarrowPtr(w.Environment); err != nil {
		return nt32.RTLUserProcessParameters{}, err
	}
	size := uint32(nt32.SizeOfRTLUserProcessParameters)
	n.MaximumLength = size
	n.Length = size
	n.Flags = w.Flags
	n.DebugFlags = w.DebugFlags
	n.ConsoleFlags = w.ConsoleFlags
	n.X, n.Y = w.X, w.Y
	n.XSize, n.YSize = w.XSize, w.YSize
	n.XCountChars, n.YCountChars = w.XCountChars, w.YCountChars
	n.FillAttribute = w.FillAttribute
	n.WindowFlags = w.WindowFlags
	n.ShowWindowFlags = w.ShowWindowFlags
	return n, nil
}

// normalize makes the offsets of a non-normalized parameter block at base
// absolute.
func normalize(n *nt32.RTLUserProcessParameters, base uint32) {
	if n.Flags&nt.PROCESS_PARAMS_FLAG_NORMALIZED != 0 {
		return
	}
	for _, s := range []*nt32.UnicodeString{
		&n.CurrentDirectory.DosPath, &n.DllPath, &n.ImagePathName, &n.CommandLine,
		&n.WindowTitle, &n.Desktop, &n.ShellInfo, &n.RuntimeInfo,
	} {
		if s.Buffer != 0 {
			s.Buffer += base
		}
	}
	if n.Environment != 0 {
		n.Environment += base
	}
	n.Flags |= nt.PROCESS_PARAMS_FLAG_NORMALIZED
}

// ProcessParamsToWide stages the wide copy of the guest parameter block at
// addr, or returns 0 if addr is 0.
func (t *Translator) ProcessParamsToWide(addr uint32) (hostarch.Addr, error) {
	if addr == 0 {
		return 0, nil
	}
	var n nt32.RTLUserProcessParameters
	if err := t.CopyIn(addr, &n); err != nil {
		return 0, err
	}
	normalize(&n, addr)
	w := ProcessParams64(n)
	return t.Stage(&w).Addr, nil
}

// PSAttributes is a staged wide PS_ATTRIBUTE_LIST. Output attributes point
// into the arena until Finish copies them back to the guest.
type PSAttributes struct {
	// Addr is the wide list, or 0 if there is none.
	Addr hostarch.Addr

	t       *Translator
	outputs []psOutput
}

// psOutput is an output attribute awaiting copy-back.
type psOutput struct {
	attr uint32
	// wide is the staged value.
	wide hostarch.Addr
	// dst is the guest value buffer.
	dst uint32
	// wideRet and dstRet are the return length locations, if any.
	wideRet hostarch.Addr
	dstRet  uint32
}

// PSAttributesToWide stages the wide copy of the guest PS_ATTRIBUTE_LIST at
// addr. Unsupported attributes fail with STATUS_NOT_IMPLEMENTED.
func (t *Translator) PSAttributesToWide(addr uint32) (*PSAttributes, error) {
	ps := &PSAttributes{t: t}
	if addr == 0 {
		return ps, nil
	}
	total, err := t.ReadULong(addr)
	if err != nil {
		return nil, err
	}
	if total < uint32(nt32.SizeOfPSAttributeListHeader) {
		return nil, fmt.Errorf("attribute list length %d: %w", total, ntstatus.StatusInvalidParameter)
	}
	count := (int(total) - nt32.SizeOfPSAttributeListHeader) / nt32.SizeOfPSAttribute
	wide := encode(nt.PSAttributeListHeader{TotalLength: uint64(nt.SizeOfPSAttributeListHeader + count*nt.SizeOfPSAttribute)})
	for i := 0; i < count; i++ {
		var a nt32.PSAttribute
		if err := t.CopyIn(addr+uint32(nt32.SizeOfPSAttributeListHeader+i*nt32.SizeOfPSAttribute), &a); err != nil {
			return nil, err
		}
		w, err := ps.attribute(a)
		if err != nil {
			return nil, err
		}
		wide = append(wide, encode(&w)...)
	}
	ps.Addr = t.StageBytes(wide).Addr
	return ps, nil
}

func (ps *PSAttributes) attribute(a nt32.PSAttribute) (nt.PSAttribute, error) {
	w := nt.PSAttribute{Attribute: uint64(a.Attribute), Size: uint64(a.Size), Value: Ptr(a.Value)}
	switch a.Attribute {
	case nt.PS_ATTRIBUTE_PARENT_PROCESS, nt.PS_ATTRIBUTE_DEBUG_PORT, nt.PS_ATTRIBUTE_TOKEN:
		w.Size = 8
		w.Value = uint64(Handle(a.Value))
	case nt.PS_ATTRIBUTE_IMAGE_NAME:
	case nt.PS_ATTRIBUTE_CLIENT_ID:
		if a.Size < uint32(nt32.SizeOfClientID) {
			return nt.PSAttribute{}, fmt.Errorf("client id attribute size %d: %w", a.Size, ntstatus.StatusInvalidParameter)
		}
		staged := ps.t.Stage(&nt.ClientID{})
		w.Size = uint64(nt.SizeOfClientID)
		w.Value = uint64(staged.Addr)
		out := psOutput{attr: a.Attribute, wide: staged.Addr, dst: a.Value}
		if a.ReturnLength != 0 {
			ret := ps.t.Stage(new(uint64))
			w.ReturnLength = uint64(ret.Addr)
			out.wideRet = ret.Addr
			out.dstRet = a.ReturnLength
		}
		ps.outputs = append(ps.outputs, out)
		return w, nil
	default:
		return nt.PSAttribute{}, fmt.Errorf("process attribute %#x: %w", a.Attribute, ntstatus.StatusNotImplemented)
	}
	if a.ReturnLength != 0 {
		w.ReturnLength = Ptr(a.ReturnLength)
	}
	return w, nil
}

// Finish copies output attributes back to the guest.
func (ps *PSAttributes) Finish() error {
	for _, out := range ps.outputs {
		switch out.attr {
		case nt.PS_ATTRIBUTE_CLIENT_ID:
			var cid nt.ClientID
			if err := ps.t.ReadWide(out.wide, &cid); err != nil {
				return err
			}
			n, err := ClientID32(cid)
			if err != nil {
				return err
			}
			if err := ps.t.CopyOut(out.dst, &n); err != nil {
				return err
			}
			if out.dstRet != 0 {
				if err := ps.t.WriteULong(out.dstRet, uint32(nt32.SizeOfClientID)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ReadProcessParams decodes the wide parameter block at addr in mem.
func ReadProcessParams(mem usermem.IO, addr hostarch.Addr) (nt.RTLUserProcessParameters, error) {
	var w nt.RTLUserProcessParameters
	_, err := usermem.CopyObjectIn(mem, addr, &w)
	return w, err
}
