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

package wow

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"gvisor.dev/compat32/pkg/xproc"
)

// SectionPath returns the path of the work list section of process pid in
// dir.
func SectionPath(dir string, pid uint64) string {
	return filepath.Join(dir, fmt.Sprintf("compat32-worklist-%d", pid))
}

// SectionPeers finds the work lists of other processes in section files
// named by SectionPath. Sections stay mapped until Close.
type SectionPeers struct {
	// Dir holds the section files.
	Dir string

	// Wait bounds the time spent waiting for a section to be created and
	// formatted. Zero means 100ms.
	Wait time.Duration

	mu   sync.Mutex
	open map[uint64]*xproc.Section
}

var _ Peers = (*SectionPeers)(nil)

// WorkList implements Peers.WorkList.
func (p *SectionPeers) WorkList(ctx context.Context, pid uint64) (*xproc.List, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.open[pid]; ok {
		return s.List, nil
	}
	wait := p.Wait
	if wait == 0 {
		wait = 100 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	s, err := xproc.OpenSection(ctx, SectionPath(p.Dir, pid))
	if err != nil {
		return nil, err
	}
	if p.open == nil {
		p.open = make(map[uint64]*xproc.Section)
	}
	p.open[pid] = s
	return s.List, nil
}

// Close unmaps every section opened so far.
func (p *SectionPeers) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for pid, s := range p.open {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.open, pid)
	}
	return first
}
