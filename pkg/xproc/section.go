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

package xproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
	"gvisor.dev/compat32/pkg/log"
)

// Section is a work list in a file mapped shared, so that every process
// that maps the file sees the same list.
type Section struct {
	*List

	path string
	mem  []byte
}

func lockPath(path string) string {
	return path + ".lock"
}

func mapFile(f *os.File, size int) ([]byte, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	return mem, nil
}

// CreateSection creates the file at path, replacing any existing one, and
// formats a list of n entries in it. Processes opening the section wait
// until it is formatted.
func CreateSection(path string, n int) (*Section, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid work list size %d", n)
	}
	lock := flock.NewFlock(lockPath(path))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("locking %q: %w", lock.Path(), err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	size := Size(n)
	if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
		return nil, fmt.Errorf("ftruncate %s: %w", path, err)
	}
	mem, err := mapFile(f, size)
	if err != nil {
		return nil, err
	}
	l, err := Format(mem, n)
	if err != nil {
		unix.Munmap(mem)
		return nil, err
	}
	log.Debugf("Created work list %s with %d entries", path, n)
	return &Section{List: l, path: path, mem: mem}, nil
}

var errNotReady = errors.New("work list section not formatted yet")

// OpenSection maps an existing section. It retries while the file is
// missing or not yet formatted, until ctx is done.
func OpenSection(ctx context.Context, path string) (*Section, error) {
	var s *Section
	attach := func() error {
		var err error
		s, err = openSection(path)
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, errNotReady) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(20*time.Millisecond), ctx)
	if err := backoff.Retry(attach, b); err != nil {
		return nil, fmt.Errorf("opening work list %s: %w", path, err)
	}
	return s, nil
}

func openSection(path string) (*Section, error) {
	lock := flock.NewFlock(lockPath(path))
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking %q: %w", lock.Path(), err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < int64(Size(1)) {
		return nil, errNotReady
	}
	mem, err := mapFile(f, int(fi.Size()))
	if err != nil {
		return nil, err
	}
	l, err := NewList(mem)
	if err != nil {
		unix.Munmap(mem)
		return nil, err
	}
	return &Section{List: l, path: path, mem: mem}, nil
}

// Path returns the path of the section's file.
func (s *Section) Path() string {
	return s.path
}

// Close unmaps the section. The file is left in place.
func (s *Section) Close() error {
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	s.List = nil
	return err
}

// Remove deletes the section's file and lock file.
func (s *Section) Remove() error {
	err := os.Remove(s.path)
	if rerr := os.Remove(lockPath(s.path)); err == nil && !os.IsNotExist(rerr) {
		err = rerr
	}
	return err
}
