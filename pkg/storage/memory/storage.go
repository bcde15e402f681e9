// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-protectedfs.
//
// go-protectedfs is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package memory provides an in-memory implementation of the storage.Backend
// interface. Besides backing unit tests it can simulate a hostile or failing
// host: file contents can be tampered with directly and write faults can be
// armed per file name to emulate a crash at an exact point of a commit.
package memory

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

// Storage is an in-memory implementation of storage.Backend.
// Handles opened on the same name share the same underlying bytes.
type Storage struct {
	mu     sync.RWMutex
	files  map[string]*memFile
	faults map[string]*fault
	closed bool
}

type memFile struct {
	data   []byte
	writes int
	syncs  int
}

// fault lets remaining more writes through, then rejects every write to the
// file without applying it.
type fault struct {
	remaining int
}

var _ storage.Backend = (*Storage)(nil)

// New creates a new, empty in-memory storage backend.
func New() *Storage {
	return &Storage{
		files:  make(map[string]*memFile),
		faults: make(map[string]*fault),
	}
}

// Open opens an existing file.
func (s *Storage) Open(name string) (storage.Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	if name == "" {
		return nil, storage.ErrInvalidName
	}
	f, ok := s.files[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &handle{store: s, name: name, file: f}, nil
}

// Create creates or truncates the named file.
func (s *Storage) Create(name string) (storage.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	if name == "" {
		return nil, storage.ErrInvalidName
	}
	f, ok := s.files[name]
	if !ok {
		f = &memFile{}
		s.files[name] = f
	}
	f.data = f.data[:0]
	return &handle{store: s, name: name, file: f}, nil
}

// Remove deletes the named file. Open handles keep their bytes.
func (s *Storage) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.files[name]; !ok {
		return storage.ErrNotFound
	}
	delete(s.files, name)
	return nil
}

// Exists reports whether the named file exists.
func (s *Storage) Exists(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, storage.ErrClosed
	}
	_, ok := s.files[name]
	return ok, nil
}

// Close marks the backend closed. Subsequent calls return storage.ErrClosed.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	s.closed = true
	return nil
}

// Names returns the names of all files in sorted order.
func (s *Storage) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bytes returns a copy of the current contents of the named file.
func (s *Storage) Bytes(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

// SetBytes replaces the contents of the named file, creating it if needed.
// Tests use it to play the part of a malicious host.
func (s *Storage) SetBytes(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		f = &memFile{}
		s.files[name] = f
	}
	f.data = append(f.data[:0], data...)
}

// FlipBit inverts one bit of the named file in place.
func (s *Storage) FlipBit(name string, offset int64, bit uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		return storage.ErrNotFound
	}
	if offset < 0 || offset >= int64(len(f.data)) {
		return fmt.Errorf("memory storage: offset %d outside file %q of %d bytes", offset, name, len(f.data))
	}
	f.data[offset] ^= 1 << (bit % 8)
	return nil
}

// FailWritesAfter lets n more writes to the named file succeed and rejects
// every write after that with storage.ErrInjectedFault. Rejected writes are
// not applied, which leaves the file exactly as a power cut would. The fault
// also applies to a file created later under the same name.
func (s *Storage) FailWritesAfter(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[name] = &fault{remaining: n}
}

// ClearFaults disarms all injected faults.
func (s *Storage) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults = make(map[string]*fault)
}

// WriteCount returns the number of writes applied to the named file.
func (s *Storage) WriteCount(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.files[name]; ok {
		return f.writes
	}
	return 0
}

// SyncCount returns the number of Sync calls made on the named file.
func (s *Storage) SyncCount(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.files[name]; ok {
		return f.syncs
	}
	return 0
}

type handle struct {
	store  *Storage
	name   string
	file   *memFile
	closed bool
}

func (h *handle) ReadAt(p []byte, off int64) (int, error) {
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()

	if h.closed {
		return 0, storage.ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("memory storage: negative offset %d", off)
	}
	if off >= int64(len(h.file.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.file.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *handle) WriteAt(p []byte, off int64) (int, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	if h.closed {
		return 0, storage.ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("memory storage: negative offset %d", off)
	}
	if f, ok := h.store.faults[h.name]; ok {
		if f.remaining <= 0 {
			return 0, storage.ErrInjectedFault
		}
		f.remaining--
	}
	end := off + int64(len(p))
	if end > int64(len(h.file.data)) {
		grown := make([]byte, end)
		copy(grown, h.file.data)
		h.file.data = grown
	}
	copy(h.file.data[off:], p)
	h.file.writes++
	return len(p), nil
}

func (h *handle) Sync() error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	if h.closed {
		return storage.ErrClosed
	}
	h.file.syncs++
	return nil
}

func (h *handle) Size() (int64, error) {
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()

	if h.closed {
		return 0, storage.ErrClosed
	}
	return int64(len(h.file.data)), nil
}

func (h *handle) Truncate(size int64) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	if h.closed {
		return storage.ErrClosed
	}
	if size < 0 {
		return fmt.Errorf("memory storage: negative size %d", size)
	}
	if size <= int64(len(h.file.data)) {
		h.file.data = h.file.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, h.file.data)
	h.file.data = grown
	return nil
}

func (h *handle) Close() error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	if h.closed {
		return storage.ErrClosed
	}
	h.closed = true
	return nil
}
