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

// Package file provides an OS-backed implementation of the storage.Backend
// interface. Names are resolved relative to a root directory and every handle
// holds an advisory exclusive lock on its file for as long as it is open.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

const (
	// Default directory permissions (owner rwx only)
	defaultDirPerms = 0700

	// Protected files and recovery logs are owner rw only
	defaultFilePerms = 0600
)

// FileStorage is a file-based implementation of storage.Backend.
type FileStorage struct {
	mu      sync.Mutex
	rootDir string
	closed  bool
}

var _ storage.Backend = (*FileStorage)(nil)

// New creates a new FileStorage rooted at rootDir.
// The root directory is created with 0700 permissions if it doesn't exist.
func New(rootDir string) (*FileStorage, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("file storage: failed to resolve root directory: %w", err)
	}
	if err := os.MkdirAll(abs, defaultDirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create root directory: %w", err)
	}
	return &FileStorage{rootDir: abs}, nil
}

// Root returns the absolute root directory of the backend.
func (f *FileStorage) Root() string {
	return f.rootDir
}

// Open opens an existing file for reading and writing.
// Returns storage.ErrNotFound if it does not exist.
func (f *FileStorage) Open(name string) (storage.Handle, error) {
	return f.open(name, os.O_RDWR)
}

// Create opens the named file for reading and writing, truncating it.
func (f *FileStorage) Create(name string) (storage.Handle, error) {
	return f.open(name, os.O_RDWR|os.O_CREATE)
}

// OpenReadOnly opens an existing file without write access.
func (f *FileStorage) OpenReadOnly(name string) (storage.Handle, error) {
	return f.open(name, os.O_RDONLY)
}

func (f *FileStorage) open(name string, flag int) (storage.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, storage.ErrClosed
	}
	path, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	if flag&os.O_CREATE != 0 {
		if err := os.MkdirAll(filepath.Dir(path), defaultDirPerms); err != nil {
			return nil, fmt.Errorf("file storage: failed to create directory for %q: %w", name, err)
		}
	}

	// #nosec G304 - path is confined to the backend root by resolve
	fd, err := os.OpenFile(path, flag, defaultFilePerms)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("file storage: failed to open %q: %w", name, err)
	}
	if err := lockFile(fd, flag&(os.O_RDWR|os.O_WRONLY) != 0); err != nil {
		_ = fd.Close()
		return nil, fmt.Errorf("file storage: %q: %w", name, err)
	}
	// Truncate only once the lock is held so a concurrent holder never sees it.
	if flag&os.O_CREATE != 0 {
		if err := fd.Truncate(0); err != nil {
			unlockFile(fd)
			_ = fd.Close()
			return nil, fmt.Errorf("file storage: failed to truncate %q: %w", name, err)
		}
	}
	return &handle{fd: fd}, nil
}

// Remove deletes the named file and syncs its directory.
func (f *FileStorage) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return storage.ErrClosed
	}
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("file storage: failed to remove %q: %w", name, err)
	}
	return syncDir(filepath.Dir(path))
}

// Exists checks if the named file exists.
func (f *FileStorage) Exists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false, storage.ErrClosed
	}
	path, err := f.resolve(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("file storage: failed to stat %q: %w", name, err)
	}
	return true, nil
}

// Close marks the backend closed. Open handles stay usable.
func (f *FileStorage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return storage.ErrClosed
	}
	f.closed = true
	return nil
}

// resolve maps a name to an absolute path inside the root directory.
func (f *FileStorage) resolve(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidName, name)
	}
	path := filepath.Join(f.rootDir, filepath.Clean(name))
	if path != f.rootDir && !strings.HasPrefix(path, f.rootDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q escapes root", storage.ErrInvalidName, name)
	}
	if path == f.rootDir {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidName, name)
	}
	return path, nil
}

func syncDir(dir string) error {
	// #nosec G304 - dir is derived from a resolved path
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("file storage: failed to open directory %q: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("file storage: failed to sync directory %q: %w", dir, err)
	}
	return nil
}

type handle struct {
	mu sync.Mutex
	fd *os.File
}

func (h *handle) file() (*os.File, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fd == nil {
		return nil, storage.ErrClosed
	}
	return h.fd, nil
}

func (h *handle) ReadAt(p []byte, off int64) (int, error) {
	fd, err := h.file()
	if err != nil {
		return 0, err
	}
	return fd.ReadAt(p, off)
}

func (h *handle) WriteAt(p []byte, off int64) (int, error) {
	fd, err := h.file()
	if err != nil {
		return 0, err
	}
	return fd.WriteAt(p, off)
}

func (h *handle) Sync() error {
	fd, err := h.file()
	if err != nil {
		return err
	}
	return fd.Sync()
}

func (h *handle) Size() (int64, error) {
	fd, err := h.file()
	if err != nil {
		return 0, err
	}
	info, err := fd.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (h *handle) Truncate(size int64) error {
	fd, err := h.file()
	if err != nil {
		return err
	}
	return fd.Truncate(size)
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fd == nil {
		return storage.ErrClosed
	}
	unlockFile(h.fd)
	err := h.fd.Close()
	h.fd = nil
	return err
}
