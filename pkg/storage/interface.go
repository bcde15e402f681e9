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

// Package storage defines the host file contract used by the protected file
// engine. The host is untrusted: implementations only move opaque bytes and
// are never relied upon for confidentiality or integrity.
package storage

import (
	"io"
)

// Handle is a positioned, random-access view of one host file.
//
// ReadAt follows io.ReaderAt semantics: a short read at the end of the file
// returns io.EOF together with the number of bytes read.
type Handle interface {
	io.ReaderAt
	io.WriterAt

	// Sync flushes written data to durable storage.
	Sync() error

	// Size returns the current length of the file in bytes.
	Size() (int64, error)

	// Truncate changes the length of the file.
	Truncate(size int64) error

	// Close releases the handle. Closing twice returns ErrClosed.
	Close() error
}

// Backend opens and removes named host files. The protected file engine uses
// it to locate the recovery artifact that sits next to a protected file.
type Backend interface {
	// Open opens an existing file. Returns ErrNotFound if it does not exist.
	Open(name string) (Handle, error)

	// Create opens the named file for writing, creating it if needed and
	// truncating any previous contents.
	Create(name string) (Handle, error)

	// Remove deletes the named file. Returns ErrNotFound if it does not exist.
	Remove(name string) error

	// Exists reports whether the named file exists.
	Exists(name string) (bool, error)

	// Close releases any resources held by the backend.
	Close() error
}

// ReadFull reads exactly len(p) bytes at off. A file that ends early yields
// io.ErrUnexpectedEOF.
func ReadFull(h Handle, p []byte, off int64) error {
	n, err := h.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// WriteFull writes all of p at off.
func WriteFull(h Handle, p []byte, off int64) error {
	n, err := h.WriteAt(p, off)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}
