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

package journal

import (
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

// Write creates the log artifact in backend and writes records to it one
// write per record, then syncs it. A failure part way leaves a torn log that
// Read reports as ErrTorn.
func Write(backend storage.Backend, artifact, name string, records []Record) error {
	m, err := newManifest(name, records)
	if err != nil {
		return err
	}
	header, err := encodeHeader(m)
	if err != nil {
		return err
	}

	h, err := backend.Create(artifact)
	if err != nil {
		return fmt.Errorf("journal: failed to create %q: %w", artifact, err)
	}
	defer h.Close()

	hasher := blake3.New()
	var off int64
	write := func(p []byte) error {
		if err := storage.WriteFull(h, p, off); err != nil {
			return fmt.Errorf("journal: write at offset %d of %q: %w", off, artifact, err)
		}
		_, _ = hasher.Write(p)
		off += int64(len(p))
		return nil
	}

	if err := write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := write(encodeRecord(r)); err != nil {
			return err
		}
	}
	if err := write(hasher.Sum(nil)); err != nil {
		return err
	}
	if err := h.Sync(); err != nil {
		return fmt.Errorf("journal: failed to sync %q: %w", artifact, err)
	}
	return nil
}

// Read loads and verifies the log artifact. A missing artifact returns
// storage.ErrNotFound.
func Read(backend storage.Backend, artifact string) (*Journal, error) {
	h, err := backend.Open(artifact)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	size, err := h.Size()
	if err != nil {
		return nil, fmt.Errorf("journal: failed to stat %q: %w", artifact, err)
	}
	data := make([]byte, size)
	if size > 0 {
		if err := storage.ReadFull(h, data, 0); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: %v", ErrTorn, err)
			}
			return nil, fmt.Errorf("journal: failed to read %q: %w", artifact, err)
		}
	}
	return Decode(data)
}

// Exists reports whether a log artifact is present, valid or not.
func Exists(backend storage.Backend, artifact string) (bool, error) {
	return backend.Exists(artifact)
}

// Remove deletes the log artifact. A missing artifact is not an error.
func Remove(backend storage.Backend, artifact string) error {
	if err := backend.Remove(artifact); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("journal: failed to remove %q: %w", artifact, err)
	}
	return nil
}

// Apply writes every record of j into h at Physical * NodeSize and syncs h.
func Apply(h storage.Handle, j *Journal) error {
	size := int64(j.Manifest.NodeSize)
	for _, r := range j.Records {
		if err := storage.WriteFull(h, r.Image, int64(r.Physical)*size); err != nil {
			return fmt.Errorf("journal: replay of node %d failed: %w", r.Physical, err)
		}
	}
	if err := h.Sync(); err != nil {
		return fmt.Errorf("journal: sync after replay failed: %w", err)
	}
	return nil
}
