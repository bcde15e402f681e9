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

package storage

import "errors"

var (
	// ErrClosed is returned when attempting to use a closed handle or backend.
	ErrClosed = errors.New("storage: closed")

	// ErrNotFound is returned when a named file does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidName is returned when a file name is empty or escapes the backend root.
	ErrInvalidName = errors.New("storage: invalid name")

	// ErrLocked is returned when another handle already holds the file.
	ErrLocked = errors.New("storage: file is locked")

	// ErrInjectedFault is returned by test backends when a fault fires.
	ErrInjectedFault = errors.New("storage: injected fault")
)
