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

package pfs

import "errors"

var (
	// ErrIntegrity means a node failed authentication: it was tampered
	// with, swapped for another node or rolled back to an older version.
	ErrIntegrity = errors.New("pfs: integrity check failed")

	// ErrKeyAuthentication means the KDK does not match the one the file
	// was written with.
	ErrKeyAuthentication = errors.New("pfs: key-derivation key does not match file")

	// ErrIO wraps a failure of the host file or the recovery store.
	ErrIO = errors.New("pfs: host I/O failed")

	// ErrRecovery means a recovery log could not be replayed, or an
	// interrupted commit was detected with no way to recover from it.
	ErrRecovery = errors.New("pfs: recovery failed")

	// ErrCorrupted means the file is structurally invalid.
	ErrCorrupted = errors.New("pfs: file is corrupted")

	// ErrCrypto wraps a failure of the cipher, the PRF or the random source.
	ErrCrypto = errors.New("pfs: cryptographic operation failed")

	// ErrUsage is returned for calls the session cannot honor, such as a
	// write on a read-only file or a seek outside the file.
	ErrUsage = errors.New("pfs: invalid operation")

	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("pfs: file is closed")

	// ErrBadStatus is returned while the session holds an error status.
	ErrBadStatus = errors.New("pfs: file is in an error state")
)
