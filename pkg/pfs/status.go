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

// Status is the error state of a session.
type Status int

const (
	StatusOK Status = iota

	// StatusIntegrityFailure is set when a node fails authentication.
	StatusIntegrityFailure

	// StatusCorrupted is set when the file structure is invalid.
	StatusCorrupted

	// StatusCryptoFailure is set when a key could not be derived or a node
	// could not be sealed.
	StatusCryptoFailure

	// StatusFlushError is set when a commit failed before the protected
	// file was touched. ClearError retries the commit.
	StatusFlushError

	// StatusWriteToDiskFailed is set when writing prepared node images to
	// the protected file failed. ClearError writes them again.
	StatusWriteToDiskFailed

	// StatusClosed is set by Close.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusIntegrityFailure:
		return "integrity-failure"
	case StatusCorrupted:
		return "corrupted"
	case StatusCryptoFailure:
		return "crypto-failure"
	case StatusFlushError:
		return "flush-error"
	case StatusWriteToDiskFailed:
		return "write-to-disk-failed"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Fatal reports whether the status can never be cleared.
func (s Status) Fatal() bool {
	switch s {
	case StatusIntegrityFailure, StatusCorrupted, StatusCryptoFailure:
		return true
	}
	return false
}

// Recoverable reports whether ClearError can return the session to StatusOK.
func (s Status) Recoverable() bool {
	return s == StatusFlushError || s == StatusWriteToDiskFailed
}
