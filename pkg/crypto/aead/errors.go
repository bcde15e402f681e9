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

package aead

import "errors"

var (
	// ErrAuthentication is returned by Open when the tag does not verify.
	// The ciphertext, the key or the associated data has been altered.
	ErrAuthentication = errors.New("aead: message authentication failed")

	// ErrInvalidKeySize is returned for keys that are not KeySize bytes.
	ErrInvalidKeySize = errors.New("aead: invalid key size")

	// ErrInvalidTagSize is returned for tags that are not TagSize bytes.
	ErrInvalidTagSize = errors.New("aead: invalid tag size")

	// ErrInvalidLength is returned when input and output buffers differ in size.
	ErrInvalidLength = errors.New("aead: input and output lengths differ")

	// ErrKeyReuse is returned when a key is presented for sealing twice.
	// With a fixed IV this would leak the GHASH key and the XOR of both
	// plaintexts, so the encryption is rejected.
	ErrKeyReuse = errors.New("aead: catastrophic key reuse detected - encryption rejected for security")
)
