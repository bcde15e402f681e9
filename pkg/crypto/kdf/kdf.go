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

// Package kdf implements the keyed pseudorandom function that produces
// protected-file "secure blobs": 128-bit values bound to a label and a
// physical node number, used both as node keys and as verification tags.
package kdf

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// NonceSize is the size of the per-derivation nonce (the HKDF salt).
	NonceSize = 32

	// OutputSize is the size of every secure blob.
	OutputSize = 16

	// MaxLabelLength bounds the label to keep the info string small.
	MaxLabelLength = 64
)

// Labels separate the derivation domains.
const (
	LabelMetadataKey = "PFS-METADATA-KEY"
	LabelKDKCheck    = "PFS-KDK-CHECK"
	LabelRandomKey   = "PFS-RANDOM-KEY"
	LabelMasterKey   = "PFS-MASTER-KEY"
)

var (
	ErrInvalidKey    = errors.New("kdf: invalid key")
	ErrInvalidLabel  = errors.New("kdf: invalid label")
	ErrInvalidNonce  = errors.New("kdf: invalid nonce size")
	ErrInvalidOutput = errors.New("kdf: invalid output size")
	ErrUsageLimit    = errors.New("kdf: key usage limit reached")
)

// PRF derives a secure blob from a key, a label, a physical node number and
// a nonce. Equal inputs always produce equal outputs.
type PRF interface {
	Derive(key []byte, label string, node uint64, nonce []byte, out []byte) error
}

// HKDF is HKDF-SHA256 with the key as input keying material, the nonce as
// salt and label || 0x00 || be64(node) as info.
type HKDF struct{}

var _ PRF = HKDF{}

// NewHKDF returns the default PRF.
func NewHKDF() HKDF {
	return HKDF{}
}

// Derive implements PRF.
func (HKDF) Derive(key []byte, label string, node uint64, nonce []byte, out []byte) error {
	if len(key) == 0 {
		return ErrInvalidKey
	}
	if label == "" || len(label) > MaxLabelLength {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	if len(nonce) != NonceSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidNonce, len(nonce), NonceSize)
	}
	if len(out) != OutputSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidOutput, len(out), OutputSize)
	}

	info := make([]byte, 0, len(label)+1+8)
	info = append(info, label...)
	info = append(info, 0)
	info = binary.BigEndian.AppendUint64(info, node)

	r := hkdf.New(sha256.New, key, nonce, info)
	if _, err := io.ReadFull(r, out); err != nil {
		return fmt.Errorf("kdf: derivation failed: %w", err)
	}
	return nil
}
