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

// Package aead provides the authenticated encryption primitive used to seal
// protected-file nodes.
//
// Every node is encrypted under its own freshly derived 128-bit key, so the
// cipher runs AES-128-GCM with a fixed all-zero IV and returns the
// authentication tag detached from the ciphertext. The tag is stored in the
// parent integrity-tree slot next to the key, never alongside the node.
//
// Because the IV never changes, sealing two messages under the same key is
// catastrophic. KeyTracker lets a caller prove that does not happen.
//
// Example usage:
//
//	c := aead.NewAESGCM()
//	tag := make([]byte, aead.TagSize)
//	if err := c.Seal(key, plaintext, aad, ciphertext, tag); err != nil {
//	    return err
//	}
//	if err := c.Open(key, ciphertext, aad, tag, plaintext); err != nil {
//	    // tampered ciphertext, wrong key or wrong associated data
//	}
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
)

const (
	// KeySize is the size in bytes of every node key.
	KeySize = 16

	// TagSize is the size in bytes of the detached GCM authentication tag.
	TagSize = 16

	// NonceSize is the size of the fixed GCM IV.
	NonceSize = 12
)

// Cipher seals and opens node payloads with a detached authentication tag.
// Implementations must be deterministic for a given key, plaintext and
// associated data.
type Cipher interface {
	// Name returns the algorithm name, e.g. "A128GCM".
	Name() string

	// Seal encrypts plaintext into dst and writes the tag into tag.
	// dst must be exactly len(plaintext) bytes and tag TagSize bytes.
	Seal(key, plaintext, aad, dst, tag []byte) error

	// Open verifies tag and decrypts ciphertext into dst. dst is left
	// untouched when verification fails.
	Open(key, ciphertext, aad, tag, dst []byte) error
}

// AESGCM is AES-128-GCM with an all-zero IV.
type AESGCM struct {
	nonce [NonceSize]byte
}

var _ Cipher = (*AESGCM)(nil)

// NewAESGCM returns the default node cipher.
func NewAESGCM() *AESGCM {
	return &AESGCM{}
}

// Name implements Cipher.
func (a *AESGCM) Name() string {
	return AES128GCM
}

func (a *AESGCM) gcm(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeySize, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aead: failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal implements Cipher.
func (a *AESGCM) Seal(key, plaintext, aad, dst, tag []byte) error {
	if len(dst) != len(plaintext) {
		return fmt.Errorf("%w: output %d bytes, input %d bytes", ErrInvalidLength, len(dst), len(plaintext))
	}
	if len(tag) != TagSize {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidTagSize, len(tag))
	}
	g, err := a.gcm(key)
	if err != nil {
		return err
	}
	sealed := g.Seal(nil, a.nonce[:], plaintext, aad)
	copy(dst, sealed[:len(plaintext)])
	copy(tag, sealed[len(plaintext):])
	clear(sealed)
	return nil
}

// Open implements Cipher.
func (a *AESGCM) Open(key, ciphertext, aad, tag, dst []byte) error {
	if len(dst) != len(ciphertext) {
		return fmt.Errorf("%w: output %d bytes, input %d bytes", ErrInvalidLength, len(dst), len(ciphertext))
	}
	if len(tag) != TagSize {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidTagSize, len(tag))
	}
	g, err := a.gcm(key)
	if err != nil {
		return err
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plain, err := g.Open(sealed[:0], a.nonce[:], sealed, aad)
	if err != nil {
		return ErrAuthentication
	}
	copy(dst, plain)
	clear(plain)
	return nil
}

// EqualTags compares two tags in constant time.
func EqualTags(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
