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

import (
	"encoding/hex"
	"sync"
)

// KeyTracker records every key used for sealing and rejects a repeat.
//
// The node cipher uses a fixed IV, so uniqueness of the key is the only thing
// standing between a caller and GCM nonce reuse. Keys are fresh random
// derivations and a collision means a broken random source or a logic error.
//
// Memory grows with each Seal. Callers bound it by calling Clear whenever the
// key that the tracked keys were derived from is rotated.
type KeyTracker struct {
	enabled bool
	keys    map[string]struct{}
	mu      sync.RWMutex
}

// NewKeyTracker creates a new key tracker. A disabled tracker accepts every key.
func NewKeyTracker(enabled bool) *KeyTracker {
	return &KeyTracker{
		enabled: enabled,
		keys:    make(map[string]struct{}),
	}
}

// CheckAndRecord returns ErrKeyReuse if key was recorded before, otherwise
// it records the key.
func (kt *KeyTracker) CheckAndRecord(key []byte) error {
	if !kt.enabled {
		return nil
	}

	id := hex.EncodeToString(key)

	kt.mu.Lock()
	defer kt.mu.Unlock()

	if _, exists := kt.keys[id]; exists {
		return ErrKeyReuse
	}
	kt.keys[id] = struct{}{}
	return nil
}

// Contains checks if a key has been recorded without recording it.
func (kt *KeyTracker) Contains(key []byte) bool {
	if !kt.enabled {
		return false
	}

	id := hex.EncodeToString(key)

	kt.mu.RLock()
	defer kt.mu.RUnlock()

	_, exists := kt.keys[id]
	return exists
}

// Count returns the number of keys tracked.
func (kt *KeyTracker) Count() int {
	if !kt.enabled {
		return 0
	}

	kt.mu.RLock()
	defer kt.mu.RUnlock()

	return len(kt.keys)
}

// Clear forgets all recorded keys. Only call it after rotating the key the
// recorded keys were derived from.
func (kt *KeyTracker) Clear() {
	if !kt.enabled {
		return
	}

	kt.mu.Lock()
	defer kt.mu.Unlock()

	kt.keys = make(map[string]struct{})
}

// IsEnabled returns whether tracking is active.
func (kt *KeyTracker) IsEnabled() bool {
	return kt.enabled
}
