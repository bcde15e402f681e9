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

package kdf

import (
	"fmt"
	"sync/atomic"
)

// DefaultMasterKeyUses is the number of node keys derived from one session
// master key before it has to be rotated.
const DefaultMasterKeyUses = 65536

// UsageTracker counts how many times a key has been used and enforces a
// rotation limit.
//
// Thread-safe: All operations use atomic operations for concurrent safety.
type UsageTracker struct {
	enabled bool
	uses    atomic.Int64
	limit   int64
}

// NewUsageTracker creates a tracker with the given limit.
// If limit is 0, uses DefaultMasterKeyUses.
func NewUsageTracker(enabled bool, limit int64) *UsageTracker {
	if limit == 0 {
		limit = DefaultMasterKeyUses
	}
	return &UsageTracker{
		enabled: enabled,
		limit:   limit,
	}
}

// CheckAndIncrement records one use. It returns ErrUsageLimit without
// counting the use when the limit has already been reached.
func (ut *UsageTracker) CheckAndIncrement() error {
	if !ut.enabled {
		return nil
	}

	n := ut.uses.Add(1)
	if n > ut.limit {
		ut.uses.Add(-1)
		return fmt.Errorf("%w: %d uses, limit %d", ErrUsageLimit, n-1, ut.limit)
	}
	return nil
}

// Uses returns the number of recorded uses. Returns 0 if tracking is disabled.
func (ut *UsageTracker) Uses() int64 {
	if !ut.enabled {
		return 0
	}
	return ut.uses.Load()
}

// Remaining returns how many uses are left. Returns -1 if tracking is disabled.
func (ut *UsageTracker) Remaining() int64 {
	if !ut.enabled {
		return -1
	}
	remaining := ut.limit - ut.uses.Load()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset sets the counter back to zero. Call after rotating the key.
func (ut *UsageTracker) Reset() {
	ut.uses.Store(0)
}

// Limit returns the configured limit.
func (ut *UsageTracker) Limit() int64 {
	return ut.limit
}

// IsEnabled returns whether tracking is active.
func (ut *UsageTracker) IsEnabled() bool {
	return ut.enabled
}
