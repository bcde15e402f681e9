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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyTrackerEnabled(t *testing.T) {
	tracker := NewKeyTracker(true)
	assert.True(t, tracker.IsEnabled())

	key := randomBytes(t, KeySize)
	require.NoError(t, tracker.CheckAndRecord(key))
	assert.ErrorIs(t, tracker.CheckAndRecord(key), ErrKeyReuse)
	assert.True(t, tracker.Contains(key))

	other := randomBytes(t, KeySize)
	assert.False(t, tracker.Contains(other))
	require.NoError(t, tracker.CheckAndRecord(other))
	assert.Equal(t, 2, tracker.Count())

	tracker.Clear()
	assert.Equal(t, 0, tracker.Count())
	require.NoError(t, tracker.CheckAndRecord(key))
}

func TestKeyTrackerDisabled(t *testing.T) {
	tracker := NewKeyTracker(false)
	assert.False(t, tracker.IsEnabled())

	key := randomBytes(t, KeySize)
	require.NoError(t, tracker.CheckAndRecord(key))
	require.NoError(t, tracker.CheckAndRecord(key))
	assert.False(t, tracker.Contains(key))
	assert.Equal(t, 0, tracker.Count())
}

func TestKeyTrackerConcurrent(t *testing.T) {
	tracker := NewKeyTracker(true)
	key := randomBytes(t, KeySize)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.CheckAndRecord(key) == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}
