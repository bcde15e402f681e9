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

package lru

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(c *Cache[int, string]) []int {
	var out []int
	c.Range(func(k int, _ string) bool {
		out = append(out, k)
		return true
	})
	return out
}

func TestPutGetOrder(t *testing.T) {
	c := New[int, string](3)
	c.Put(1, "a")
	c.Put(2, "b")
	c.Put(3, "c")
	assert.Equal(t, []int{3, 2, 1}, keys(c))

	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, []int{1, 3, 2}, keys(c))

	_, ok = c.Get(9)
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestPeekDoesNotReorder(t *testing.T) {
	c := New[int, string](3)
	c.Put(1, "a")
	c.Put(2, "b")

	v, ok := c.Peek(1)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, []int{2, 1}, keys(c))
	assert.Equal(t, int64(0), c.Stats().Hits)
}

func TestPutNeverEvicts(t *testing.T) {
	c := New[int, string](2)
	c.Put(1, "a")
	c.Put(2, "b")
	assert.False(t, c.Overfull())

	c.Put(3, "c")
	assert.True(t, c.Overfull())
	assert.Equal(t, 3, c.Len())

	k, v, ok := c.Oldest()
	require.True(t, ok)
	assert.Equal(t, 1, k)
	assert.Equal(t, "a", v)

	k, _, ok = c.RemoveOldest()
	require.True(t, ok)
	assert.Equal(t, 1, k)
	assert.False(t, c.Overfull())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestReplaceMovesToFront(t *testing.T) {
	c := New[int, string](3)
	c.Put(1, "a")
	c.Put(2, "b")
	c.Put(1, "A")

	assert.Equal(t, []int{1, 2}, keys(c))
	v, _ := c.Peek(1)
	assert.Equal(t, "A", v)
	assert.Equal(t, 2, c.Len())
}

func TestTouchRemoveClear(t *testing.T) {
	c := New[int, string](3)
	c.Put(1, "a")
	c.Put(2, "b")

	assert.True(t, c.Touch(1))
	assert.False(t, c.Touch(5))
	assert.Equal(t, []int{1, 2}, keys(c))

	assert.True(t, c.Remove(1))
	assert.False(t, c.Remove(1))
	assert.False(t, c.Contains(1))
	assert.True(t, c.Contains(2))

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, _, ok := c.Oldest()
	assert.False(t, ok)
	_, _, ok = c.RemoveOldest()
	assert.False(t, ok)
}

func TestRangeStops(t *testing.T) {
	c := New[int, string](5)
	for i := 0; i < 5; i++ {
		c.Put(i, "")
	}
	seen := 0
	c.Range(func(int, string) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)
}

func TestMinimumCapacity(t *testing.T) {
	c := New[string, int](0)
	assert.Equal(t, 1, c.Capacity())
	assert.Equal(t, 0.0, c.Stats().HitRate())
}
