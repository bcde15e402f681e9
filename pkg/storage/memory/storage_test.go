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

package memory

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

func TestCreateOpenRemove(t *testing.T) {
	s := New()

	_, err := s.Open("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	h, err := s.Create("a")
	require.NoError(t, err)
	require.NoError(t, storage.WriteFull(h, []byte("hello"), 0))

	exists, err := s.Exists("a")
	require.NoError(t, err)
	assert.True(t, exists)

	h2, err := s.Open("a")
	require.NoError(t, err)
	buf := make([]byte, 5)
	require.NoError(t, storage.ReadFull(h2, buf, 0))
	assert.Equal(t, "hello", string(buf))

	require.NoError(t, s.Remove("a"))
	assert.ErrorIs(t, s.Remove("a"), storage.ErrNotFound)
	assert.Equal(t, []string{}, s.Names())
}

func TestCreateTruncates(t *testing.T) {
	s := New()
	s.SetBytes("a", []byte("previous contents"))

	h, err := s.Create("a")
	require.NoError(t, err)
	size, err := h.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestReadAtSemantics(t *testing.T) {
	s := New()
	h, err := s.Create("a")
	require.NoError(t, err)
	require.NoError(t, storage.WriteFull(h, []byte("abc"), 0))

	t.Run("short read returns EOF", func(t *testing.T) {
		buf := make([]byte, 5)
		n, err := h.ReadAt(buf, 1)
		assert.Equal(t, 2, n)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("ReadFull reports unexpected EOF", func(t *testing.T) {
		buf := make([]byte, 5)
		assert.ErrorIs(t, storage.ReadFull(h, buf, 0), io.ErrUnexpectedEOF)
	})

	t.Run("write past end grows file with zeros", func(t *testing.T) {
		require.NoError(t, storage.WriteFull(h, []byte("z"), 6))
		data, err := s.Bytes("a")
		require.NoError(t, err)
		assert.Equal(t, []byte{'a', 'b', 'c', 0, 0, 0, 'z'}, data)
	})
}

func TestFailWritesAfter(t *testing.T) {
	s := New()
	s.FailWritesAfter("a", 2)

	h, err := s.Create("a")
	require.NoError(t, err)

	require.NoError(t, storage.WriteFull(h, []byte("1"), 0))
	require.NoError(t, storage.WriteFull(h, []byte("2"), 1))
	assert.ErrorIs(t, storage.WriteFull(h, []byte("3"), 2), storage.ErrInjectedFault)
	assert.ErrorIs(t, storage.WriteFull(h, []byte("4"), 3), storage.ErrInjectedFault)

	data, err := s.Bytes("a")
	require.NoError(t, err)
	assert.Equal(t, "12", string(data))
	assert.Equal(t, 2, s.WriteCount("a"))

	s.ClearFaults()
	require.NoError(t, storage.WriteFull(h, []byte("3"), 2))
}

func TestFlipBit(t *testing.T) {
	s := New()
	s.SetBytes("a", []byte{0x00, 0x00})

	require.NoError(t, s.FlipBit("a", 1, 3))
	data, err := s.Bytes("a")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x08}, data)

	assert.Error(t, s.FlipBit("a", 5, 0))
	assert.ErrorIs(t, s.FlipBit("b", 0, 0), storage.ErrNotFound)
}

func TestClosed(t *testing.T) {
	s := New()
	h, err := s.Create("a")
	require.NoError(t, err)

	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Close(), storage.ErrClosed)
	_, err = h.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, storage.ErrClosed)

	require.NoError(t, s.Close())
	_, err = s.Create("b")
	assert.ErrorIs(t, err, storage.ErrClosed)
}
