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

package file

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	fs, err := New(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestNew(t *testing.T) {
	t.Run("empty root", func(t *testing.T) {
		_, err := New("")
		assert.Error(t, err)
	})

	t.Run("creates root", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "root")
		fs, err := New(dir)
		require.NoError(t, err)
		info, err := os.Stat(fs.Root())
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestCreateWriteReopen(t *testing.T) {
	fs := newTestStorage(t)

	h, err := fs.Create("data.pfs")
	require.NoError(t, err)
	require.NoError(t, storage.WriteFull(h, []byte("protected"), 0))
	require.NoError(t, h.Sync())
	size, err := h.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(9), size)
	require.NoError(t, h.Close())

	h, err = fs.Open("data.pfs")
	require.NoError(t, err)
	defer h.Close()

	buf := make([]byte, 9)
	require.NoError(t, storage.ReadFull(h, buf, 0))
	assert.Equal(t, "protected", string(buf))

	require.NoError(t, h.Truncate(4))
	size, err = h.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}

func TestCreateTruncatesExisting(t *testing.T) {
	fs := newTestStorage(t)
	require.NoError(t, os.WriteFile(filepath.Join(fs.Root(), "a"), []byte("old"), 0600))

	h, err := fs.Create("a")
	require.NoError(t, err)
	defer h.Close()

	size, err := h.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestOpenMissing(t *testing.T) {
	fs := newTestStorage(t)
	_, err := fs.Open("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = fs.OpenReadOnly("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRemoveAndExists(t *testing.T) {
	fs := newTestStorage(t)

	h, err := fs.Create("sub/dir/file")
	require.NoError(t, err)
	require.NoError(t, h.Close())

	ok, err := fs.Exists("sub/dir/file")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fs.Remove("sub/dir/file"))
	ok, err = fs.Exists("sub/dir/file")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, fs.Remove("sub/dir/file"), storage.ErrNotFound)
}

func TestInvalidNames(t *testing.T) {
	fs := newTestStorage(t)

	for _, name := range []string{"", "/etc/passwd", "../escape", "a/../../escape", "."} {
		t.Run(name, func(t *testing.T) {
			_, err := fs.Create(name)
			assert.ErrorIs(t, err, storage.ErrInvalidName)
		})
	}
}

func TestExclusiveLock(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locks are unix only")
	}
	fs := newTestStorage(t)

	h, err := fs.Create("locked")
	require.NoError(t, err)

	_, err = fs.Open("locked")
	assert.ErrorIs(t, err, storage.ErrLocked)

	require.NoError(t, h.Close())
	h2, err := fs.Open("locked")
	require.NoError(t, err)
	require.NoError(t, h2.Close())
}

func TestClosed(t *testing.T) {
	fs := newTestStorage(t)

	h, err := fs.Create("a")
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Close(), storage.ErrClosed)
	_, err = h.WriteAt([]byte{1}, 0)
	assert.ErrorIs(t, err, storage.ErrClosed)

	require.NoError(t, fs.Close())
	_, err = fs.Open("a")
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, fs.Close(), storage.ErrClosed)
}
