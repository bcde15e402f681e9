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

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
	"github.com/jeremyhahn/go-protectedfs/pkg/storage/memory"
)

const testName = "secret.pfs"

var testRecoveryName = testName + RecoverySuffix

type fixture struct {
	store *memory.Storage
	kdk   []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		store: memory.New(),
		kdk:   bytes.Repeat([]byte{0x42}, KDKSize),
	}
}

// handle returns a handle on the protected file, creating an empty one if
// it does not exist yet.
func (fx *fixture) handle(t *testing.T, name string) storage.Handle {
	t.Helper()
	h, err := fx.store.Open(name)
	if errors.Is(err, storage.ErrNotFound) {
		h, err = fx.store.Create(name)
	}
	require.NoError(t, err)
	return h
}

func (fx *fixture) config(t *testing.T, mode Mode, opts ...func(*Config)) *Config {
	t.Helper()
	cfg := &Config{
		Name:           testName,
		Mode:           mode,
		Create:         mode.writable(),
		KDK:            fx.kdk,
		EnableRecovery: true,
		RecoveryStore:  fx.store,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Handle == nil {
		cfg.Handle = fx.handle(t, cfg.Name)
	}
	return cfg
}

func (fx *fixture) open(t *testing.T, mode Mode, opts ...func(*Config)) (*File, error) {
	t.Helper()
	return Open(fx.config(t, mode, opts...))
}

func (fx *fixture) mustOpen(t *testing.T, mode Mode, opts ...func(*Config)) *File {
	t.Helper()
	f, err := fx.open(t, mode, opts...)
	require.NoError(t, err)
	return f
}

// write creates or overwrites the file with data and closes it.
func (fx *fixture) write(t *testing.T, data []byte, opts ...func(*Config)) {
	t.Helper()
	f := fx.mustOpen(t, ModeReadWrite, opts...)
	n, err := f.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, f.Close())
}

// read opens the file read-only and returns its whole contents.
func (fx *fixture) read(t *testing.T, opts ...func(*Config)) []byte {
	t.Helper()
	f := fx.mustOpen(t, ModeRead, opts...)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return data
}

func (fx *fixture) hostSize(t *testing.T) int64 {
	t.Helper()
	data, err := fx.store.Bytes(testName)
	require.NoError(t, err)
	return int64(len(data))
}

func withoutRecovery(c *Config) {
	c.EnableRecovery = false
}

func withName(name string) func(*Config) {
	return func(c *Config) {
		c.Name = name
		c.RecoveryName = ""
	}
}

func randomBytes(seed uint64, n int) []byte {
	r := rand.New(rand.NewSource(int64(seed ^ 0x9e3779b97f4a7c15)))
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.Uint32())
	}
	return out
}
