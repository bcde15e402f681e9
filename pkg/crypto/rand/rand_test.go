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

package rand

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingResolver fails every request. It stands in for a hardware source
// that dropped off the bus.
type failingResolver struct {
	closed bool
}

func (f *failingResolver) Rand(n int) ([]byte, error) { return nil, errors.New("device gone") }
func (f *failingResolver) Read(p []byte) (int, error) { return readInto(f, p) }
func (f *failingResolver) Mode() Mode                 { return ModeTPM2 }
func (f *failingResolver) Available() bool            { return false }
func (f *failingResolver) Close() error {
	f.closed = true
	return nil
}

type shortSource struct{}

func (shortSource) Rand(n int) ([]byte, error) { return make([]byte, n/2), nil }
func (shortSource) Available() bool            { return true }
func (shortSource) Close() error               { return nil }

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{" Software ", ModeSoftware, false},
		{"TPM2", ModeTPM2, false},
		{"pkcs11", ModePKCS11, false},
		{"quantum", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSoftwareResolver(t *testing.T) {
	rng, err := NewResolver(&Config{Mode: ModeSoftware})
	require.NoError(t, err)
	defer rng.Close()

	assert.True(t, rng.Available())
	assert.Equal(t, ModeSoftware, rng.Mode())

	a, err := rng.Rand(32)
	require.NoError(t, err)
	b, err := rng.Rand(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.False(t, bytes.Equal(a, b))

	buf := make([]byte, 16)
	n, err := rng.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
}

func TestAutoResolverUsesSoftwareWithoutHardware(t *testing.T) {
	rng, err := NewResolver(nil)
	require.NoError(t, err)
	defer rng.Close()

	assert.True(t, rng.Available())
	if !tpm2Available() && !pkcs11Available() {
		assert.Equal(t, ModeSoftware, rng.Mode())
	}
}

func TestHardwareModesWithoutBuildTags(t *testing.T) {
	if !tpm2Available() {
		_, err := NewResolver(&Config{Mode: ModeTPM2})
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	if !pkcs11Available() {
		_, err := NewResolver(&Config{Mode: ModePKCS11})
		assert.ErrorIs(t, err, ErrUnavailable)
	}
}

func TestHardwareModeFallsBackToSoftware(t *testing.T) {
	if tpm2Available() {
		t.Skip("TPM2 support compiled in")
	}
	rng, err := NewResolver(&Config{Mode: ModeTPM2, FallbackMode: ModeSoftware})
	require.NoError(t, err)
	defer rng.Close()
	assert.Equal(t, ModeSoftware, rng.Mode())
}

func TestUnknownMode(t *testing.T) {
	_, err := NewResolver(&Config{Mode: "lava-lamp"})
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestFallbackResolver(t *testing.T) {
	primary := &failingResolver{}
	r := newFallbackResolver(primary, NewSoftwareResolver())

	got, err := r.Rand(24)
	require.NoError(t, err)
	assert.Len(t, got, 24)
	assert.Equal(t, ModeSoftware, r.Mode())
	assert.True(t, r.Available())

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	require.NoError(t, r.Close())
	assert.True(t, primary.closed)
	assert.False(t, r.Available())
	_, err = r.Rand(1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFill(t *testing.T) {
	p := make([]byte, 16)
	require.NoError(t, Fill(NewSoftwareResolver(), p))
	assert.NotEqual(t, make([]byte, 16), p)

	assert.ErrorIs(t, Fill(shortSource{}, make([]byte, 16)), ErrShortRead)

	_, err := readInto(&failingResolver{}, make([]byte, 4))
	assert.Error(t, err)
}
