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
	"sync"
)

// newAutoResolver picks the first available hardware source and falls back
// to software. Preference order: PKCS#11 > TPM2 > Software
func newAutoResolver(cfg *Config) Resolver {
	if pkcs11Available() && cfg.PKCS11Config != nil {
		if r, err := newPKCS11Resolver(cfg.PKCS11Config); err == nil {
			if r.Available() {
				return r
			}
			_ = r.Close()
		}
	}

	if tpm2Available() {
		if r, err := newTPM2Resolver(cfg.TPM2Config); err == nil {
			if r.Available() {
				return r
			}
			_ = r.Close()
		}
	}

	return NewSoftwareResolver()
}

// fallbackResolver serves requests from primary and retries failed ones on
// fallback.
type fallbackResolver struct {
	primary  Resolver
	fallback Resolver
	mu       sync.RWMutex
	closed   bool
}

var _ Resolver = (*fallbackResolver)(nil)

func newFallbackResolver(primary, fallback Resolver) *fallbackResolver {
	return &fallbackResolver{
		primary:  primary,
		fallback: fallback,
	}
}

func (f *fallbackResolver) Rand(n int) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	result, err := f.primary.Rand(n)
	if err != nil || len(result) != n {
		return f.fallback.Rand(n)
	}
	return result, nil
}

func (f *fallbackResolver) Read(p []byte) (int, error) {
	return readInto(f, p)
}

func (f *fallbackResolver) Mode() Mode {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.primary.Available() {
		return f.primary.Mode()
	}
	return f.fallback.Mode()
}

func (f *fallbackResolver) Available() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return false
	}
	return f.primary.Available() || f.fallback.Available()
}

func (f *fallbackResolver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	_ = f.primary.Close()
	_ = f.fallback.Close()
	return nil
}
