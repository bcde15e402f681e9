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

// Package rand supplies the secure random collaborator for protected files:
// fresh node keys, derivation nonces, metadata key ids and the per-session
// master key seed all come from a Resolver.
//
// Sources:
//   - Software: crypto/rand
//   - TPM2: TPM2_GetRandom (build tag tpm2)
//   - PKCS11: C_GenerateRandom on an HSM slot (build tag pkcs11)
//   - Auto: the first available hardware source, else software
//
// A Config may name a FallbackMode that is used when the primary source
// fails a request. Resolvers are safe for concurrent use.
//
//	rng, err := rand.NewResolver(&rand.Config{Mode: rand.ModeAuto})
//	if err != nil {
//	    return err
//	}
//	defer rng.Close()
//	key := make([]byte, 16)
//	if err := rand.Fill(rng, key); err != nil {
//	    return err
//	}
package rand

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Mode specifies which RNG source to use.
type Mode string

const (
	// ModeAuto automatically selects the best available RNG.
	// Preference order: PKCS#11 > TPM2 > Software
	ModeAuto Mode = "auto"

	// ModeSoftware uses crypto/rand
	ModeSoftware Mode = "software"

	// ModeTPM2 uses Trusted Platform Module 2.0 hardware RNG
	ModeTPM2 Mode = "tpm2"

	// ModePKCS11 uses PKCS#11 hardware security module RNG
	ModePKCS11 Mode = "pkcs11"
)

var (
	// ErrUnavailable is returned when a source is not compiled in or cannot
	// be reached.
	ErrUnavailable = errors.New("rand: source unavailable")

	// ErrClosed is returned by a resolver after Close.
	ErrClosed = errors.New("rand: resolver closed")

	// ErrShortRead is returned when a source returns fewer bytes than requested.
	ErrShortRead = errors.New("rand: short read from source")

	// ErrUnknownMode is returned for an unrecognized mode name.
	ErrUnknownMode = errors.New("rand: unknown mode")
)

// ParseMode converts a configuration string to a Mode. The empty string
// selects ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeSoftware, ModeTPM2, ModePKCS11:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Config contains RNG configuration.
type Config struct {
	// Mode specifies the primary RNG source. Defaults to ModeAuto.
	Mode Mode

	// FallbackMode is used when the primary source fails a request.
	// If not specified, failures are returned as errors.
	FallbackMode Mode

	// TPM2Config contains TPM2-specific configuration. If nil, defaults are used.
	TPM2Config *TPM2Config

	// PKCS11Config contains PKCS#11-specific configuration.
	PKCS11Config *PKCS11Config
}

// TPM2Config contains configuration for TPM2 RNG.
type TPM2Config struct {
	// Device path to the TPM device (default: "/dev/tpm0")
	Device string

	// MaxRequestSize limits the bytes requested per TPM2_GetRandom call.
	// Default: 32
	MaxRequestSize int

	// UseSimulator connects to a TPM simulator over TCP instead of Device.
	UseSimulator bool

	// SimulatorHost defaults to "localhost"
	SimulatorHost string

	// SimulatorPort defaults to 2321 (standard SWTPM port)
	SimulatorPort int
}

// PKCS11Config contains configuration for PKCS#11 RNG.
type PKCS11Config struct {
	// Module path to the PKCS#11 library (e.g., /usr/lib/softhsm/libsofthsm2.so)
	Module string

	// SlotID specifies the PKCS#11 slot containing the RNG
	SlotID uint

	// PIN logs the session in as CKU_USER when not empty
	PIN string
}

// Source represents a random number generator.
type Source interface {
	// Rand returns n random bytes.
	Rand(n int) ([]byte, error)

	// Available returns true if this RNG source is available and ready.
	Available() bool

	// Close closes the RNG and releases any resources.
	Close() error
}

// Resolver is a Source that also implements io.Reader and reports the mode
// that actually serves requests.
type Resolver interface {
	Source
	io.Reader

	// Mode returns the mode of the source serving requests.
	Mode() Mode
}

// NewResolver creates a resolver for cfg. A nil cfg selects ModeAuto.
func NewResolver(cfg *Config) (Resolver, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeAuto
	}

	var (
		primary Resolver
		err     error
	)
	switch mode {
	case ModeAuto:
		primary = newAutoResolver(cfg)
	case ModeSoftware:
		primary = NewSoftwareResolver()
	case ModeTPM2:
		primary, err = newTPM2Resolver(cfg.TPM2Config)
	case ModePKCS11:
		primary, err = newPKCS11Resolver(cfg.PKCS11Config)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if cfg.FallbackMode == "" || cfg.FallbackMode == mode {
		return primary, err
	}

	fallback, ferr := NewResolver(&Config{
		Mode:         cfg.FallbackMode,
		TPM2Config:   cfg.TPM2Config,
		PKCS11Config: cfg.PKCS11Config,
	})
	if ferr != nil {
		if primary != nil {
			_ = primary.Close()
		}
		return nil, fmt.Errorf("rand: fallback %s: %w", cfg.FallbackMode, ferr)
	}
	// An unreachable primary leaves the fallback serving alone
	if err != nil {
		return fallback, nil
	}
	return newFallbackResolver(primary, fallback), nil
}

// Fill fills p from src and fails unless every byte was produced.
func Fill(src Source, p []byte) error {
	b, err := src.Rand(len(p))
	if err != nil {
		return err
	}
	if len(b) != len(p) {
		return fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, len(b), len(p))
	}
	copy(p, b)
	clear(b)
	return nil
}

// readInto implements io.Reader on top of a Source.
func readInto(src Source, p []byte) (int, error) {
	if err := Fill(src, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SoftwareResolver uses crypto/rand from the Go standard library.
type SoftwareResolver struct{}

var _ Resolver = (*SoftwareResolver)(nil)

// NewSoftwareResolver returns the crypto/rand resolver.
func NewSoftwareResolver() *SoftwareResolver {
	return &SoftwareResolver{}
}

func (s *SoftwareResolver) Rand(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *SoftwareResolver) Read(p []byte) (int, error) {
	return rand.Read(p)
}

func (s *SoftwareResolver) Mode() Mode {
	return ModeSoftware
}

func (s *SoftwareResolver) Available() bool {
	return true
}

func (s *SoftwareResolver) Close() error {
	return nil
}
