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
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/aead"
	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/kdf"
	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/rand"
	"github.com/jeremyhahn/go-protectedfs/pkg/logging"
	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

// MinCacheSize is the smallest node cache that can hold a full path from the
// root to any data node alongside the node being fetched.
const MinCacheSize = 16

// RecoverySuffix is appended to Name to form the default recovery artifact.
const RecoverySuffix = "_recovery"

// Config describes one session on a protected file.
type Config struct {
	// Name is bound into the metadata. Opening a file under a different
	// name fails integrity verification, which stops a host from swapping
	// two protected files sealed with the same KDK.
	Name string

	Mode Mode

	// Create allows an empty host file to be initialized as a new
	// protected file. It requires a writable mode.
	Create bool

	// Handle is the host file. Close never closes it.
	Handle storage.Handle

	// KnownSize skips querying Handle for its size when positive.
	KnownSize int64

	// KDK is the caller's 16-byte key-derivation key. It is copied.
	KDK []byte

	// EnableRecovery writes a recovery log before every commit touches the
	// protected file, and replays a leftover log on open.
	EnableRecovery bool

	// RecoveryName is the artifact name in RecoveryStore. Defaults to
	// Name + RecoverySuffix.
	RecoveryName string

	// RecoveryStore holds the recovery artifact. Required with
	// EnableRecovery.
	RecoveryStore storage.Backend

	// Logger defaults to a discarding logger.
	Logger *logging.Logger

	// Debug emits per-node diagnostics at debug level.
	Debug bool

	// Cipher defaults to AES-128-GCM.
	Cipher aead.Cipher

	// PRF defaults to HKDF-SHA256.
	PRF kdf.PRF

	// Random defaults to the operating system CSPRNG.
	Random rand.Source

	// CacheSize is the node cache capacity. Defaults to DefaultCacheSize.
	CacheSize int

	// MasterKeyUses is the number of node keys derived from one master
	// key before it is rotated. Defaults to kdf.DefaultMasterKeyUses.
	MasterKeyUses int64
}

// withDefaults returns a copy of c with every unset optional field filled.
func (c *Config) withDefaults() Config {
	out := *c
	if out.RecoveryName == "" {
		out.RecoveryName = out.Name + RecoverySuffix
	}
	if out.Logger == nil {
		out.Logger = logging.Discard()
	}
	if out.Cipher == nil {
		out.Cipher = aead.NewAESGCM()
	}
	if out.PRF == nil {
		out.PRF = kdf.NewHKDF()
	}
	if out.Random == nil {
		out.Random = rand.NewSoftwareResolver()
	}
	if out.CacheSize == 0 {
		out.CacheSize = DefaultCacheSize
	}
	if out.MasterKeyUses == 0 {
		out.MasterKeyUses = kdf.DefaultMasterKeyUses
	}
	return out
}

// Validate checks the required fields of c.
func (c *Config) Validate() error {
	var problems []string
	if c.Name == "" {
		problems = append(problems, "name is required")
	}
	if len(c.Name) > MaxNameLength {
		problems = append(problems, fmt.Sprintf("name longer than %d bytes", MaxNameLength))
	}
	if !c.Mode.valid() {
		problems = append(problems, fmt.Sprintf("invalid mode %s", c.Mode))
	}
	if c.Create && !c.Mode.writable() {
		problems = append(problems, "create requires a writable mode")
	}
	if c.Handle == nil {
		problems = append(problems, "handle is required")
	}
	if len(c.KDK) != KDKSize {
		problems = append(problems, fmt.Sprintf("KDK must be %d bytes", KDKSize))
	}
	if c.EnableRecovery && c.RecoveryStore == nil {
		problems = append(problems, "recovery store is required when recovery is enabled")
	}
	if c.KnownSize < 0 {
		problems = append(problems, "known size is negative")
	}
	if c.CacheSize != 0 && c.CacheSize < MinCacheSize {
		problems = append(problems, fmt.Sprintf("cache size below %d", MinCacheSize))
	}
	if c.MasterKeyUses < 0 {
		problems = append(problems, "master key uses is negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrUsage, strings.Join(problems, "; "))
	}
	return nil
}
