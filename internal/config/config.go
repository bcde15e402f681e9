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

// Package config loads the YAML configuration of the pfs tool.
package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/kdf"
	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/rand"
	"github.com/jeremyhahn/go-protectedfs/pkg/pfs"
)

// Config represents the complete tool configuration
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Storage  StorageConfig  `yaml:"storage"`
	Keys     KeysConfig     `yaml:"keys"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Cache    CacheConfig    `yaml:"cache"`
	Random   RandomConfig   `yaml:"random"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// Debug turns on per-node diagnostics of the engine
	Debug bool `yaml:"debug"`
}

// StorageConfig locates protected files
type StorageConfig struct {
	Root string `yaml:"root"`
}

// KeysConfig supplies the key-derivation key. Exactly one source is used;
// the file takes precedence.
type KeysConfig struct {
	KDKFile string `yaml:"kdk_file"` // raw 16 bytes or 32 hex characters
	KDKHex  string `yaml:"kdk_hex"`
}

// RecoveryConfig controls the recovery log
type RecoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Suffix  string `yaml:"suffix"`
}

// CacheConfig tunes the engine
type CacheConfig struct {
	Size          int   `yaml:"size"`
	MasterKeyUses int64 `yaml:"master_key_uses"`
}

// RandomConfig selects the random source
type RandomConfig struct {
	Mode         string `yaml:"mode"`          // auto, software, tpm2, pkcs11
	FallbackMode string `yaml:"fallback_mode"` // used when the primary cannot serve

	TPM2Device   string `yaml:"tpm2_device"`
	PKCS11Module string `yaml:"pkcs11_module"`
	PKCS11Slot   uint   `yaml:"pkcs11_slot"`
	PKCS11PIN    string `yaml:"pkcs11_pin"`
}

// MetricsConfig controls the metrics textfile
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Root: ".",
		},
		Recovery: RecoveryConfig{
			Enabled: true,
			Suffix:  pfs.RecoverySuffix,
		},
		Cache: CacheConfig{
			Size:          pfs.DefaultCacheSize,
			MasterKeyUses: kdf.DefaultMasterKeyUses,
		},
		Random: RandomConfig{
			Mode:       string(rand.ModeSoftware),
			TPM2Device: "/dev/tpmrm0",
		},
	}
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides. An empty path loads the defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by the user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Logging
	if level := os.Getenv("PFS_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PFS_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Storage
	if root := os.Getenv("PFS_ROOT"); root != "" {
		cfg.Storage.Root = root
	}

	// Keys. Setting one source clears the other so the environment always wins.
	if kdkFile := os.Getenv("PFS_KDK_FILE"); kdkFile != "" {
		cfg.Keys.KDKFile = kdkFile
		cfg.Keys.KDKHex = ""
	}
	if kdkHex := os.Getenv("PFS_KDK_HEX"); kdkHex != "" {
		cfg.Keys.KDKHex = kdkHex
		cfg.Keys.KDKFile = ""
	}

	// Recovery
	if recovery := os.Getenv("PFS_RECOVERY"); recovery != "" {
		enabled, err := strconv.ParseBool(recovery)
		if err != nil {
			log.Printf("Warning: invalid PFS_RECOVERY value %q, keeping %t: %v",
				recovery, cfg.Recovery.Enabled, err)
		} else {
			cfg.Recovery.Enabled = enabled
		}
	}

	// Random source
	if mode := os.Getenv("PFS_RNG_MODE"); mode != "" {
		cfg.Random.Mode = mode
	}
	if module := os.Getenv("PKCS11_LIBRARY"); module != "" {
		cfg.Random.PKCS11Module = module
	}
	if device := os.Getenv("TPM_DEVICE_PATH"); device != "" {
		cfg.Random.TPM2Device = device
	}

	// Metrics
	if textfile := os.Getenv("PFS_METRICS_FILE"); textfile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = textfile
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage root must be specified")
	}

	if c.Keys.KDKHex != "" {
		if _, err := c.decodeHexKDK(); err != nil {
			return err
		}
	}

	if c.Recovery.Enabled && c.Recovery.Suffix == "" {
		return fmt.Errorf("recovery suffix is required when recovery is enabled")
	}

	if c.Cache.Size != 0 && c.Cache.Size < pfs.MinCacheSize {
		return fmt.Errorf("cache size %d is below the minimum of %d", c.Cache.Size, pfs.MinCacheSize)
	}
	if c.Cache.MasterKeyUses < 0 {
		return fmt.Errorf("master_key_uses must not be negative")
	}

	if _, err := rand.ParseMode(c.Random.Mode); err != nil {
		return fmt.Errorf("invalid random mode: %w", err)
	}
	if c.Random.FallbackMode != "" {
		if _, err := rand.ParseMode(c.Random.FallbackMode); err != nil {
			return fmt.Errorf("invalid random fallback mode: %w", err)
		}
	}

	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics textfile is required when metrics are enabled")
	}
	return nil
}

// KDK returns the configured key-derivation key.
func (c *Config) KDK() ([]byte, error) {
	switch {
	case c.Keys.KDKFile != "":
		// #nosec G304 - Key file path is provided by the user
		data, err := os.ReadFile(c.Keys.KDKFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read KDK file: %w", err)
		}
		if len(data) == pfs.KDKSize {
			return data, nil
		}
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(key) != pfs.KDKSize {
			return nil, fmt.Errorf("KDK file must hold %d raw bytes or %d hex characters", pfs.KDKSize, 2*pfs.KDKSize)
		}
		return key, nil
	case c.Keys.KDKHex != "":
		return c.decodeHexKDK()
	default:
		return nil, fmt.Errorf("no KDK configured (set keys.kdk_file, keys.kdk_hex, PFS_KDK_FILE or PFS_KDK_HEX)")
	}
}

func (c *Config) decodeHexKDK() ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(c.Keys.KDKHex))
	if err != nil || len(key) != pfs.KDKSize {
		return nil, fmt.Errorf("kdk_hex must be %d hex characters", 2*pfs.KDKSize)
	}
	return key, nil
}

// RandConfig converts the random settings for rand.NewResolver
func (c *Config) RandConfig() *rand.Config {
	mode, _ := rand.ParseMode(c.Random.Mode)
	rc := &rand.Config{
		Mode: mode,
		TPM2Config: &rand.TPM2Config{
			Device: c.Random.TPM2Device,
		},
	}
	if c.Random.FallbackMode != "" {
		rc.FallbackMode, _ = rand.ParseMode(c.Random.FallbackMode)
	}
	if c.Random.PKCS11Module != "" {
		rc.PKCS11Config = &rand.PKCS11Config{
			Module: c.Random.PKCS11Module,
			SlotID: c.Random.PKCS11Slot,
			PIN:    c.Random.PKCS11PIN,
		}
	}
	return rc
}
