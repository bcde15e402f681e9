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

package cli

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-protectedfs/internal/config"
	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/rand"
	"github.com/jeremyhahn/go-protectedfs/pkg/journal"
	"github.com/jeremyhahn/go-protectedfs/pkg/logging"
	"github.com/jeremyhahn/go-protectedfs/pkg/metrics"
	"github.com/jeremyhahn/go-protectedfs/pkg/pfs"
	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
	"github.com/jeremyhahn/go-protectedfs/pkg/storage/file"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// Root overrides storage.root
	Root string

	// KDKFile and KDKHex override the configured key source
	KDKFile string
	KDKHex  string

	// NoRecovery disables the recovery log
	NoRecovery bool

	// OutputFormat controls output formatting (json, text)
	OutputFormat string

	// Verbose enables debug logging
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
	}
}

// load reads the configuration file and applies the flag overrides on top.
func (c *Config) load() (*config.Config, error) {
	cfg, err := config.Load(c.ConfigFile)
	if err != nil {
		return nil, err
	}
	if c.Root != "" {
		cfg.Storage.Root = c.Root
	}
	if c.KDKFile != "" {
		cfg.Keys.KDKFile = c.KDKFile
		cfg.Keys.KDKHex = ""
	}
	if c.KDKHex != "" {
		cfg.Keys.KDKHex = c.KDKHex
		cfg.Keys.KDKFile = ""
	}
	if c.NoRecovery {
		cfg.Recovery.Enabled = false
	}
	if c.Verbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// session is one protected file opened by a command together with the
// resources backing it.
type session struct {
	cfg    *config.Config
	store  *file.FileStorage
	handle storage.Handle
	rng    rand.Resolver
	log    *logging.Logger
	name   string

	*pfs.File
}

// openSession opens the protected file name under the configured root. A
// missing file is created when create is set.
func (c *Config) openSession(name string, mode pfs.Mode, create bool) (*session, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, name: name}
	if err := s.init(mode, create); err != nil {
		s.release()
		return nil, err
	}
	return s, nil
}

func (s *session) init(mode pfs.Mode, create bool) error {
	var err error
	cfg := s.cfg

	s.log, err = logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: logging.Format(cfg.Logging.Format),
	})
	if err != nil {
		return err
	}
	if !cfg.Metrics.Enabled {
		metrics.Disable()
	}

	kdk, err := cfg.KDK()
	if err != nil {
		return err
	}
	defer clear(kdk)

	if s.store, err = file.New(cfg.Storage.Root); err != nil {
		return err
	}
	if s.handle, err = s.openHandle(mode, create); err != nil {
		return err
	}
	if s.rng, err = rand.NewResolver(cfg.RandConfig()); err != nil {
		return fmt.Errorf("failed to create random source: %w", err)
	}

	s.File, err = pfs.Open(&pfs.Config{
		Name:           s.name,
		Mode:           mode,
		Create:         create,
		Handle:         s.handle,
		KDK:            kdk,
		EnableRecovery: cfg.Recovery.Enabled,
		RecoveryName:   s.recoveryName(),
		RecoveryStore:  s.store,
		Logger:         s.log,
		Debug:          cfg.Logging.Debug,
		Random:         s.rng,
		CacheSize:      cfg.Cache.Size,
		MasterKeyUses:  cfg.Cache.MasterKeyUses,
	})
	if errors.Is(err, pfs.ErrRecovery) && mode == pfs.ModeRead {
		return fmt.Errorf("%w (run \"pfs recover %s\" first)", err, s.name)
	}
	return err
}

func (s *session) openHandle(mode pfs.Mode, create bool) (storage.Handle, error) {
	if mode == pfs.ModeRead {
		return s.store.OpenReadOnly(s.name)
	}
	h, err := s.store.Open(s.name)
	if errors.Is(err, storage.ErrNotFound) && create {
		return s.store.Create(s.name)
	}
	return h, err
}

func (s *session) recoveryName() string {
	return s.name + s.cfg.Recovery.Suffix
}

// hasRecoveryLog reports whether a recovery artifact is present.
func (s *session) hasRecoveryLog() (bool, error) {
	return journal.Exists(s.store, s.recoveryName())
}

// close ends the protected file session, then releases the host resources.
func (s *session) close() error {
	var err error
	if s.File != nil {
		err = s.File.Close()
	}
	return errors.Join(err, s.release())
}

func (s *session) release() error {
	var errs []error
	if s.handle != nil {
		if err := s.handle.Close(); err != nil {
			errs = append(errs, err)
		}
		s.handle = nil
	}
	if s.rng != nil {
		s.log.MaybeError(s.rng.Close())
		s.rng = nil
	}
	if s.store != nil {
		s.log.MaybeError(s.store.Close())
		s.store = nil
	}
	if s.cfg != nil && s.cfg.Metrics.Enabled {
		if err := metrics.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withStore runs fn against the configured storage root without opening a
// protected file session.
func (c *Config) withStore(fn func(cfg *config.Config, store *file.FileStorage) error) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	store, err := file.New(cfg.Storage.Root)
	if err != nil {
		return err
	}
	return errors.Join(fn(cfg, store), store.Close())
}
