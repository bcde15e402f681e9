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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-protectedfs/pkg/journal"
	"github.com/jeremyhahn/go-protectedfs/pkg/logging"
	"github.com/jeremyhahn/go-protectedfs/pkg/metrics"
	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

// replayRecoveryLog applies a leftover recovery log to the protected file
// before it is opened. It reports whether a log was replayed.
//
// A log that is torn or fails its checksum was never complete, which means
// the commit it belonged to never touched the protected file. Such a log is
// discarded. A complete log is always replayed: the protected file may hold
// any prefix of its images.
func replayRecoveryLog(cfg *Config, log *logging.Logger) (bool, error) {
	j, err := journal.Read(cfg.RecoveryStore, cfg.RecoveryName)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	case errors.Is(err, journal.ErrTorn), errors.Is(err, journal.ErrChecksum), errors.Is(err, journal.ErrFormat):
		log.Warn("discarding incomplete recovery log", "artifact", cfg.RecoveryName, "error", err)
		metrics.RecordRecovery(metrics.RecoveryDiscarded)
		if cfg.Mode.writable() {
			if err := journal.Remove(cfg.RecoveryStore, cfg.RecoveryName); err != nil {
				log.Warn("failed to remove recovery log", "artifact", cfg.RecoveryName, "error", err)
			}
		}
		return false, nil
	default:
		metrics.RecordRecovery(metrics.RecoveryFailed)
		return false, fmt.Errorf("%w: %w", ErrRecovery, err)
	}

	if !cfg.Mode.writable() {
		metrics.RecordRecovery(metrics.RecoveryFailed)
		return false, fmt.Errorf("%w: recovery log %q needs a writable session", ErrRecovery, cfg.RecoveryName)
	}
	if j.Manifest.NodeSize != NodeSize {
		metrics.RecordRecovery(metrics.RecoveryFailed)
		return false, fmt.Errorf("%w: recovery log node size %d", ErrRecovery, j.Manifest.NodeSize)
	}
	if j.Manifest.Name != cfg.Name {
		metrics.RecordRecovery(metrics.RecoveryFailed)
		return false, fmt.Errorf("%w: recovery log belongs to %q", ErrRecovery, j.Manifest.Name)
	}

	if err := journal.Apply(cfg.Handle, j); err != nil {
		metrics.RecordRecovery(metrics.RecoveryFailed)
		return false, fmt.Errorf("%w: %w", ErrRecovery, err)
	}
	// Replaying twice is harmless, so a log that cannot be removed is only
	// replayed again on the next open.
	if err := journal.Remove(cfg.RecoveryStore, cfg.RecoveryName); err != nil {
		log.Warn("failed to remove replayed recovery log", "artifact", cfg.RecoveryName, "error", err)
	}
	metrics.RecordRecovery(metrics.RecoveryReplayed)
	log.Info("replayed recovery log", "artifact", cfg.RecoveryName, "records", len(j.Records))
	return true, nil
}
