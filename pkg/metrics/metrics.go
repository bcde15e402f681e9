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

// Package metrics provides Prometheus instrumentation for protected-file
// sessions: node I/O, cache behavior, commits, recoveries and integrity
// failures.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all protected-file metrics
	Namespace = "pfs"

	// Label names
	LabelKind      = "kind"
	LabelEvent     = "event"
	LabelStatus    = "status"
	LabelOutcome   = "outcome"
	LabelDirection = "direction"

	// Node kinds
	KindMetadata = "metadata"
	KindMHT      = "mht"
	KindData     = "data"

	// Cache events
	CacheHit       = "hit"
	CacheMiss      = "miss"
	CacheEviction  = "eviction"
	CacheWriteBack = "writeback"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Recovery outcomes
	RecoveryReplayed  = "replayed"
	RecoveryDiscarded = "discarded"
	RecoveryFailed    = "failed"

	// Directions
	DirectionRead  = "read"
	DirectionWrite = "write"
)

var (
	// NodeReadsTotal counts nodes read and verified from the host file.
	NodeReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_reads_total",
			Help:      "Total number of nodes read from the host file by kind",
		},
		[]string{LabelKind},
	)

	// NodeWritesTotal counts node images written to the host file.
	NodeWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_writes_total",
			Help:      "Total number of nodes written to the host file by kind",
		},
		[]string{LabelKind},
	)

	// CacheEventsTotal counts node cache hits, misses, evictions and
	// write-backs (evictions that forced a commit).
	CacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Total number of node cache events by type",
		},
		[]string{LabelEvent},
	)

	// CommitsTotal counts commit attempts by status.
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commits_total",
			Help:      "Total number of commits by status",
		},
		[]string{LabelStatus},
	)

	// CommitDuration tracks the duration of commits in seconds.
	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "commit_duration_seconds",
			Help:      "Duration of commits in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// RecoveriesTotal counts recovery log handling at open.
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "recoveries_total",
			Help:      "Total number of recovery logs found at open by outcome",
		},
		[]string{LabelOutcome},
	)

	// IntegrityFailuresTotal counts authentication failures by node kind.
	IntegrityFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "integrity_failures_total",
			Help:      "Total number of node authentication failures by kind",
		},
		[]string{LabelKind},
	)

	// BytesTotal counts plaintext bytes moved through sessions.
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bytes_total",
			Help:      "Total plaintext bytes read or written by direction",
		},
		[]string{LabelDirection},
	)

	// OpenSessions tracks the number of open protected files.
	OpenSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "open_sessions",
			Help:      "Number of open protected-file sessions",
		},
	)

	// MasterKeyRotationsTotal counts session master key re-derivations.
	MasterKeyRotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "master_key_rotations_total",
			Help:      "Total number of session master key rotations",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordNodeRead records one node read of the given kind.
func RecordNodeRead(kind string) {
	if !enabled.Load() {
		return
	}
	NodeReadsTotal.WithLabelValues(kind).Inc()
}

// RecordNodeWrite records one node write of the given kind.
func RecordNodeWrite(kind string) {
	if !enabled.Load() {
		return
	}
	NodeWritesTotal.WithLabelValues(kind).Inc()
}

// RecordCacheEvent records a node cache event.
func RecordCacheEvent(event string) {
	if !enabled.Load() {
		return
	}
	CacheEventsTotal.WithLabelValues(event).Inc()
}

// RecordCommit records a commit with its duration in seconds.
func RecordCommit(err error, duration float64) {
	if !enabled.Load() {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	CommitsTotal.WithLabelValues(status).Inc()
	CommitDuration.Observe(duration)
}

// RecordRecovery records the outcome of handling a recovery log.
func RecordRecovery(outcome string) {
	if !enabled.Load() {
		return
	}
	RecoveriesTotal.WithLabelValues(outcome).Inc()
}

// RecordIntegrityFailure records a node that failed authentication.
func RecordIntegrityFailure(kind string) {
	if !enabled.Load() {
		return
	}
	IntegrityFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordBytes records n plaintext bytes moved in direction.
func RecordBytes(direction string, n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	BytesTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordMasterKeyRotation records a master key re-derivation.
func RecordMasterKeyRotation() {
	if !enabled.Load() {
		return
	}
	MasterKeyRotationsTotal.Inc()
}

// SessionOpened increments the open session gauge.
func SessionOpened() {
	if !enabled.Load() {
		return
	}
	OpenSessions.Inc()
}

// SessionClosed decrements the open session gauge.
func SessionClosed() {
	if !enabled.Load() {
		return
	}
	OpenSessions.Dec()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
