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

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordNodeIO(t *testing.T) {
	Enable()
	NodeReadsTotal.Reset()
	NodeWritesTotal.Reset()

	RecordNodeRead(KindData)
	RecordNodeRead(KindData)
	RecordNodeRead(KindMHT)
	RecordNodeWrite(KindMetadata)

	if got := testutil.ToFloat64(NodeReadsTotal.WithLabelValues(KindData)); got != 2 {
		t.Errorf("Expected 2 data reads, got %v", got)
	}
	if got := testutil.ToFloat64(NodeReadsTotal.WithLabelValues(KindMHT)); got != 1 {
		t.Errorf("Expected 1 mht read, got %v", got)
	}
	if got := testutil.ToFloat64(NodeWritesTotal.WithLabelValues(KindMetadata)); got != 1 {
		t.Errorf("Expected 1 metadata write, got %v", got)
	}
}

func TestRecordCommit(t *testing.T) {
	Enable()
	CommitsTotal.Reset()

	RecordCommit(nil, 0.002)
	RecordCommit(errors.New("flush failed"), 0.004)
	RecordCommit(nil, 0.001)

	if got := testutil.ToFloat64(CommitsTotal.WithLabelValues(StatusSuccess)); got != 2 {
		t.Errorf("Expected 2 successful commits, got %v", got)
	}
	if got := testutil.ToFloat64(CommitsTotal.WithLabelValues(StatusError)); got != 1 {
		t.Errorf("Expected 1 failed commit, got %v", got)
	}
}

func TestDisabledRecordsNothing(t *testing.T) {
	Enable()
	CacheEventsTotal.Reset()
	BytesTotal.Reset()

	Disable()
	defer Enable()

	RecordCacheEvent(CacheHit)
	RecordBytes(DirectionRead, 4096)
	if count := testutil.CollectAndCount(CacheEventsTotal); count != 0 {
		t.Errorf("Expected no cache events while disabled, got %d", count)
	}
	if count := testutil.CollectAndCount(BytesTotal); count != 0 {
		t.Errorf("Expected no byte counters while disabled, got %d", count)
	}
}

func TestSessionGauge(t *testing.T) {
	Enable()
	OpenSessions.Set(0)

	SessionOpened()
	SessionOpened()
	SessionClosed()

	if got := testutil.ToFloat64(OpenSessions); got != 1 {
		t.Errorf("Expected 1 open session, got %v", got)
	}
}

func TestRecordBytesIgnoresEmpty(t *testing.T) {
	Enable()
	BytesTotal.Reset()

	RecordBytes(DirectionWrite, 0)
	RecordBytes(DirectionWrite, 10)

	if got := testutil.ToFloat64(BytesTotal.WithLabelValues(DirectionWrite)); got != 10 {
		t.Errorf("Expected 10 bytes written, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	Enable()
	RecordRecovery(RecoveryReplayed)

	path := filepath.Join(t.TempDir(), "pfs.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "pfs_recoveries_total") {
		t.Error("Expected textfile to contain pfs_recoveries_total")
	}
	if !strings.Contains(string(data), "pfs_goroutines") {
		t.Error("Expected textfile to contain pfs_goroutines")
	}
}
