package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"media-cache/internal/filesystem"
)

// value reads the current value of a gauge or counter.
func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	switch {
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	case out.Counter != nil:
		return out.Counter.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

// series counts the label combinations exported by a collector.
func series(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric, 1024)
	c.Collect(ch)
	close(ch)
	return len(ch)
}

type fakeStats struct{ s Stats }

func (f fakeStats) Stats() Stats { return f.s }

func TestCollector_Collect(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	if err := os.WriteFile(dbPath, make([]byte, 1234), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCollector(fakeStats{Stats{
		RAMEntries:     3,
		RAMBytes:       3000,
		DiskBytes:      9000,
		DiskFiles:      4,
		IndexedEntries: 5,
	}}, dbPath, time.Hour)
	c.collect()

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"ram entries", value(t, RAMCacheEntries), 3},
		{"ram bytes", value(t, RAMCacheBytes), 3000},
		{"disk bytes", value(t, DiskCacheBytes), 9000},
		{"disk files", value(t, DiskCacheFiles), 4},
		{"index entries", value(t, IndexEntries), 5},
		{"db main size", value(t, DBSizeBytes.WithLabelValues("main")), 1234},
		{"db wal size", value(t, DBSizeBytes.WithLabelValues("wal")), 0},
	}
	for _, tt := range checks {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if value(t, GoMemSysBytes) <= 0 {
		t.Error("GoMemSysBytes should be populated")
	}
}

func TestCollector_StartStop(t *testing.T) {
	c := NewCollector(nil, "", 10*time.Millisecond)
	c.Start()
	time.Sleep(25 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not return")
	}
}

func TestFilesystemObserver(t *testing.T) {
	obs := NewFilesystemObserver()

	before := value(t, FilesystemOperationErrors.WithLabelValues("cache", "create"))
	obs.ObserveOperation("cache", "create", 0.01, errors.New("boom"))
	obs.ObserveOperation("cache", "create", 0.01, nil)
	after := value(t, FilesystemOperationErrors.WithLabelValues("cache", "create"))
	if after-before != 1 {
		t.Errorf("errors delta = %v, want 1", after-before)
	}

	stale := FilesystemRetries.WithLabelValues("source", "stat", "stale")
	recovered := FilesystemRetries.WithLabelValues("source", "stat", "recovered")
	beforeStale, beforeRecovered := value(t, stale), value(t, recovered)
	obs.ObserveRetry("source", "stat", filesystem.RetryStale)
	obs.ObserveRetry("source", "stat", filesystem.RetryStale)
	obs.ObserveRetry("source", "stat", filesystem.RetryRecovered)
	if got := value(t, stale) - beforeStale; got != 2 {
		t.Errorf("stale delta = %v, want 2", got)
	}
	if got := value(t, recovered) - beforeRecovered; got != 1 {
		t.Errorf("recovered delta = %v, want 1", got)
	}
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics()

	if n := series(PipelineRequestsTotal); n != 4 {
		t.Errorf("pipeline request series = %d, want 4", n)
	}
	if n := series(FetchRequestsTotal); n != 6 {
		t.Errorf("fetch request series = %d, want 6", n)
	}
}
