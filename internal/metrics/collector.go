package metrics

import (
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"media-cache/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	Stats() Stats
}

// Stats holds the current cache statistics
type Stats struct {
	RAMEntries     int
	RAMBytes       int64
	DiskBytes      int64
	DiskFiles      int
	IndexedEntries int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewCollector creates a new metrics collector. dbPath may be empty.
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectRuntime()
	c.collectDBSize()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.Stats()

	RAMCacheEntries.Set(float64(stats.RAMEntries))
	RAMCacheBytes.Set(float64(stats.RAMBytes))
	DiskCacheBytes.Set(float64(stats.DiskBytes))
	DiskCacheFiles.Set(float64(stats.DiskFiles))
	IndexEntries.Set(float64(stats.IndexedEntries))

	logging.Debug("Metrics collected: ram=%d (%d bytes), disk=%d files (%d bytes), indexed=%d",
		stats.RAMEntries, stats.RAMBytes, stats.DiskFiles, stats.DiskBytes, stats.IndexedEntries)
}

func (c *Collector) collectRuntime() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	GoMemAllocBytes.Set(float64(m.Alloc))
	GoMemSysBytes.Set(float64(m.Sys))
	GoMemLimit.Set(float64(debug.SetMemoryLimit(-1)))
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}
	for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		size := int64(0)
		if info, err := os.Stat(c.dbPath + suffix); err == nil {
			size = info.Size()
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(size))
	}
}
