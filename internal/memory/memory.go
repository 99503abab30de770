package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-cache/internal/logging"
	"media-cache/internal/metrics"
)

// Config holds memory management configuration
type Config struct {
	// MemoryLimitBytes is the soft memory limit (0 = use GOMEMLIMIT or no limit)
	MemoryLimitBytes int64

	// HighWaterMark is the usage ratio below which a pause is lifted (0.0-1.0)
	HighWaterMark float64

	// CriticalWaterMark is the usage ratio at which decoding pauses (0.0-1.0)
	CriticalWaterMark float64

	// CheckInterval is how often to check memory usage
	CheckInterval time.Duration
}

// DefaultConfig returns sensible defaults for memory management
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage and pauses new decodes while usage is
// critical, so the RAM cache cannot push the process past its limit.
type Monitor struct {
	config    Config
	limit     int64
	readAlloc func() uint64

	stopOnce sync.Once
	stopChan chan struct{}

	mu        sync.RWMutex
	current   uint64
	isPaused  bool
	pauseChan chan struct{}
}

// NewMonitor creates a new memory monitor
func NewMonitor(config Config) *Monitor {
	limit := config.MemoryLimitBytes

	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
			limit = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %s", FormatBytes(limit))
		}
	}

	if limit == 0 {
		logging.Warn("Memory monitor: no memory limit configured, backpressure disabled")
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		readAlloc: heapAlloc,
		stopChan:  make(chan struct{}),
		pauseChan: make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start begins monitoring memory usage
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.monitorLoop()
}

// Stop stops the monitor and releases every waiter. Safe to call twice.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkMemory()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) checkMemory() {
	alloc := m.readAlloc()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit <= 0 {
		return
	}

	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.isPaused:
		logging.Warn("Memory critical (%.1f%% of limit), pausing decodes", usage*100)
		m.isPaused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.isPaused:
		logging.Info("Memory recovered (%.1f%% of limit), resuming decodes", usage*100)
		m.isPaused = false
		metrics.MemoryPaused.Set(0)
		close(m.pauseChan)
		m.pauseChan = make(chan struct{})
	}
}

// WaitIfPaused blocks while memory usage is critical. It returns nil when
// it is safe to proceed and ctx.Err() if ctx ends first. Stopping the
// monitor releases waiters with a nil error.
func (m *Monitor) WaitIfPaused(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.RLock()
	if !m.isPaused {
		m.mu.RUnlock()
		return nil
	}
	pauseChan := m.pauseChan
	m.mu.RUnlock()

	select {
	case <-pauseChan:
		return nil
	case <-m.stopChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsPaused returns true if decoding should be paused entirely
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// Stats returns the last sampled heap size, the limit and their ratio.
func (m *Monitor) Stats() (current, limit int64, usage float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	current = int64(min(m.current, uint64(1<<63-1)))
	if m.limit > 0 {
		usage = float64(m.current) / float64(m.limit)
	}
	return current, m.limit, usage
}
