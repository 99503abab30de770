package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"media-cache/internal/database"
	"media-cache/internal/filesystem"
	"media-cache/internal/logging"
	"media-cache/internal/metrics"
	"media-cache/internal/storage"
)

// DefaultOrphanAge is how old an unindexed file must be before it counts as
// an orphan. Files are written before their index row, so younger files
// may still be in flight.
const DefaultOrphanAge = 10 * time.Minute

// ErrRunning is returned when a reconciliation is already in progress.
var ErrRunning = errors.New("indexer: reconciliation already running")

// Index is the part of *database.Database the indexer needs.
type Index interface {
	ListEntries(ctx context.Context, category string, limit int) ([]database.Entry, error)
	DeleteEntries(ctx context.Context, locators []string) (int64, error)
}

// Options controls what a reconciliation changes.
type Options struct {
	// Verify compares stored checksums with the file contents.
	Verify bool
	// RemoveOrphans deletes cached files no index entry points at.
	RemoveOrphans bool
	// DryRun reports findings without changing anything.
	DryRun bool
	// OrphanAge overrides DefaultOrphanAge.
	OrphanAge time.Duration
}

// Report describes one reconciliation.
type Report struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	DryRun    bool          `json:"dryRun"`

	Files   int `json:"files"`
	Entries int `json:"entries"`

	// Stale lists locators whose cached file is gone.
	Stale []string `json:"stale,omitempty"`
	// Corrupt lists locators whose file no longer matches the entry.
	Corrupt []string `json:"corrupt,omitempty"`
	// Orphans lists cached files without an entry.
	Orphans []string `json:"orphans,omitempty"`
	// Misfiled lists cached files outside their category folder.
	Misfiled []string `json:"misfiled,omitempty"`

	RemovedEntries int64 `json:"removedEntries"`
	RemovedFiles   int   `json:"removedFiles"`
}

// Status is the indexer state reported to operators.
type Status struct {
	Running    bool    `json:"running"`
	LastReport *Report `json:"lastReport,omitempty"`
	LastError  string  `json:"lastError,omitempty"`
}

// Indexer keeps the cache index consistent with the files under the cache
// root.
type Indexer struct {
	index     Index
	cacheRoot string
	interval  time.Duration
	opts      Options
	walker    WalkerConfig

	runMu sync.Mutex

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}

	statusMu sync.RWMutex
	running  bool
	last     *Report
	lastErr  error
}

// New creates an indexer. An interval <= 0 disables periodic runs.
func New(index Index, cacheRoot string, interval time.Duration, opts Options) *Indexer {
	if opts.OrphanAge <= 0 {
		opts.OrphanAge = DefaultOrphanAge
	}
	walker := DefaultWalkerConfig()
	walker.Checksum = opts.Verify

	return &Indexer{
		index:     index,
		cacheRoot: cacheRoot,
		interval:  interval,
		opts:      opts,
		walker:    walker,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// SetWalkerConfig sets the parallel walker configuration.
func (idx *Indexer) SetWalkerConfig(config WalkerConfig) {
	config.Checksum = idx.opts.Verify
	idx.walker = config
}

// Start begins periodic reconciliation in the background.
func (idx *Indexer) Start() {
	if idx.interval <= 0 {
		close(idx.doneChan)
		return
	}
	go idx.periodicReconcile()
}

// Stop cancels a running reconciliation and waits for the loop to exit.
// Stop must only be called after Start.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() { close(idx.stopChan) })
	<-idx.doneChan
}

func (idx *Indexer) periodicReconcile() {
	defer close(idx.doneChan)

	logging.Info("Index reconciliation every %v", idx.interval)
	ticker := time.NewTicker(idx.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-idx.stopChan:
					cancel()
				case <-ctx.Done():
				}
			}()
			if _, err := idx.Reconcile(ctx, idx.opts); err != nil && !errors.Is(err, ErrRunning) {
				logging.Error("Index reconciliation failed: %v", err)
			}
			cancel()
		case <-idx.stopChan:
			logging.Info("Index reconciliation stopped")
			return
		}
	}
}

// Status returns the state of the indexer.
func (idx *Indexer) Status() Status {
	idx.statusMu.RLock()
	defer idx.statusMu.RUnlock()

	s := Status{Running: idx.running, LastReport: idx.last}
	if idx.lastErr != nil {
		s.LastError = idx.lastErr.Error()
	}
	return s
}

// Reconcile compares the index with the cache root. Entries whose file is
// gone are stale; entries whose file changed size (or checksum, with
// Verify) are corrupt. Both lose their index rows and corrupt files are
// deleted. Unindexed files older than OrphanAge are orphans, deleted only
// with RemoveOrphans. Nothing changes with DryRun.
func (idx *Indexer) Reconcile(ctx context.Context, opts Options) (*Report, error) {
	if !idx.runMu.TryLock() {
		return nil, ErrRunning
	}
	defer idx.runMu.Unlock()

	if opts.OrphanAge <= 0 {
		opts.OrphanAge = idx.opts.OrphanAge
	}

	idx.setRunning(true)
	report, err := idx.reconcile(ctx, opts)
	idx.finishRun(report, err)
	return report, err
}

func (idx *Indexer) reconcile(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{StartedAt: time.Now(), DryRun: opts.DryRun}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		metrics.ReconcileDuration.Observe(report.Duration.Seconds())
	}()

	walker := idx.walker
	walker.Checksum = opts.Verify
	files, err := NewParallelWalker(ctx, idx.cacheRoot, walker).Walk()
	if err != nil {
		return report, fmt.Errorf("walk cache root: %w", err)
	}

	entries, err := idx.index.ListEntries(ctx, "", 0)
	if err != nil {
		return report, fmt.Errorf("list index entries: %w", err)
	}
	report.Files, report.Entries = len(files), len(entries)

	byPath := make(map[string]*CachedFile, len(files))
	for i := range files {
		byPath[filepath.Clean(files[i].Path)] = &files[i]
	}

	referenced := make(map[string]bool, len(entries))
	var corruptPaths []string
	for _, e := range entries {
		path := filepath.Clean(e.CachedPath)
		f, ok := byPath[path]
		if !ok {
			// Entries outside the root are only checked for existence.
			if filesystem.IsRegularFile(path) {
				continue
			}
			report.Stale = append(report.Stale, e.Locator)
			continue
		}
		referenced[path] = true

		if f.Size != e.Size || (opts.Verify && e.Checksum != "" && f.Checksum != e.Checksum) {
			report.Corrupt = append(report.Corrupt, e.Locator)
			corruptPaths = append(corruptPaths, path)
		}
	}

	cutoff := time.Now().Add(-opts.OrphanAge)
	var orphanPaths []string
	for _, f := range files {
		if f.Misfiled {
			report.Misfiled = append(report.Misfiled, f.Path)
		}
		if referenced[filepath.Clean(f.Path)] || f.ModTime.After(cutoff) {
			continue
		}
		report.Orphans = append(report.Orphans, f.Path)
		orphanPaths = append(orphanPaths, f.Path)
	}

	metrics.ReconcileFindingsTotal.WithLabelValues("stale").Add(float64(len(report.Stale)))
	metrics.ReconcileFindingsTotal.WithLabelValues("corrupt").Add(float64(len(report.Corrupt)))
	metrics.ReconcileFindingsTotal.WithLabelValues("orphan").Add(float64(len(report.Orphans)))

	if opts.DryRun {
		return report, nil
	}

	if drop := append(append([]string(nil), report.Stale...), report.Corrupt...); len(drop) > 0 {
		n, err := idx.index.DeleteEntries(context.WithoutCancel(ctx), drop)
		report.RemovedEntries = n
		if err != nil {
			return report, fmt.Errorf("delete index entries: %w", err)
		}
	}

	remove := corruptPaths
	if opts.RemoveOrphans {
		remove = append(remove, orphanPaths...)
	}
	for _, path := range remove {
		if err := storage.DeleteFile(path); err != nil {
			logging.Warn("Failed to remove %s: %v", path, err)
			continue
		}
		report.RemovedFiles++
	}
	return report, nil
}

func (idx *Indexer) setRunning(running bool) {
	idx.statusMu.Lock()
	idx.running = running
	idx.statusMu.Unlock()
}

func (idx *Indexer) finishRun(report *Report, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ReconcileRunsTotal.WithLabelValues(status).Inc()

	if err == nil {
		logging.Info("Index reconciled in %v: %d files, %d entries, %d stale, %d corrupt, %d orphans, %d files removed",
			report.Duration.Round(time.Millisecond), report.Files, report.Entries,
			len(report.Stale), len(report.Corrupt), len(report.Orphans), report.RemovedFiles)
	}

	idx.statusMu.Lock()
	defer idx.statusMu.Unlock()
	idx.running = false
	idx.lastErr = err
	if err == nil {
		idx.last = report
	}
}
