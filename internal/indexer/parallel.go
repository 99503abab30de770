package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-cache/internal/logging"
	"media-cache/internal/mediatypes"
	"media-cache/internal/metrics"
	"media-cache/internal/storage"
	"media-cache/internal/workers"
)

// WalkerConfig configures the parallel cache walker
type WalkerConfig struct {
	// NumWorkers is the number of parallel workers (0 = auto based on CPU)
	NumWorkers int
	// ChannelBuffer is the size of the work channel buffer
	ChannelBuffer int
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
	// Checksum makes workers hash every file.
	Checksum bool
}

// DefaultWalkerConfig returns defaults sized for the cache volume.
func DefaultWalkerConfig() WalkerConfig {
	return WalkerConfig{
		NumWorkers:    workers.ForMixed(8),
		ChannelBuffer: 256,
		SkipHidden:    true,
	}
}

// CachedFile is a regular file found under the cache root.
type CachedFile struct {
	Path     string
	Folder   string
	Category mediatypes.Category
	Size     int64
	ModTime  time.Time
	Checksum string
	// Misfiled is set when the file sits outside the folder its name
	// classifies into.
	Misfiled bool
}

type fileJob struct {
	path    string
	info    os.FileInfo
	relPath string
}

type fileResult struct {
	file *CachedFile
	err  error
}

// ParallelWalker walks the cache root, processing files on a worker pool.
type ParallelWalker struct {
	config WalkerConfig
	root   string

	jobs    chan fileJob
	results chan fileResult

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	filesProcessed atomic.Int64
	errorsCount    atomic.Int64
}

// NewParallelWalker creates a walker for root. It stops early when ctx ends.
func NewParallelWalker(ctx context.Context, root string, config WalkerConfig) *ParallelWalker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = workers.ForMixed(8)
	}
	if config.ChannelBuffer < 0 {
		config.ChannelBuffer = 0
	}
	ctx, cancel := context.WithCancel(ctx)

	return &ParallelWalker{
		config:  config,
		root:    root,
		jobs:    make(chan fileJob, config.ChannelBuffer),
		results: make(chan fileResult, config.ChannelBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Walk returns every regular file under the root. Unreadable entries are
// logged and skipped; the error is the context's when the walk was cut short.
func (pw *ParallelWalker) Walk() ([]CachedFile, error) {
	defer pw.cancel()

	logging.Debug("Starting cache walk of %s with %d workers", pw.root, pw.config.NumWorkers)
	startTime := time.Now()
	metrics.ReconcileWorkers.Set(float64(pw.config.NumWorkers))

	for i := 0; i < pw.config.NumWorkers; i++ {
		pw.wg.Add(1)
		go pw.worker()
	}

	var files []CachedFile
	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for result := range pw.results {
			if result.err != nil {
				pw.errorsCount.Add(1)
				logging.Debug("Error processing cached file: %v", result.err)
				continue
			}
			files = append(files, *result.file)
		}
	}()

	err := pw.walkAndEnqueue()
	close(pw.jobs)
	pw.wg.Wait()
	close(pw.results)
	collectorWg.Wait()

	logging.Debug("Cache walk complete: %d files in %v (errors: %d)",
		pw.filesProcessed.Load(), time.Since(startTime), pw.errorsCount.Load())

	if err == nil {
		err = pw.ctx.Err()
	}
	return files, err
}

func (pw *ParallelWalker) walkAndEnqueue() error {
	return filepath.WalkDir(pw.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-pw.ctx.Done():
			return fs.SkipAll
		default:
		}

		if err != nil {
			if path == pw.root {
				return err
			}
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}

		if pw.config.SkipHidden && path != pw.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(pw.root, path)
		if err != nil {
			//nolint:nilerr // skip this file but keep walking
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logging.Warn("Error getting info for %s: %v", path, err)
			return nil
		}

		select {
		case pw.jobs <- fileJob{path: path, info: info, relPath: relPath}:
		case <-pw.ctx.Done():
			return fs.SkipAll
		}
		return nil
	})
}

func (pw *ParallelWalker) worker() {
	defer pw.wg.Done()

	for job := range pw.jobs {
		if pw.ctx.Err() != nil {
			continue
		}

		result := pw.processFile(job)
		if result.err == nil {
			pw.filesProcessed.Add(1)
		}

		select {
		case pw.results <- result:
		case <-pw.ctx.Done():
		}
	}
}

func (pw *ParallelWalker) processFile(job fileJob) fileResult {
	folder := ""
	if dir := filepath.Dir(job.relPath); dir != "." {
		folder = strings.SplitN(filepath.ToSlash(dir), "/", 2)[0]
	}
	category := mediatypes.Classify(job.info.Name())

	file := &CachedFile{
		Path:     job.path,
		Folder:   folder,
		Category: category,
		Size:     job.info.Size(),
		ModTime:  job.info.ModTime(),
		Misfiled: folder != mediatypes.FolderFor(category),
	}

	if pw.config.Checksum {
		sum, err := storage.Checksum(job.path)
		if err != nil {
			return fileResult{err: err}
		}
		file.Checksum = sum
	}
	return fileResult{file: file}
}

// Stop cancels the walk.
func (pw *ParallelWalker) Stop() {
	pw.cancel()
}

// Stats returns current processing statistics
func (pw *ParallelWalker) Stats() (files, errors int64) {
	return pw.filesProcessed.Load(), pw.errorsCount.Load()
}
