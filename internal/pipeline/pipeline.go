package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"media-cache/internal/database"
	"media-cache/internal/fetch"
	"media-cache/internal/filesystem"
	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/mediatypes"
	"media-cache/internal/memory"
	"media-cache/internal/metrics"
	"media-cache/internal/ramcache"
	"media-cache/internal/storage"
	"media-cache/internal/workers"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("pipeline closed")

// Decoder turns a local image file into pixels.
type Decoder interface {
	Decode(path string, shrink int) (image.Image, error)
}

// Index records where refs were cached so they stay resolvable across
// restarts. *database.Database implements it.
type Index interface {
	UpsertEntry(ctx context.Context, e *database.Entry) error
	GetEntry(ctx context.Context, locator string) (*database.Entry, error)
	TouchEntry(ctx context.Context, locator string) error
	DeleteEntries(ctx context.Context, locators []string) (int64, error)
	CountEntries(ctx context.Context) (int, error)
	SetLastPurge(ctx context.Context, t time.Time) error
}

// Config holds the pipeline settings.
type Config struct {
	// CacheRoot is the directory holding the category folders.
	CacheRoot string
	// Prefix starts every generated file name.
	Prefix string
	// Shrink is the default decode shrink factor.
	Shrink int
	// Workers is the pool size. 0 means workers.ForIO(16).
	Workers int
	// QueueSize is the number of requests that may wait for a worker.
	QueueSize int
	// CopyLocal copies existing local files into the cache instead of
	// decoding them in place.
	CopyLocal bool
}

// DefaultConfig returns a config rooted at cacheRoot.
func DefaultConfig(cacheRoot string) Config {
	return Config{
		CacheRoot: cacheRoot,
		Prefix:    mediatypes.DefaultPrefix,
		Shrink:    1,
		QueueSize: 64,
	}
}

// Deps are the collaborators a Pipeline drives. Fetcher, Persister and
// Cache are required; the rest may be nil.
type Deps struct {
	Fetcher   fetch.Provider
	Persister *storage.Persister
	Decoder   Decoder
	Cache     *ramcache.Cache
	Index     Index
	Memory    *memory.Monitor
}

// Pipeline resolves refs to cached local files and decoded images.
type Pipeline struct {
	cfg  Config
	deps Deps

	pool       *workers.Pool
	dispatcher *Dispatcher
	group      singleflight.Group

	mu     sync.RWMutex
	closed bool
}

// New starts a pipeline with its worker pool and dispatcher.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Fetcher == nil || deps.Persister == nil || deps.Cache == nil {
		return nil, errors.New("pipeline: fetcher, persister and cache are required")
	}
	if cfg.CacheRoot == "" {
		return nil, fmt.Errorf("pipeline: %w", storage.ErrRootUnavailable)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = mediatypes.DefaultPrefix
	}
	if cfg.Shrink < 1 {
		cfg.Shrink = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = workers.ForIO(16)
	}

	logging.Info("Pipeline: %d workers, cache root %s", cfg.Workers, cfg.CacheRoot)

	return &Pipeline{
		cfg:        cfg,
		deps:       deps,
		pool:       workers.NewPool(cfg.Workers, cfg.QueueSize),
		dispatcher: NewDispatcher(cfg.QueueSize),
	}, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Close waits for running tasks, then for pending callbacks.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.pool.Close()
	p.dispatcher.Close()
}

// Request starts resolving ref and returns immediately. A RAM hit
// completes the task before Request returns; everything else runs on the
// worker pool.
func (p *Pipeline) Request(ctx context.Context, ref *media.Ref, opts RequestOptions) *Task {
	task := newTask(ctx, ref, opts, p.dispatcher)
	start := time.Now()

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	switch {
	case ref == nil:
		p.complete(task, start, Result{Err: fmt.Errorf("pipeline: %w", storage.ErrSourceMissing)})
		return task
	case closed:
		p.complete(task, start, Result{Err: ErrClosed})
		return task
	}

	if !opts.SkipDecode {
		if img, ok := p.deps.Cache.Get(ref.Key()); ok {
			p.complete(task, start, Result{
				Path:     ref.LocalPath(),
				Category: mediatypes.Image,
				Image:    img,
				Source:   SourceRAM,
			})
			return task
		}
	}

	go func() {
		err := p.pool.Submit(task.ctx, func(context.Context) {
			p.complete(task, start, p.process(task))
		})
		if errors.Is(err, workers.ErrPoolClosed) {
			p.complete(task, start, Result{Err: ErrClosed})
		} else if err != nil {
			p.complete(task, start, Result{Err: canceled(ref, err)})
		}
	}()
	return task
}

// Load resolves ref and waits for the result.
func (p *Pipeline) Load(ctx context.Context, ref *media.Ref, opts RequestOptions) Result {
	return p.Request(ctx, ref, opts).Wait()
}

func (p *Pipeline) complete(task *Task, start time.Time, r Result) {
	source := string(r.Source)
	if r.Err != nil {
		source = "error"
	}
	metrics.PipelineRequestsTotal.WithLabelValues(source).Inc()
	metrics.PipelineDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	task.finish(r)
}

func (p *Pipeline) process(task *Task) Result {
	metrics.PipelineTasksInFlight.Inc()
	defer metrics.PipelineTasksInFlight.Dec()

	ctx := task.ctx
	ref := task.Ref

	path, source, err := p.resolve(ctx, ref, task.reportProgress)
	if err != nil {
		return Result{Err: err}
	}

	result := Result{
		Path:     path,
		Category: mediatypes.Classify(path),
		Source:   source,
	}
	if task.opts.SkipDecode || result.Category != mediatypes.Image || p.deps.Decoder == nil {
		return result
	}

	if err := p.deps.Memory.WaitIfPaused(ctx); err != nil {
		result.Err = canceled(ref, err)
		return result
	}

	shrink := task.opts.Shrink
	if shrink < 1 {
		shrink = p.cfg.Shrink
	}
	img, err := p.deps.Decoder.Decode(path, shrink)
	if err != nil {
		logging.Warn("pipeline: decode %s failed: %v", path, err)
		result.Err = fmt.Errorf("decode %s: %w", ref.Key(), err)
		return result
	}
	p.deps.Cache.Put(ref.Key(), img)
	result.Image = img
	return result
}

// Resolve returns a local file holding ref's bytes, persisting it into the
// cache first when needed. It does not decode.
func (p *Pipeline) Resolve(ctx context.Context, ref *media.Ref) (string, Source, error) {
	if ref == nil {
		return "", "", fmt.Errorf("pipeline: %w", storage.ErrSourceMissing)
	}
	return p.resolve(ctx, ref, nil)
}

type resolved struct {
	path   string
	source Source
}

func (p *Pipeline) resolve(ctx context.Context, ref *media.Ref, progress storage.ProgressFunc) (string, Source, error) {
	if p.copiesLocal(ref) {
		if cached := ref.CachedPath(); cached != "" && filesystem.IsRegularFile(cached) {
			return cached, SourceDisk, nil
		}
	} else if ref.IsStoredLocally() {
		return ref.LocalPath(), SourceDisk, nil
	}

	// A canceled leader fails every caller that shared its flight; callers
	// that are still live try once more.
	for attempt := 0; ; attempt++ {
		ch := p.group.DoChan(ref.Key(), func() (any, error) {
			return p.acquire(ctx, ref, progress)
		})

		select {
		case <-ctx.Done():
			return "", "", canceled(ref, ctx.Err())
		case res := <-ch:
			if res.Shared {
				metrics.PipelineCoalescedTotal.Inc()
			}
			if res.Err != nil {
				if res.Shared && attempt == 0 && errors.Is(res.Err, storage.ErrCanceled) && ctx.Err() == nil {
					continue
				}
				return "", "", res.Err
			}
			r := res.Val.(resolved)
			if r.path != ref.Path() {
				ref.SetCachedPath(r.path)
			}
			return r.path, r.source, nil
		}
	}
}

// acquire runs once per key at a time.
func (p *Pipeline) acquire(ctx context.Context, ref *media.Ref, progress storage.ProgressFunc) (resolved, error) {
	if path, ok := p.lookupIndex(ctx, ref); ok {
		ref.SetCachedPath(path)
		return resolved{path: path, source: SourceDisk}, nil
	}

	var (
		res    storage.Result
		err    error
		source = SourceNetwork
	)
	if p.copiesLocal(ref) && filesystem.IsRegularFile(ref.Path()) {
		source = SourceDisk
		res, err = p.deps.Persister.PersistToCache(ctx, p.cfg.CacheRoot, p.cfg.Prefix, ref.Path(), progress)
	} else {
		res, err = p.download(ctx, ref, progress)
	}
	if err != nil {
		return resolved{}, err
	}

	ref.SetCachedPath(res.Path)
	p.record(ctx, ref, res)
	logging.Debug("pipeline: cached %s at %s (%d bytes)", ref.Key(), res.Path, res.Size)
	return resolved{path: res.Path, source: source}, nil
}

func (p *Pipeline) copiesLocal(ref *media.Ref) bool {
	return p.cfg.CopyLocal && !ref.IsResource() && !fetch.IsRemote(ref.Path())
}

func (p *Pipeline) download(ctx context.Context, ref *media.Ref, progress storage.ProgressFunc) (storage.Result, error) {
	stream, err := p.deps.Fetcher.Open(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return storage.Result{}, canceled(ref, ctx.Err())
		}
		return storage.Result{}, fmt.Errorf("fetch %s: %w", ref.Key(), err)
	}
	defer func() {
		if err := stream.Body.Close(); err != nil {
			logging.Warn("pipeline: failed to close stream for %s: %v", ref.Key(), err)
		}
	}()

	return p.deps.Persister.PersistStreamToCache(ctx, p.cfg.CacheRoot, p.cfg.Prefix, streamMIME(ref, stream), stream.Body, progress)
}

// streamMIME trusts a specific Content-Type and otherwise falls back to
// the extension of the stream or ref name.
func streamMIME(ref *media.Ref, s *fetch.Stream) string {
	mime := strings.TrimSpace(s.ContentType)
	token := strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	if token != "" && token != mediatypes.DefaultMimeType {
		return mime
	}

	name := s.Name
	if name == "" && !ref.IsResource() {
		name = ref.Path()
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		name = filepath.Base(name)
	}
	if ext := mediatypes.ExtensionFromName(name); ext != "" {
		return mediatypes.MimeFor(ext)
	}
	return mediatypes.DefaultMimeType
}

func (p *Pipeline) lookupIndex(ctx context.Context, ref *media.Ref) (string, bool) {
	if p.deps.Index == nil {
		return "", false
	}
	entry, err := p.deps.Index.GetEntry(ctx, ref.Key())
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logging.Warn("pipeline: index lookup for %s failed: %v", ref.Key(), err)
		}
		return "", false
	}
	if !filesystem.IsRegularFile(entry.CachedPath) {
		logging.Debug("pipeline: indexed file for %s is gone: %s", ref.Key(), entry.CachedPath)
		return "", false
	}
	if err := p.deps.Index.TouchEntry(ctx, ref.Key()); err != nil {
		logging.Debug("pipeline: touch %s failed: %v", ref.Key(), err)
	}
	return entry.CachedPath, true
}

func (p *Pipeline) record(ctx context.Context, ref *media.Ref, res storage.Result) {
	if p.deps.Index == nil {
		return
	}
	entry := &database.Entry{
		Locator:     ref.Key(),
		CachedPath:  res.Path,
		Category:    res.Category.String(),
		Size:        res.Size,
		ContentType: mediatypes.MimeFor(mediatypes.ExtensionFromName(res.Path)),
		Checksum:    res.Checksum,
	}
	if err := p.deps.Index.UpsertEntry(context.WithoutCancel(ctx), entry); err != nil {
		logging.Warn("pipeline: failed to index %s: %v", ref.Key(), err)
	}
}

// Prefetch resolves every ref into the disk cache without decoding. It
// keeps going past failures and returns them joined.
func (p *Pipeline) Prefetch(ctx context.Context, refs []*media.Ref) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	var (
		mu      sync.Mutex
		fetched int
		errs    []error
	)
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		g.Go(func() error {
			_, _, err := p.resolve(ctx, ref, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			fetched++
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		logging.Warn("pipeline: prefetch resolved %d of %d refs", fetched, fetched+len(errs))
	}
	return fetched, errors.Join(errs...)
}

// Info is a snapshot of what the cache holds for a ref.
type Info struct {
	Key           string `json:"key"`
	Path          string `json:"path,omitempty"`
	Category      string `json:"category"`
	StoredLocally bool   `json:"storedLocally"`
	InRAM         bool   `json:"inRam"`
	RAMBytes      int64  `json:"ramBytes"`
}

// Inspect reports ref's cache state without fetching or decoding. A path
// found in the index is attached to ref.
func (p *Pipeline) Inspect(ctx context.Context, ref *media.Ref) Info {
	if ref.LocalPath() == "" {
		if path, ok := p.lookupIndex(ctx, ref); ok {
			ref.SetCachedPath(path)
		}
	}

	path := ref.LocalPath()
	category := ref.Category()
	if path != "" {
		category = mediatypes.Classify(path)
	}
	return Info{
		Key:           ref.Key(),
		Path:          path,
		Category:      category.String(),
		StoredLocally: path != "",
		InRAM:         p.deps.Cache.Contains(ref.Key()),
		RAMBytes:      p.deps.Cache.SizeOf(ref.Key()),
	}
}

// Evict drops image refs from the RAM cache and keeps their files.
func (p *Pipeline) Evict(refs []*media.Ref) int {
	return p.deps.Cache.RemoveAll(refs)
}

// Purge deletes the cached files of image refs, evicts them and drops
// their index rows. Only files under the cache root are deleted: a ref
// whose original is a local file elsewhere loses its cached copy, never
// the original. It returns the number of files deleted.
func (p *Pipeline) Purge(ctx context.Context, refs []*media.Ref) (int, error) {
	var (
		keys    []string
		owned   []*media.Ref
		deleted int
	)
	for _, ref := range refs {
		if ref == nil || ref.Category() != mediatypes.Image {
			continue
		}
		local := ref.LocalPath()
		if local == "" {
			continue
		}
		keys = append(keys, ref.Key())

		if filesystem.IsSubPath(p.cfg.CacheRoot, local) {
			owned = append(owned, ref)
			continue
		}
		p.deps.Cache.Remove(ref.Key())
		if cached := ref.CachedPath(); cached != "" && cached != local &&
			filesystem.IsRegularFile(cached) && filesystem.IsSubPath(p.cfg.CacheRoot, cached) {
			if err := storage.DeleteFile(cached); err != nil {
				logging.Warn("pipeline: failed to delete %s: %v", cached, err)
				continue
			}
			deleted++
		}
	}

	deleted += p.deps.Cache.DeleteAll(owned)
	if p.deps.Index == nil || len(keys) == 0 {
		return deleted, nil
	}

	if _, err := p.deps.Index.DeleteEntries(ctx, keys); err != nil {
		return deleted, fmt.Errorf("purge index: %w", err)
	}
	if err := p.deps.Index.SetLastPurge(ctx, time.Now()); err != nil {
		logging.Warn("pipeline: failed to record purge time: %v", err)
	}
	return deleted, nil
}

// Stats implements metrics.StatsProvider.
func (p *Pipeline) Stats() metrics.Stats {
	s := metrics.Stats{
		RAMEntries: p.deps.Cache.Len(),
		RAMBytes:   p.deps.Cache.TotalSize(),
	}

	size, files, err := filesystem.TreeSize(p.cfg.CacheRoot)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Debug("pipeline: cache size: %v", err)
	}
	s.DiskBytes, s.DiskFiles = size, files

	if p.deps.Index != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if n, err := p.deps.Index.CountEntries(ctx); err == nil {
			s.IndexedEntries = n
		}
	}
	return s
}

func canceled(ref *media.Ref, err error) error {
	return &storage.Error{Op: "request", Path: ref.Key(), Reason: storage.Canceled, Err: err}
}
