package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"media-cache/internal/indexer"
	"media-cache/internal/media"
	"media-cache/internal/metrics"
	"media-cache/internal/pipeline"
	"media-cache/internal/streaming"
)

// MediaCache is the part of *pipeline.Pipeline the handlers drive.
type MediaCache interface {
	Load(ctx context.Context, ref *media.Ref, opts pipeline.RequestOptions) pipeline.Result
	Resolve(ctx context.Context, ref *media.Ref) (string, pipeline.Source, error)
	Inspect(ctx context.Context, ref *media.Ref) pipeline.Info
	Prefetch(ctx context.Context, refs []*media.Ref) (int, error)
	Evict(refs []*media.Ref) int
	Purge(ctx context.Context, refs []*media.Ref) (int, error)
	Stats() metrics.Stats
}

// Reconciler is the part of *indexer.Indexer the handlers drive.
type Reconciler interface {
	Reconcile(ctx context.Context, opts indexer.Options) (*indexer.Report, error)
	Status() indexer.Status
}

// Handlers serves the cache HTTP API.
type Handlers struct {
	cache      MediaCache
	reconciler Reconciler
	stream     streaming.TimeoutWriterConfig
	localRoots []string
	started    time.Time
	ready      atomic.Bool
}

// New creates the handlers. They report not ready until SetReady(true).
func New(cache MediaCache, stream streaming.TimeoutWriterConfig) *Handlers {
	return &Handlers{
		cache:   cache,
		stream:  stream,
		started: time.Now(),
	}
}

// SetReconciler enables the reconcile endpoints.
func (h *Handlers) SetReconciler(r Reconciler) {
	h.reconciler = r
}

// SetLocalRoots sets the directories whose files clients may name by
// absolute path. With none, only URLs and embedded resources are accepted.
func (h *Handlers) SetLocalRoots(roots ...string) {
	h.localRoots = roots
}

// SetReady flips the readiness probe.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the readiness probe state.
func (h *Handlers) IsReady() bool {
	return h.ready.Load()
}
