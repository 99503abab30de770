package pipeline

import (
	"bytes"
	"context"
	"image"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"media-cache/internal/database"
	"media-cache/internal/fetch"
	"media-cache/internal/media"
	"media-cache/internal/ramcache"
	"media-cache/internal/storage"
)

type fakeSource struct {
	body        []byte
	contentType string
	err         error
}

// fakeFetcher serves canned bodies by ref key. When gate is set every Open
// blocks until it is closed.
type fakeFetcher struct {
	mu      sync.Mutex
	sources map[string]fakeSource
	gate    chan struct{}
	calls   atomic.Int64
	open    func(ctx context.Context, ref *media.Ref) (*fetch.Stream, error)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{sources: make(map[string]fakeSource)}
}

func (f *fakeFetcher) add(key string, body []byte, contentType string) {
	f.mu.Lock()
	f.sources[key] = fakeSource{body: body, contentType: contentType}
	f.mu.Unlock()
}

func (f *fakeFetcher) fail(key string, err error) {
	f.mu.Lock()
	f.sources[key] = fakeSource{err: err}
	f.mu.Unlock()
}

func (f *fakeFetcher) Open(ctx context.Context, ref *media.Ref) (*fetch.Stream, error) {
	f.calls.Add(1)
	if f.open != nil {
		return f.open(ctx, ref)
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	src, ok := f.sources[ref.Key()]
	f.mu.Unlock()
	if !ok {
		return nil, fetch.ErrNotFound
	}
	if src.err != nil {
		return nil, src.err
	}
	return &fetch.Stream{
		Body:        io.NopCloser(bytes.NewReader(src.body)),
		ContentType: src.contentType,
		Size:        int64(len(src.body)),
	}, nil
}

type fakeDecoder struct {
	calls atomic.Int64
	err   error
}

func (d *fakeDecoder) Decode(path string, shrink int) (image.Image, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

type harness struct {
	p       *Pipeline
	root    string
	fetcher *fakeFetcher
	decoder *fakeDecoder
	cache   *ramcache.Cache
	db      *database.Database
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	dir := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return newHarnessWithDB(t, filepath.Join(dir, "cache"), db, mutate)
}

func newHarnessWithDB(t *testing.T, root string, db *database.Database, mutate func(*Config)) *harness {
	t.Helper()

	cfg := DefaultConfig(root)
	cfg.Workers = 4
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		root:    root,
		fetcher: newFakeFetcher(),
		decoder: &fakeDecoder{},
		cache:   ramcache.New(),
		db:      db,
	}
	deps := Deps{
		Fetcher:   h.fetcher,
		Persister: storage.New(storage.DefaultOptions()),
		Decoder:   h.decoder,
		Cache:     h.cache,
	}
	if db != nil {
		deps.Index = db
	}

	p, err := New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	h.p = p
	return h
}
