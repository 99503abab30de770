package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"media-cache/internal/database"
	"media-cache/internal/fetch"
	"media-cache/internal/media"
	"media-cache/internal/pipeline"
	"media-cache/internal/ramcache"
	"media-cache/internal/storage"
	"media-cache/internal/streaming"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type testEnv struct {
	h        *Handlers
	p        *pipeline.Pipeline
	db       *database.Database
	origin   *httptest.Server
	cacheDir string
	// localRoot is the one directory clients may name by absolute path.
	localRoot string

	mu   sync.Mutex
	hits map[string]int
}

// newTestEnv wires a real pipeline against an httptest origin serving
// /photo.png, /notes.txt and /broken.png, and one embedded resource (id 7).
// Local sources are allowed under env.localRoot only.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{hits: make(map[string]int)}
	photo := pngBytes(t, 8, 4)

	mux := http.NewServeMux()
	mux.HandleFunc("/photo.png", func(w http.ResponseWriter, r *http.Request) {
		env.hit(r.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(photo)
	})
	mux.HandleFunc("/notes.txt", func(w http.ResponseWriter, r *http.Request) {
		env.hit(r.URL.Path)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("cached notes"))
	})
	mux.HandleFunc("/broken.png", func(w http.ResponseWriter, r *http.Request) {
		env.hit(r.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("not a png"))
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	env.origin = httptest.NewServer(mux)
	t.Cleanup(env.origin.Close)

	dir := t.TempDir()
	env.cacheDir = filepath.Join(dir, "cache")
	env.localRoot = filepath.Join(dir, "media")
	require.NoError(t, os.MkdirAll(env.localRoot, 0o755))

	db, err := database.New(context.Background(), filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	env.db = db

	resources := fstest.MapFS{"logo.png": &fstest.MapFile{Data: photo}}
	router := &fetch.Router{
		HTTP:     fetch.NewHTTPProvider(5 * time.Second),
		File:     fetch.NewFileProvider(),
		Resource: fetch.NewResourceProvider(resources, map[int]string{7: "logo.png"}),
	}

	cfg := pipeline.DefaultConfig(env.cacheDir)
	cfg.Workers = 2
	p, err := pipeline.New(cfg, pipeline.Deps{
		Fetcher:   router,
		Persister: storage.New(storage.DefaultOptions()),
		Decoder:   &media.Decoder{MaxDimension: media.MaxImageDimension, MaxPixels: media.MaxImagePixels, DisableVips: true},
		Cache:     ramcache.New(),
		Index:     db,
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	env.p = p

	env.h = New(p, streaming.DefaultTimeoutWriterConfig())
	env.h.SetLocalRoots(env.localRoot)
	env.h.SetReady(true)
	return env
}

func (e *testEnv) url(path string) string {
	return e.origin.URL + path
}

func (e *testEnv) hit(path string) {
	e.mu.Lock()
	e.hits[path]++
	e.mu.Unlock()
}

func (e *testEnv) hitCount(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hits[path]
}
