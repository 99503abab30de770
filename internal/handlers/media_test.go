package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-cache/internal/media"
	"media-cache/internal/pipeline"
)

func mediaRequest(method, src string, extra ...string) *http.Request {
	q := url.Values{"src": {src}}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return httptest.NewRequest(method, "/api/media?"+q.Encode(), http.NoBody)
}

func TestGetMedia_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		target string
	}{
		{"missing src", "/api/media"},
		{"blank src", "/api/media?src=%20"},
		{"shrink not a number", "/api/media?src=x&shrink=big"},
		{"shrink zero", "/api/media?src=x&shrink=0"},
		{"shrink too large", "/api/media?src=x&shrink=65"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.h.GetMedia(w, httptest.NewRequest(http.MethodGet, tt.target, http.NoBody))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestGetMedia_NetworkThenRAM(t *testing.T) {
	env := newTestEnv(t)
	src := env.url("/photo.png")

	w := httptest.NewRecorder()
	env.h.GetMedia(w, mediaRequest(http.MethodGet, src))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image", w.Header().Get(HeaderCategory))
	assert.Equal(t, string(pipeline.SourceNetwork), w.Header().Get(HeaderSource))
	assert.True(t, strings.HasPrefix(w.Header().Get(HeaderPath), "images/"), w.Header().Get(HeaderPath))
	assert.True(t, strings.HasSuffix(w.Header().Get(HeaderPath), ".png"))
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes(t, 8, 4), w.Body.Bytes())

	w = httptest.NewRecorder()
	env.h.GetMedia(w, mediaRequest(http.MethodGet, src))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(pipeline.SourceRAM), w.Header().Get(HeaderSource))
	assert.Equal(t, pngBytes(t, 8, 4), w.Body.Bytes())
	assert.Equal(t, 1, env.hitCount("/photo.png"))
}

func TestGetMedia_NonImageFromDisk(t *testing.T) {
	env := newTestEnv(t)
	src := env.url("/notes.txt")

	w := httptest.NewRecorder()
	env.h.GetMedia(w, mediaRequest(http.MethodGet, src))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text", w.Header().Get(HeaderCategory))
	assert.Equal(t, "cached notes", w.Body.String())

	w = httptest.NewRecorder()
	env.h.GetMedia(w, mediaRequest(http.MethodGet, src))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(pipeline.SourceDisk), w.Header().Get(HeaderSource))
	assert.True(t, strings.HasPrefix(w.Header().Get(HeaderPath), "text_files/"))
	assert.Equal(t, 1, env.hitCount("/notes.txt"))
}

func TestGetMedia_UndecodableImageIsStillServed(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.h.GetMedia(w, mediaRequest(http.MethodGet, env.url("/broken.png")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not a png", w.Body.String())
	assert.Zero(t, env.p.Stats().RAMEntries)
}

func TestGetMedia_Resource(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.h.GetMedia(w, mediaRequest(http.MethodGet, "res:7", "shrink", "2"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image", w.Header().Get(HeaderCategory))
	assert.Equal(t, pngBytes(t, 8, 4), w.Body.Bytes())
}

func TestGetMedia_SkipDecode(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.h.GetMedia(w, mediaRequest(http.MethodGet, env.url("/photo.png"), "decode", "false"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, env.p.Stats().RAMEntries)
}

func TestGetMedia_Range(t *testing.T) {
	env := newTestEnv(t)

	req := mediaRequest(http.MethodGet, env.url("/notes.txt"))
	req.Header.Set("Range", "bytes=0-5")
	w := httptest.NewRecorder()
	env.h.GetMedia(w, req)

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "cached", w.Body.String())
}

func TestGetMedia_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		src  string
		want int
	}{
		{"origin 404", env.url("/missing.png"), http.StatusNotFound},
		{"origin 500", env.url("/fail"), http.StatusBadGateway},
		{"missing local file", filepath.Join(env.localRoot, "not-here.png"), http.StatusNotFound},
		{"unknown resource", "res:99", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.h.GetMedia(w, mediaRequest(http.MethodGet, tt.src))
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Empty(t, w.Header().Get(HeaderSource))
		})
	}
}

func TestGetMedia_AfterClose(t *testing.T) {
	env := newTestEnv(t)
	env.p.Close()

	w := httptest.NewRecorder()
	env.h.GetMedia(w, mediaRequest(http.MethodGet, env.url("/photo.png")))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetMedia_LocalSources(t *testing.T) {
	env := newTestEnv(t)

	inside := filepath.Join(env.localRoot, "readme.txt")
	require.NoError(t, os.WriteFile(inside, []byte("allowed"), 0o644))
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("top secret"), 0o644))

	w := httptest.NewRecorder()
	env.h.GetMedia(w, mediaRequest(http.MethodGet, inside))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "allowed", w.Body.String())
	assert.Equal(t, string(pipeline.SourceDisk), w.Header().Get(HeaderSource))

	tests := []struct {
		name string
		src  string
		want int
	}{
		{"outside the roots", outside, http.StatusForbidden},
		{"system file", "/etc/passwd", http.StatusForbidden},
		{"dot-dot out of a root", env.localRoot + "/../../" + filepath.Base(filepath.Dir(outside)), http.StatusForbidden},
		{"relative path", "etc/passwd", http.StatusBadRequest},
		{"file url", "file://" + outside, http.StatusBadRequest},
		{"other scheme", "ftp://example.com/a.png", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.h.GetMedia(w, mediaRequest(http.MethodGet, tt.src))
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotContains(t, w.Body.String(), "top secret")
			assert.Empty(t, w.Header().Get(HeaderSource))
		})
	}

	t.Run("symlink out of a root", func(t *testing.T) {
		link := filepath.Join(env.localRoot, "link.txt")
		if err := os.Symlink(outside, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		w := httptest.NewRecorder()
		env.h.GetMedia(w, mediaRequest(http.MethodGet, link))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NotContains(t, w.Body.String(), "top secret")
	})

	t.Run("no roots configured", func(t *testing.T) {
		env.h.SetLocalRoots()
		t.Cleanup(func() { env.h.SetLocalRoots(env.localRoot) })

		w := httptest.NewRecorder()
		env.h.GetMedia(w, mediaRequest(http.MethodGet, inside))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	w = httptest.NewRecorder()
	env.h.GetMediaInfo(w, httptest.NewRequest(http.MethodGet, "/api/media/info?src="+url.QueryEscape(outside), http.NoBody))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetMediaInfo(t *testing.T) {
	env := newTestEnv(t)
	src := env.url("/photo.png")

	var info pipeline.Info
	w := httptest.NewRecorder()
	env.h.GetMediaInfo(w, httptest.NewRequest(http.MethodGet, "/api/media/info?src="+url.QueryEscape(src), http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, src, info.Key)
	assert.False(t, info.StoredLocally)
	assert.False(t, info.InRAM)
	assert.Zero(t, env.hitCount("/photo.png"), "info never fetches")

	env.h.GetMedia(httptest.NewRecorder(), mediaRequest(http.MethodGet, src))

	w = httptest.NewRecorder()
	env.h.GetMediaInfo(w, httptest.NewRequest(http.MethodGet, "/api/media/info?src="+url.QueryEscape(src), http.NoBody))
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.True(t, info.StoredLocally)
	assert.True(t, info.InRAM)
	assert.EqualValues(t, 8*4*4, info.RAMBytes)
	assert.Equal(t, "image", info.Category)
	assert.FileExists(t, info.Path)

	w = httptest.NewRecorder()
	env.h.GetMediaInfo(w, httptest.NewRequest(http.MethodGet, "/api/media/info", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrefetchMedia(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(PrefetchRequest{Sources: []string{
		env.url("/photo.png"), env.url("/notes.txt"), env.url("/fail"), " ",
	}})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	env.h.PrefetchMedia(w, httptest.NewRequest(http.MethodPost, "/api/media/prefetch", bytes.NewReader(body)))

	assert.Equal(t, http.StatusMultiStatus, w.Code)
	var resp PrefetchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Requested)
	assert.Equal(t, 2, resp.Fetched)
	assert.NotEmpty(t, resp.Error)

	stats := env.p.Stats()
	assert.Zero(t, stats.RAMEntries, "prefetch does not decode")
	assert.Equal(t, 2, stats.DiskFiles)
	assert.Equal(t, 2, stats.IndexedEntries)
}

func TestPrefetchMedia_AllFetched(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.h.PrefetchMedia(w, httptest.NewRequest(http.MethodPost, "/api/media/prefetch",
		strings.NewReader(`{"sources":["`+env.url("/notes.txt")+`"]}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp PrefetchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, PrefetchResponse{Requested: 1, Fetched: 1}, resp)
}

func TestPrefetchMedia_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tooMany := PrefetchRequest{Sources: make([]string, maxPrefetchSources+1)}
	for i := range tooMany.Sources {
		tooMany.Sources[i] = "x"
	}
	tooManyBody, err := json.Marshal(tooMany)
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", "{", http.StatusBadRequest},
		{"no sources", `{"sources":[]}`, http.StatusBadRequest},
		{"too many", string(tooManyBody), http.StatusRequestEntityTooLarge},
		{"relative source", `{"sources":["x"]}`, http.StatusBadRequest},
		{"forbidden source", `{"sources":["/etc/passwd"]}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.h.PrefetchMedia(w, httptest.NewRequest(http.MethodPost, "/api/media/prefetch", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestEvictMedia(t *testing.T) {
	env := newTestEnv(t)
	src := env.url("/photo.png")

	res := env.p.Load(context.Background(), media.NewPathRef(src), pipeline.RequestOptions{})
	require.NoError(t, res.Err)

	w := httptest.NewRecorder()
	env.h.EvictMedia(w, mediaRequest(http.MethodDelete, src))
	require.Equal(t, http.StatusOK, w.Code)

	var resp EvictResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, EvictResponse{Evicted: 1}, resp)
	assert.FileExists(t, res.Path)

	w = httptest.NewRecorder()
	env.h.EvictMedia(w, mediaRequest(http.MethodDelete, src, "disk", "true"))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, EvictResponse{Evicted: 0, Deleted: 1}, resp)

	_, err := os.Stat(res.Path)
	assert.True(t, os.IsNotExist(err))
	count, err := env.db.CountEntries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	w = httptest.NewRecorder()
	env.h.EvictMedia(w, httptest.NewRequest(http.MethodDelete, "/api/media", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvictMedia_LocalSources(t *testing.T) {
	env := newTestEnv(t)

	outside := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(outside, pngBytes(t, 2, 2), 0o644))

	w := httptest.NewRecorder()
	env.h.EvictMedia(w, mediaRequest(http.MethodDelete, outside, "disk", "true"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.FileExists(t, outside)

	inside := filepath.Join(env.localRoot, "photo.png")
	require.NoError(t, os.WriteFile(inside, pngBytes(t, 2, 2), 0o644))
	res := env.p.Load(context.Background(), media.NewPathRef(inside), pipeline.RequestOptions{})
	require.NoError(t, res.Err)
	require.Equal(t, inside, res.Path)

	w = httptest.NewRecorder()
	env.h.EvictMedia(w, mediaRequest(http.MethodDelete, inside, "disk", "true"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp EvictResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, EvictResponse{Evicted: 1}, resp)
	assert.FileExists(t, inside, "originals outside the cache root are never deleted")
}

func TestGetCacheStats(t *testing.T) {
	env := newTestEnv(t)
	env.h.GetMedia(httptest.NewRecorder(), mediaRequest(http.MethodGet, env.url("/photo.png")))

	w := httptest.NewRecorder()
	env.h.GetCacheStats(w, httptest.NewRequest(http.MethodGet, "/api/cache/stats", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, 1, stats.RAMEntries)
	assert.EqualValues(t, 8*4*4, stats.RAMBytes)
	assert.EqualValues(t, len(pngBytes(t, 8, 4)), stats.DiskBytes)
	assert.Equal(t, 1, stats.DiskFiles)
	assert.Equal(t, 1, stats.Indexed)
}

func TestClassify(t *testing.T) {
	h := &Handlers{}

	tests := []struct {
		name string
		want ClassifyResponse
	}{
		{"photo.PNG", ClassifyResponse{Category: "image", Folder: "images", Extension: ".png", MimeType: "image/png"}},
		{"image/jpeg", ClassifyResponse{Category: "image", Folder: "images", Extension: ".jpg", MimeType: "image/jpeg"}},
		{"report.docx", ClassifyResponse{Category: "microsoft_word", Folder: "microsoft_office_files", Extension: ".docx",
			MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}},
		{"https://example.com/a/b.pdf?x=1", ClassifyResponse{Category: "pdf", Folder: "pdf_files", Extension: ".pdf", MimeType: "application/pdf"}},
		{"README", ClassifyResponse{Category: "other", Folder: "other_files", Extension: ".bin", MimeType: "application/octet-stream"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Classify(w, httptest.NewRequest(http.MethodGet, "/api/classify?name="+url.QueryEscape(tt.name), http.NoBody))
			require.Equal(t, http.StatusOK, w.Code)

			var got ClassifyResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			tt.want.Name = tt.name
			assert.Equal(t, tt.want, got)
		})
	}

	w := httptest.NewRecorder()
	h.Classify(w, httptest.NewRequest(http.MethodGet, "/api/classify", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
