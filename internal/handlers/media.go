package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"media-cache/internal/fetch"
	"media-cache/internal/filesystem"
	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/mediatypes"
	"media-cache/internal/pipeline"
	"media-cache/internal/storage"
	"media-cache/internal/streaming"
)

const (
	// maxPrefetchBody bounds the JSON body of a prefetch request.
	maxPrefetchBody = 1 << 20
	// maxPrefetchSources bounds the number of sources per prefetch request.
	maxPrefetchSources = 256
	// maxShrink bounds the shrink query parameter.
	maxShrink = 64
)

// Response headers describing the served media.
const (
	HeaderCategory = "X-Media-Category"
	HeaderSource   = "X-Media-Source"
	HeaderPath     = "X-Media-Path"
)

// PrefetchRequest is the body of POST /api/media/prefetch.
type PrefetchRequest struct {
	Sources []string `json:"sources"`
}

// PrefetchResponse reports the outcome of a prefetch.
type PrefetchResponse struct {
	Requested int    `json:"requested"`
	Fetched   int    `json:"fetched"`
	Error     string `json:"error,omitempty"`
}

// EvictResponse reports the outcome of DELETE /api/media.
type EvictResponse struct {
	Evicted int `json:"evicted"`
	Deleted int `json:"deleted"`
}

// StatsResponse is the body of GET /api/cache/stats.
type StatsResponse struct {
	RAMEntries int   `json:"ramEntries"`
	RAMBytes   int64 `json:"ramBytes"`
	DiskBytes  int64 `json:"diskBytes"`
	DiskFiles  int   `json:"diskFiles"`
	Indexed    int   `json:"indexed"`
}

// ClassifyResponse is the body of GET /api/classify.
type ClassifyResponse struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Folder    string `json:"folder"`
	Extension string `json:"extension"`
	MimeType  string `json:"mimeType"`
}

// Source policy errors.
var (
	ErrInvalidSource   = errors.New("src must be an http(s) URL, res:<id> or an absolute path")
	ErrForbiddenSource = errors.New("src is outside the allowed local roots")
)

// parseSource turns a client-supplied locator into a ref. URLs and
// embedded resources are always accepted; local paths only when they lie
// under one of the configured local roots.
func (h *Handlers) parseSource(src string) (*media.Ref, error) {
	if fetch.IsRemote(src) {
		return media.NewPathRef(src), nil
	}
	if ref := media.ParseRef(src); ref.IsResource() {
		return ref, nil
	}
	if !filepath.IsAbs(src) {
		return nil, ErrInvalidSource
	}
	for _, root := range h.localRoots {
		if filesystem.IsSubPath(root, src) {
			return media.NewPathRef(filepath.Clean(src)), nil
		}
	}
	return nil, ErrForbiddenSource
}

// sourceRef reads and checks the src query parameter, writing the error
// response itself when it fails.
func (h *Handlers) sourceRef(w http.ResponseWriter, r *http.Request) (*media.Ref, bool) {
	src := strings.TrimSpace(r.URL.Query().Get("src"))
	if src == "" {
		writeJSONError(w, "src is required", http.StatusBadRequest)
		return nil, false
	}
	ref, err := h.parseSource(src)
	if err != nil {
		writeSourceError(w, src, err)
		return nil, false
	}
	return ref, true
}

func writeSourceError(w http.ResponseWriter, src string, err error) {
	if errors.Is(err, ErrForbiddenSource) {
		logging.Warn("Rejected local source %s", src)
		writeJSONError(w, err.Error(), http.StatusForbidden)
		return
	}
	writeJSONError(w, err.Error(), http.StatusBadRequest)
}

// GetMedia resolves src through the cache and streams the cached file.
// Images are decoded into the RAM cache on the way unless decode=false.
func (h *Handlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.sourceRef(w, r)
	if !ok {
		return
	}

	opts := pipeline.RequestOptions{SkipDecode: r.URL.Query().Get("decode") == "false"}
	if v := r.URL.Query().Get("shrink"); v != "" {
		shrink, err := strconv.Atoi(v)
		if err != nil || shrink < 1 || shrink > maxShrink {
			writeJSONError(w, "shrink must be between 1 and 64", http.StatusBadRequest)
			return
		}
		opts.Shrink = shrink
	}

	res := h.cache.Load(r.Context(), ref, opts)
	if res.Err != nil {
		if res.Path == "" {
			h.writeLoadError(w, r, ref, res.Err)
			return
		}
		// The file is cached; only the decode failed.
		logging.Warn("Serving %s undecoded: %v", ref.Key(), res.Err)
	}

	filePath := res.Path
	if filePath == "" {
		// A RAM hit on a fresh ref knows the pixels, not the file.
		var err error
		if filePath, _, err = h.cache.Resolve(r.Context(), ref); err != nil {
			h.writeLoadError(w, r, ref, err)
			return
		}
	}

	category := res.Category
	if category == mediatypes.NotAFile {
		category = mediatypes.Classify(filePath)
	}

	w.Header().Set(HeaderCategory, category.String())
	w.Header().Set(HeaderSource, string(res.Source))
	w.Header().Set(HeaderPath, path.Join(mediatypes.FolderFor(category), path.Base(filePath)))

	if err := streaming.ServeFile(w, r, filePath, h.stream); err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			writeJSONError(w, "cached file disappeared", http.StatusNotFound)
		case errors.Is(err, streaming.ErrClientGone), errors.Is(err, streaming.ErrStreamCanceled):
			logging.Debug("Client went away while streaming %s", ref.Key())
		default:
			logging.Warn("Streaming %s failed: %v", ref.Key(), err)
		}
	}
}

func (h *Handlers) writeLoadError(w http.ResponseWriter, r *http.Request, ref *media.Ref, err error) {
	var transport *fetch.TransportError
	switch {
	case errors.Is(err, fetch.ErrNotFound), errors.Is(err, storage.ErrSourceMissing):
		writeJSONError(w, "source not found", http.StatusNotFound)
	case errors.Is(err, pipeline.ErrClosed):
		writeJSONError(w, "cache is shutting down", http.StatusServiceUnavailable)
	case errors.Is(err, storage.ErrCanceled) && r.Context().Err() != nil:
		logging.Debug("Request for %s canceled by client", ref.Key())
	case errors.Is(err, storage.ErrCanceled):
		writeJSONError(w, "request canceled", http.StatusServiceUnavailable)
	case errors.As(err, &transport), errors.Is(err, fetch.ErrNoProvider):
		writeJSONError(w, "failed to fetch source", http.StatusBadGateway)
	default:
		logging.Error("Loading %s failed: %v", ref.Key(), err)
		writeJSONError(w, "failed to load media", http.StatusInternalServerError)
	}
}

// GetMediaInfo reports what the cache holds for src without fetching it.
func (h *Handlers) GetMediaInfo(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.sourceRef(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, h.cache.Inspect(r.Context(), ref))
}

// PrefetchMedia persists every source into the disk cache without decoding.
func (h *Handlers) PrefetchMedia(w http.ResponseWriter, r *http.Request) {
	var req PrefetchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPrefetchBody)).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Sources) == 0 {
		writeJSONError(w, "sources is required", http.StatusBadRequest)
		return
	}
	if len(req.Sources) > maxPrefetchSources {
		writeJSONError(w, "too many sources", http.StatusRequestEntityTooLarge)
		return
	}

	refs := make([]*media.Ref, 0, len(req.Sources))
	for _, src := range req.Sources {
		if src = strings.TrimSpace(src); src == "" {
			continue
		}
		ref, err := h.parseSource(src)
		if err != nil {
			writeSourceError(w, src, err)
			return
		}
		refs = append(refs, ref)
	}

	fetched, err := h.cache.Prefetch(r.Context(), refs)
	resp := PrefetchResponse{Requested: len(refs), Fetched: fetched}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		if fetched < len(refs) {
			status = http.StatusMultiStatus
		}
	}
	writeJSONResponse(w, status, resp)
}

// EvictMedia drops src from the RAM cache. With disk=true the cached file
// and its index entry are deleted too.
func (h *Handlers) EvictMedia(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.sourceRef(w, r)
	if !ok {
		return
	}
	refs := []*media.Ref{ref}

	var resp EvictResponse
	if disk, _ := strconv.ParseBool(r.URL.Query().Get("disk")); disk {
		// Attach the indexed path so Purge can find the file.
		h.cache.Inspect(r.Context(), ref)
		resp.Evicted = h.cache.Evict(refs)
		deleted, err := h.cache.Purge(context.WithoutCancel(r.Context()), refs)
		if err != nil {
			logging.Error("Purging %s failed: %v", ref.Key(), err)
			writeJSONError(w, "failed to purge media", http.StatusInternalServerError)
			return
		}
		resp.Deleted = deleted
	} else {
		resp.Evicted = h.cache.Evict(refs)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// GetCacheStats returns RAM, disk and index statistics.
func (h *Handlers) GetCacheStats(w http.ResponseWriter, _ *http.Request) {
	s := h.cache.Stats()
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONResponse(w, http.StatusOK, StatsResponse{
		RAMEntries: s.RAMEntries,
		RAMBytes:   s.RAMBytes,
		DiskBytes:  s.DiskBytes,
		DiskFiles:  s.DiskFiles,
		Indexed:    s.IndexedEntries,
	})
}

// Classify reports the category, cache folder and extension for a file
// name or MIME type.
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeJSONError(w, "name is required", http.StatusBadRequest)
		return
	}
	writeJSONResponse(w, http.StatusOK, ClassifyName(name))
}

// ClassifyName builds the classification of a file name or MIME type.
func ClassifyName(name string) ClassifyResponse {
	category := mediatypes.Classify(name)

	ext := mediatypes.ExtensionFor(name)
	if ext == mediatypes.DefaultExtension {
		base, _, _ := strings.Cut(name, "?")
		if fromName := mediatypes.ExtensionFromName(path.Base(base)); fromName != "" {
			ext = strings.ToLower(fromName)
		}
	}
	return ClassifyResponse{
		Name:      name,
		Category:  category.String(),
		Folder:    mediatypes.FolderFor(category),
		Extension: ext,
		MimeType:  mediatypes.MimeFor(ext),
	}
}
