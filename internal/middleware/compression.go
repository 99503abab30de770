package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the minimum response size in bytes before compression is applied
	MinSize int
	// Level is the gzip level, gzip.BestSpeed to gzip.BestCompression
	Level int
	// CompressibleTypes lists the media types worth compressing. Cached
	// media is mostly already compressed, so only text-like types qualify.
	CompressibleTypes []string
}

// DefaultCompressionConfig returns the default compression settings
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"text/html",
			"text/css",
			"text/plain",
			"text/javascript",
			"text/xml",
			"text/csv",
			"application/json",
			"application/javascript",
			"application/xml",
			"application/xhtml+xml",
			"image/svg+xml",
		},
	}
}

var (
	gzipPoolsMu sync.Mutex
	gzipPools   = map[int]*sync.Pool{}
)

// gzipPool returns the writer pool for a compression level.
func gzipPool(level int) *sync.Pool {
	gzipPoolsMu.Lock()
	defer gzipPoolsMu.Unlock()

	if p, ok := gzipPools[level]; ok {
		return p
	}
	p := &sync.Pool{
		New: func() any {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w, _ = gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
			}
			return w
		},
	}
	gzipPools[level] = p
	return p
}

// gzipResponseWriter buffers up to MinSize bytes to decide whether the
// response is worth compressing.
type gzipResponseWriter struct {
	http.ResponseWriter
	config CompressionConfig
	pool   *sync.Pool
	types  map[string]bool

	gz         *gzip.Writer
	buffer     []byte
	statusCode int
	decided    bool
	compress   bool
}

func newGzipResponseWriter(w http.ResponseWriter, config CompressionConfig, types map[string]bool) *gzipResponseWriter {
	return &gzipResponseWriter{
		ResponseWriter: w,
		config:         config,
		pool:           gzipPool(config.Level),
		types:          types,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader holds the status until the compression decision is made.
func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if !g.decided {
		g.statusCode = statusCode
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if g.decided {
		if g.compress {
			return g.gz.Write(data)
		}
		return g.ResponseWriter.Write(data)
	}

	// A known large body skips the buffer.
	if g.Header().Get("Content-Length") != "" && !g.compressibleType() {
		if err := g.decide(); err != nil {
			return 0, err
		}
		return g.ResponseWriter.Write(data)
	}

	g.buffer = append(g.buffer, data...)
	if len(g.buffer) > g.config.MinSize {
		if err := g.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (g *gzipResponseWriter) compressibleType() bool {
	contentType := g.Header().Get("Content-Type")
	if contentType == "" {
		return false
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return g.types[mediaType]
}

// decide writes the header and the buffered bytes, compressed or not.
func (g *gzipResponseWriter) decide() error {
	if g.decided {
		return nil
	}
	g.decided = true

	h := g.Header()
	g.compress = len(g.buffer) >= g.config.MinSize &&
		h.Get("Content-Encoding") == "" &&
		g.statusCode != http.StatusNoContent &&
		g.statusCode != http.StatusNotModified &&
		g.compressibleType()

	var err error
	if g.compress {
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")

		g.gz = g.pool.Get().(*gzip.Writer)
		g.gz.Reset(g.ResponseWriter)

		g.ResponseWriter.WriteHeader(g.statusCode)
		if len(g.buffer) > 0 {
			_, err = g.gz.Write(g.buffer)
		}
	} else {
		g.ResponseWriter.WriteHeader(g.statusCode)
		if len(g.buffer) > 0 {
			_, err = g.ResponseWriter.Write(g.buffer)
		}
	}

	g.buffer = nil
	return err
}

// Close flushes the response and returns the gzip writer to its pool.
func (g *gzipResponseWriter) Close() error {
	err := g.decide()
	if g.gz != nil {
		if cerr := g.gz.Close(); err == nil {
			err = cerr
		}
		g.pool.Put(g.gz)
		g.gz = nil
	}
	return err
}

// Flush implements http.Flusher
func (g *gzipResponseWriter) Flush() {
	if err := g.decide(); err != nil {
		return
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if flusher, ok := g.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Compression returns a middleware that compresses responses using gzip
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	types := make(map[string]bool, len(config.CompressibleTypes))
	for _, t := range config.CompressibleTypes {
		types[strings.ToLower(t)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
				r.Header.Get("Upgrade") != "" ||
				r.Header.Get("Range") != "" {
				next.ServeHTTP(w, r)
				return
			}

			gzw := newGzipResponseWriter(w, config, types)
			defer func() { _ = gzw.Close() }()

			next.ServeHTTP(gzw, r)
		})
	}
}
