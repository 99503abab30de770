package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func serveCompressed(t *testing.T, cfg CompressionConfig, acceptGzip bool, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
	if acceptGzip {
		r.Header.Set("Accept-Encoding", "gzip, deflate")
	}
	w := httptest.NewRecorder()
	Compression(cfg)(handler).ServeHTTP(w, r)
	return w
}

func gunzip(t *testing.T, body []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	out, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading gzip body: %v", err)
	}
	return string(out)
}

func TestCompression(t *testing.T) {
	large := strings.Repeat(`{"key":"value"},`, 200)

	tests := []struct {
		name         string
		accept       bool
		contentType  string
		body         string
		status       int
		wantCompress bool
	}{
		{"json compressed", true, "application/json", large, http.StatusOK, true},
		{"charset ignored", true, "text/html; charset=utf-8", large, http.StatusOK, true},
		{"client without gzip", false, "application/json", large, http.StatusOK, false},
		{"small body", true, "application/json", `{"a":1}`, http.StatusOK, false},
		{"image untouched", true, "image/png", large, http.StatusOK, false},
		{"no content type", true, "", large, http.StatusOK, false},
		{"error status kept", true, "application/json", large, http.StatusNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveCompressed(t, DefaultCompressionConfig(), tt.accept, func(w http.ResponseWriter, _ *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}

			compressed := w.Header().Get("Content-Encoding") == "gzip"
			if compressed != tt.wantCompress {
				t.Fatalf("compressed = %v, want %v", compressed, tt.wantCompress)
			}

			got := w.Body.String()
			if compressed {
				got = gunzip(t, w.Body.Bytes())
				if w.Header().Get("Vary") != "Accept-Encoding" {
					t.Error("missing Vary header")
				}
			}
			if got != tt.body {
				t.Errorf("body mismatch: got %d bytes, want %d", len(got), len(tt.body))
			}
		})
	}
}

func TestCompression_MultipleWrites(t *testing.T) {
	chunk := strings.Repeat("x", 300)
	w := serveCompressed(t, DefaultCompressionConfig(), true, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for i := 0; i < 10; i++ {
			_, _ = w.Write([]byte(chunk))
		}
	})

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("expected gzip")
	}
	if got := gunzip(t, w.Body.Bytes()); got != strings.Repeat(chunk, 10) {
		t.Errorf("body mismatch: %d bytes", len(got))
	}
}

func TestCompression_AlreadyEncoded(t *testing.T) {
	w := serveCompressed(t, DefaultCompressionConfig(), true, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(bytes.Repeat([]byte("y"), 4096))
	})
	if w.Header().Get("Content-Encoding") != "br" {
		t.Errorf("Content-Encoding = %q, want br", w.Header().Get("Content-Encoding"))
	}
}

func TestCompression_KnownLengthMedia(t *testing.T) {
	body := bytes.Repeat([]byte{0xff}, 8192)
	w := serveCompressed(t, DefaultCompressionConfig(), true, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "8192")
		_, _ = w.Write(body[:100])
		_, _ = w.Write(body[100:])
	})
	if w.Header().Get("Content-Encoding") != "" {
		t.Error("media body was compressed")
	}
	if !bytes.Equal(w.Body.Bytes(), body) {
		t.Error("media body changed")
	}
}

func TestCompression_RangeRequestPassesThrough(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/media?src=a.txt", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	r.Header.Set("Range", "bytes=0-9")
	w := httptest.NewRecorder()

	Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("z", 4096)))
	})).ServeHTTP(w, r)

	if w.Header().Get("Content-Encoding") != "" {
		t.Error("range response was compressed")
	}
}

func TestCompression_Levels(t *testing.T) {
	for _, level := range []int{gzip.BestSpeed, gzip.BestCompression, 42} {
		cfg := DefaultCompressionConfig()
		cfg.Level = level
		w := serveCompressed(t, cfg, true, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/css")
			_, _ = w.Write([]byte(strings.Repeat("a{b:c}", 500)))
		})
		if got := gunzip(t, w.Body.Bytes()); len(got) != 3000 {
			t.Errorf("level %d: got %d bytes", level, len(got))
		}
	}
}

func TestGzipResponseWriter_FlushDecides(t *testing.T) {
	rec := httptest.NewRecorder()
	g := newGzipResponseWriter(rec, DefaultCompressionConfig(), map[string]bool{"text/plain": true})
	g.Header().Set("Content-Type", "text/plain")
	_, _ = g.Write([]byte("tiny"))
	g.Flush()

	if !g.decided {
		t.Error("Flush did not write the header")
	}
	if rec.Body.String() != "tiny" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if err := g.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
