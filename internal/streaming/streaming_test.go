package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// blockingWriter never completes a write until release is closed.
type blockingWriter struct {
	header  http.Header
	release chan struct{}
}

func (b *blockingWriter) Header() http.Header { return b.header }
func (b *blockingWriter) WriteHeader(int)     {}
func (b *blockingWriter) Write(p []byte) (int, error) {
	<-b.release
	return len(p), nil
}

func TestDefaultTimeoutWriterConfig(t *testing.T) {
	cfg := DefaultTimeoutWriterConfig()
	if cfg.WriteTimeout != 30*time.Second || cfg.IdleTimeout != 60*time.Second {
		t.Errorf("unexpected timeouts: %+v", cfg)
	}
	if cfg.MaxDuration != 0 {
		t.Errorf("MaxDuration = %v, want unlimited", cfg.MaxDuration)
	}
	if cfg.ChunkSize != 64*1024 || cfg.ProgressInterval != DefaultProgressInterval {
		t.Errorf("unexpected chunking: %+v", cfg)
	}
}

func TestTimeoutWriter_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), rec, DefaultTimeoutWriterConfig())
	defer tw.Close()

	n, err := tw.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if written, _ := tw.Stats(); written != 5 {
		t.Errorf("Stats() bytes = %d, want 5", written)
	}
}

func TestTimeoutWriter_ChunkedFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	cfg := DefaultTimeoutWriterConfig()
	cfg.ChunkSize = 10
	tw := NewTimeoutWriter(context.Background(), rec, cfg)
	defer tw.Close()

	data := bytes.Repeat([]byte("a"), 95)
	n, err := tw.Write(data)
	if err != nil || n != 95 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if !rec.Flushed {
		t.Error("chunked write did not flush")
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("body mismatch")
	}
}

func TestTimeoutWriter_HeaderPassthrough(t *testing.T) {
	rec := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), rec, DefaultTimeoutWriterConfig())
	defer tw.Close()

	tw.Header().Set("X-Media-Source", "disk")
	tw.WriteHeader(http.StatusPartialContent)

	if rec.Code != http.StatusPartialContent || rec.Header().Get("X-Media-Source") != "disk" {
		t.Errorf("header not forwarded: %d %v", rec.Code, rec.Header())
	}
	if tw.Unwrap() != rec {
		t.Error("Unwrap() did not return the wrapped writer")
	}
}

func TestTimeoutWriter_Close(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), DefaultTimeoutWriterConfig())
	if err := tw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Write() after Close error = %v, want ErrStreamCanceled", err)
	}
}

func TestTimeoutWriter_ClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tw := NewTimeoutWriter(ctx, httptest.NewRecorder(), DefaultTimeoutWriterConfig())
	defer tw.Close()

	cancel()
	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrClientGone) {
		t.Errorf("Write() error = %v, want ErrClientGone", err)
	}
	if !errors.Is(tw.Err(), ErrClientGone) {
		t.Errorf("Err() = %v, want ErrClientGone", tw.Err())
	}
}

func TestTimeoutWriter_WriteTimeout(t *testing.T) {
	bw := &blockingWriter{header: http.Header{}, release: make(chan struct{})}
	defer close(bw.release)

	cfg := DefaultTimeoutWriterConfig()
	cfg.WriteTimeout = 20 * time.Millisecond
	tw := NewTimeoutWriter(context.Background(), bw, cfg)
	defer tw.Close()

	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Write() error = %v, want ErrWriteTimeout", err)
	}
	// The writer stays failed.
	if _, err := tw.Write([]byte("y")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("second Write() error = %v, want ErrWriteTimeout", err)
	}
}

func TestTimeoutWriter_IdleTimeout(t *testing.T) {
	cfg := DefaultTimeoutWriterConfig()
	cfg.IdleTimeout = 20 * time.Millisecond
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), cfg)
	defer tw.Close()

	time.Sleep(80 * time.Millisecond)
	if _, err := tw.Write([]byte("late")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Write() error = %v, want ErrWriteTimeout", err)
	}
}

func TestTimeoutWriter_MaxDuration(t *testing.T) {
	cfg := DefaultTimeoutWriterConfig()
	cfg.MaxDuration = 10 * time.Millisecond
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), cfg)
	defer tw.Close()

	time.Sleep(20 * time.Millisecond)
	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Write() error = %v, want ErrWriteTimeout", err)
	}
}

func TestTimeoutWriter_Progress(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []int64
	)
	cfg := DefaultTimeoutWriterConfig()
	cfg.ChunkSize = 0
	cfg.ProgressInterval = 100
	cfg.OnProgress = func(written int64, _ time.Duration) {
		mu.Lock()
		calls = append(calls, written)
		mu.Unlock()
	}
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), cfg)
	defer tw.Close()

	for i := 0; i < 10; i++ {
		if _, err := tw.Write(make([]byte, 30)); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = tw.Write(make([]byte, 250))

	mu.Lock()
	defer mu.Unlock()
	want := []int64{120, 210, 300, 550}
	if len(calls) != len(want) {
		t.Fatalf("progress calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("progress calls = %v, want %v", calls, want)
			break
		}
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	errs := []error{ErrWriteTimeout, ErrClientGone, ErrStreamCanceled}
	for i := range errs {
		for j := range errs {
			if i != j && errors.Is(errs[i], errs[j]) {
				t.Errorf("%v matches %v", errs[i], errs[j])
			}
		}
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestServeFile(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 1000)
	path := writeFile(t, "mediacache_img_1.png", data)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/media?src=x", nil)
	if err := ServeFile(rec, req, path, DefaultTimeoutWriterConfig()); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("body mismatch")
	}
}

func TestServeFile_Range(t *testing.T) {
	path := writeFile(t, "clip.mp4", []byte("abcdefghijklmnopqrstuvwxyz"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/media?src=x", nil)
	req.Header.Set("Range", "bytes=2-5")
	if err := ServeFile(rec, req, path, DefaultTimeoutWriterConfig()); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}

	if rec.Code != http.StatusPartialContent {
		t.Errorf("status = %d, want 206", rec.Code)
	}
	if rec.Body.String() != "cdef" {
		t.Errorf("body = %q, want cdef", rec.Body.String())
	}
}

func TestServeFile_KeepsContentType(t *testing.T) {
	path := writeFile(t, "blob.bin", []byte("x"))
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/x-custom")

	if err := ServeFile(rec, httptest.NewRequest(http.MethodGet, "/", nil), path, DefaultTimeoutWriterConfig()); err != nil {
		t.Fatal(err)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/x-custom" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestServeFile_Errors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	err := ServeFile(httptest.NewRecorder(), req, filepath.Join(t.TempDir(), "missing.png"), DefaultTimeoutWriterConfig())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want ErrNotExist", err)
	}

	if err := ServeFile(httptest.NewRecorder(), req, t.TempDir(), DefaultTimeoutWriterConfig()); err == nil {
		t.Error("expected an error for a directory")
	}
}
