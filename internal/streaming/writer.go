package streaming

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"media-cache/internal/filesystem"
	"media-cache/internal/logging"
	"media-cache/internal/mediatypes"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout means a single write, the idle period or the total
	// duration exceeded its limit. Usually a client reading too slowly.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone means the request context ended before the body did.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled means the writer was closed while still in use.
	ErrStreamCanceled = errors.New("stream canceled")
)

// DefaultProgressInterval is the number of bytes between progress callbacks.
const DefaultProgressInterval = 1 << 20

// TimeoutWriterConfig configures the timeout writer behavior
type TimeoutWriterConfig struct {
	// WriteTimeout bounds a single write to the client.
	WriteTimeout time.Duration
	// IdleTimeout is the maximum time between successful writes.
	IdleTimeout time.Duration
	// MaxDuration bounds the whole response (0 = unlimited).
	MaxDuration time.Duration
	// ChunkSize splits large writes and flushes after each chunk (0 = off).
	ChunkSize int
	// ProgressInterval is the byte distance between OnProgress calls.
	ProgressInterval int64
	// OnProgress is called with the bytes written so far.
	OnProgress func(bytesWritten int64, elapsed time.Duration)
}

// DefaultTimeoutWriterConfig returns the settings used for cached media.
func DefaultTimeoutWriterConfig() TimeoutWriterConfig {
	return TimeoutWriterConfig{
		WriteTimeout:     30 * time.Second,
		IdleTimeout:      60 * time.Second,
		ChunkSize:        64 * 1024,
		ProgressInterval: DefaultProgressInterval,
	}
}

// TimeoutWriter is an http.ResponseWriter whose body writes give up on
// stalled clients.
type TimeoutWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	config  TimeoutWriterConfig

	mu           sync.Mutex
	startTime    time.Time
	lastWrite    time.Time
	bytesWritten int64
	nextProgress int64
	closed       bool
	failure      error
}

// NewTimeoutWriter wraps w. The writer stops when ctx ends, usually the
// request context.
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config TimeoutWriterConfig) *TimeoutWriter {
	writerCtx, cancel := context.WithCancel(ctx)
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = DefaultProgressInterval
	}

	now := time.Now()
	tw := &TimeoutWriter{
		w:            w,
		parent:       ctx,
		ctx:          writerCtx,
		cancel:       cancel,
		config:       config,
		startTime:    now,
		lastWrite:    now,
		nextProgress: config.ProgressInterval,
	}
	if flusher, ok := w.(http.Flusher); ok {
		tw.flusher = flusher
	}

	go tw.idleChecker()
	return tw
}

// Header implements http.ResponseWriter.
func (tw *TimeoutWriter) Header() http.Header { return tw.w.Header() }

// WriteHeader implements http.ResponseWriter.
func (tw *TimeoutWriter) WriteHeader(statusCode int) { tw.w.WriteHeader(statusCode) }

// Unwrap lets http.ResponseController reach the underlying writer.
func (tw *TimeoutWriter) Unwrap() http.ResponseWriter { return tw.w }

// Flush implements http.Flusher.
func (tw *TimeoutWriter) Flush() {
	if tw.flusher != nil {
		tw.flusher.Flush()
	}
}

// Write implements io.Writer with timeout protection
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	if err := tw.check(); err != nil {
		return 0, err
	}

	if tw.config.ChunkSize <= 0 || len(p) <= tw.config.ChunkSize {
		return tw.writeWithTimeout(p)
	}

	total := 0
	for len(p) > 0 {
		if err := tw.check(); err != nil {
			return total, err
		}
		n := min(tw.config.ChunkSize, len(p))
		written, err := tw.writeWithTimeout(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]
		tw.Flush()
	}
	return total, nil
}

// check reports why the writer can no longer write, if it cannot.
func (tw *TimeoutWriter) check() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.failure != nil {
		return tw.failure
	}
	if tw.closed {
		return ErrStreamCanceled
	}
	if tw.config.MaxDuration > 0 && time.Since(tw.startTime) > tw.config.MaxDuration {
		tw.failLocked(ErrWriteTimeout)
		return ErrWriteTimeout
	}
	if tw.ctx.Err() != nil {
		tw.failLocked(tw.contextError())
		return tw.failure
	}
	return nil
}

func (tw *TimeoutWriter) writeWithTimeout(p []byte) (int, error) {
	type writeResult struct {
		n   int
		err error
	}
	resultCh := make(chan writeResult, 1)

	go func() {
		n, err := tw.w.Write(p)
		resultCh <- writeResult{n, err}
	}()

	timer := time.NewTimer(tw.config.WriteTimeout)
	if tw.config.WriteTimeout <= 0 {
		timer.Stop()
	}
	defer timer.Stop()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return result.n, result.err
		}
		tw.recordWrite(result.n)
		return result.n, nil

	case <-timer.C:
		tw.fail(ErrWriteTimeout)
		return 0, ErrWriteTimeout

	case <-tw.ctx.Done():
		tw.mu.Lock()
		if tw.failure == nil {
			tw.failLocked(tw.contextError())
		}
		err := tw.failure
		tw.mu.Unlock()
		return 0, err
	}
}

func (tw *TimeoutWriter) recordWrite(n int) {
	tw.mu.Lock()
	tw.lastWrite = time.Now()
	tw.bytesWritten += int64(n)
	written := tw.bytesWritten
	report := tw.config.OnProgress != nil && written >= tw.nextProgress
	if report {
		for tw.nextProgress <= written {
			tw.nextProgress += tw.config.ProgressInterval
		}
	}
	tw.mu.Unlock()

	if report {
		tw.config.OnProgress(written, time.Since(tw.startTime))
	}
}

func (tw *TimeoutWriter) fail(err error) {
	tw.mu.Lock()
	tw.failLocked(err)
	tw.mu.Unlock()
}

func (tw *TimeoutWriter) failLocked(err error) {
	if tw.failure == nil {
		tw.failure = err
	}
	tw.cancel()
}

func (tw *TimeoutWriter) idleChecker() {
	if tw.config.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(tw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tw.mu.Lock()
			idle := time.Since(tw.lastWrite)
			if !tw.closed && idle > tw.config.IdleTimeout {
				tw.failLocked(ErrWriteTimeout)
				tw.mu.Unlock()
				logging.Warn("Stream idle timeout exceeded: %v", idle)
				return
			}
			tw.mu.Unlock()

		case <-tw.ctx.Done():
			return
		}
	}
}

// contextError maps the end of the writer context to a sentinel.
func (tw *TimeoutWriter) contextError() error {
	if tw.parent.Err() != nil {
		return ErrClientGone
	}
	return ErrStreamCanceled
}

// Err returns the error that stopped the writer, or nil.
func (tw *TimeoutWriter) Err() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.failure
}

// Close stops the writer. Further writes fail with ErrStreamCanceled.
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if !tw.closed {
		tw.closed = true
		tw.cancel()
	}
	return nil
}

// Stats returns streaming statistics
func (tw *TimeoutWriter) Stats() (bytesWritten int64, duration time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten, time.Since(tw.startTime)
}

// ServeFile writes the file at path to w with http.ServeContent, so range
// and conditional requests work, through a TimeoutWriter. The content type
// comes from the file extension when the caller has not set one.
// It returns os.ErrNotExist style errors before anything is written, and
// the writer's error if the stream broke off.
func ServeFile(w http.ResponseWriter, r *http.Request, path string, config TimeoutWriterConfig) error {
	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &os.PathError{Op: "serve", Path: path, Err: errors.New("is a directory")}
	}

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("Failed to close %s: %v", path, err)
		}
	}()

	h := w.Header()
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", mediatypes.MimeFor(filepath.Ext(path)))
	}
	h.Set("X-Content-Type-Options", "nosniff")

	tw := NewTimeoutWriter(r.Context(), w, config)
	defer func() { _ = tw.Close() }()

	http.ServeContent(tw, r, filepath.Base(path), info.ModTime(), f)

	bytesWritten, duration := tw.Stats()
	logging.Debug("Served %s: %d bytes in %v", path, bytesWritten, duration)
	return tw.Err()
}
