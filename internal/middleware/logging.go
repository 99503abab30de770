package middleware

import (
	"log"
	"net/http"
	"strings"
	"time"
)

// responseWriter captures the status code and body size for the access log.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	SkipPaths []string
	// StreamPaths are routes that serve cached media bodies. Successful
	// responses on them are only logged when LogMediaStreams is set.
	StreamPaths     []string
	LogMediaStreams bool
	LogHealthChecks bool
}

// DefaultLoggingConfig returns the default configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{"/metrics"},
		StreamPaths:     []string{"/api/media"},
		LogMediaStreams: false,
		LogHealthChecks: true,
	}
}

// W3CLogger writes access log lines in W3C Extended Log Format.
type W3CLogger struct {
	config LoggingConfig
	logger *log.Logger
}

// NewW3CLogger creates a W3C logger. A nil logger means the standard one.
func NewW3CLogger(config LoggingConfig, logger *log.Logger) *W3CLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &W3CLogger{config: config, logger: logger}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// sanitizeLogField drops control characters so request data cannot forge
// log lines or emit terminal escapes. Newlines become spaces.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '\x00' || r == '\x1b':
			continue
		case r < 0x20 && r != '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logger returns HTTP logging middleware using W3C Extended Log Format
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return NewW3CLogger(config, nil).Middleware
}

// Middleware wraps next with access logging.
func (l *W3CLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkip(r.URL.Path, l.config) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := newResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		if l.isQuietStream(r, wrapped.statusCode) {
			return
		}
		l.logRequest(r, wrapped, time.Since(start))
	})
}

// isQuietStream reports whether a successful media body should stay out
// of the log. Failures are always logged.
func (l *W3CLogger) isQuietStream(r *http.Request, status int) bool {
	if l.config.LogMediaStreams || r.Method != http.MethodGet || status >= 400 {
		return false
	}
	for _, p := range l.config.StreamPaths {
		if r.URL.Path == p {
			return true
		}
	}
	return false
}

// logRequest logs a request in W3C Extended Log Format
func (l *W3CLogger) logRequest(r *http.Request, rw *responseWriter, duration time.Duration) {
	now := time.Now().UTC()

	clientIP := sanitizeLogField(getClientIP(r))
	method := sanitizeLogField(r.Method)
	uriStem := sanitizeLogField(r.URL.Path)
	uriQuery := orDash(sanitizeLogField(r.URL.RawQuery))
	contentEncoding := orDash(rw.Header().Get("Content-Encoding"))
	mediaSource := orDash(sanitizeLogField(rw.Header().Get("X-Media-Source")))
	referer := orDash(sanitizeLogField(r.Header.Get("Referer")))

	userAgent := sanitizeLogField(r.Header.Get("User-Agent"))
	if userAgent == "" {
		userAgent = "-"
	} else {
		userAgent = escapeW3CField(userAgent)
	}

	// date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken
	// sc(Content-Encoding) sc(X-Media-Source) cs(User-Agent) cs(Referer)
	//nolint:gosec // every request-controlled field passed through sanitizeLogField
	l.logger.Printf("%s %s %s %s %s %s %d %d %d %s %s %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		clientIP,
		method,
		uriStem,
		uriQuery,
		rw.statusCode,
		rw.bytesWritten,
		duration.Milliseconds(),
		contentEncoding,
		mediaSource,
		userAgent,
		referer,
	)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, skipPath := range config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return !config.LogHealthChecks && healthCheckPaths[path]
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// escapeW3CField quotes values containing spaces, tabs or quotes.
func escapeW3CField(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}
