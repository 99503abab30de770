package fetch

import (
	"context"
	"net/http"
	"path"
	"time"

	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/metrics"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "media-cache/1.0"

// HTTPProvider fetches http and https URLs.
type HTTPProvider struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPProvider creates a provider whose requests time out after timeout.
// A zero timeout leaves requests bounded only by their context.
func NewHTTPProvider(timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: DefaultUserAgent,
	}
}

// Open issues a GET and returns the response body. Non-2xx responses are
// TransportErrors; 404 and 410 also match ErrNotFound.
func (p *HTTPProvider) Open(ctx context.Context, ref *media.Ref) (*Stream, error) {
	start := time.Now()
	url := ref.Path()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, p.fail(&TransportError{URL: url, Err: err})
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, p.fail(&TransportError{URL: url, Err: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if err := resp.Body.Close(); err != nil {
			logging.Debug("fetch: failed to close body for %s: %v", url, err)
		}
		var cause error
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			cause = ErrNotFound
		}
		return nil, p.fail(&TransportError{URL: url, StatusCode: resp.StatusCode, Err: cause})
	}

	metrics.FetchRequestsTotal.WithLabelValues("http", "success").Inc()
	metrics.FetchDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())
	logging.Debug("fetch: GET %s -> %d (%s, %d bytes)", url, resp.StatusCode,
		resp.Header.Get("Content-Type"), resp.ContentLength)

	return &Stream{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Name:        path.Base(resp.Request.URL.Path),
	}, nil
}

func (p *HTTPProvider) fail(err error) error {
	metrics.FetchRequestsTotal.WithLabelValues("http", "error").Inc()
	logging.Warn("%v", err)
	return err
}
