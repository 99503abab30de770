package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"media-cache/internal/media"
)

// ErrNoProvider is returned when no provider is configured for a ref.
var ErrNoProvider = errors.New("fetch: no provider for ref")

// ErrNotFound is returned when the source does not exist.
var ErrNotFound = errors.New("fetch: source not found")

// Stream is an open source of bytes.
type Stream struct {
	Body io.ReadCloser
	// ContentType is the MIME type reported by the transport, or "".
	ContentType string
	// Size is the advertised length, or -1 when unknown.
	Size int64
	// Name is the source file name when the transport knows one.
	Name string
}

// Provider opens a stream for a ref.
type Provider interface {
	Open(ctx context.Context, ref *media.Ref) (*Stream, error)
}

// TransportError reports a failed network fetch.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRemote reports whether path is an http or https URL.
func IsRemote(path string) bool {
	p := strings.ToLower(path)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Router dispatches refs to the matching provider.
type Router struct {
	HTTP     Provider
	File     Provider
	Resource Provider
}

// Open implements Provider.
func (r *Router) Open(ctx context.Context, ref *media.Ref) (*Stream, error) {
	p := r.providerFor(ref)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, ref.Key())
	}
	return p.Open(ctx, ref)
}

func (r *Router) providerFor(ref *media.Ref) Provider {
	switch {
	case ref == nil:
		return nil
	case ref.IsResource():
		return r.Resource
	case IsRemote(ref.Path()):
		return r.HTTP
	default:
		return r.File
	}
}
