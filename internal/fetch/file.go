package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"media-cache/internal/filesystem"
	"media-cache/internal/media"
	"media-cache/internal/mediatypes"
	"media-cache/internal/metrics"
)

// FileProvider opens local files.
type FileProvider struct {
	Retry filesystem.RetryConfig
}

// NewFileProvider creates a FileProvider with the default NFS retry settings.
func NewFileProvider() *FileProvider {
	return &FileProvider{Retry: filesystem.DefaultRetryConfig()}
}

// Open implements Provider.
func (p *FileProvider) Open(_ context.Context, ref *media.Ref) (*Stream, error) {
	start := time.Now()
	path := ref.Path()

	info, err := filesystem.StatWithRetry(path, p.Retry)
	if err != nil {
		return nil, p.fail(path, err)
	}
	if info.IsDir() {
		return nil, p.fail(path, errors.New("is a directory"))
	}

	f, err := filesystem.OpenWithRetry(path, p.Retry)
	if err != nil {
		return nil, p.fail(path, err)
	}

	metrics.FetchRequestsTotal.WithLabelValues("file", "success").Inc()
	metrics.FetchDuration.WithLabelValues("file").Observe(time.Since(start).Seconds())

	name := filepath.Base(path)
	return &Stream{
		Body:        f,
		ContentType: mediatypes.MimeFor(mediatypes.ExtensionFromName(name)),
		Size:        info.Size(),
		Name:        name,
	}, nil
}

func (p *FileProvider) fail(path string, err error) error {
	metrics.FetchRequestsTotal.WithLabelValues("file", "error").Inc()
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return fmt.Errorf("fetch %s: %w", path, err)
}
