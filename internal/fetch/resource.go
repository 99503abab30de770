package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"media-cache/internal/media"
	"media-cache/internal/mediatypes"
	"media-cache/internal/metrics"
)

// ResourceProvider serves embedded resources. Names maps each resource ID to
// a file inside FS.
type ResourceProvider struct {
	FS    fs.FS
	Names map[int]string
}

// NewResourceProvider creates a ResourceProvider.
func NewResourceProvider(fsys fs.FS, names map[int]string) *ResourceProvider {
	return &ResourceProvider{FS: fsys, Names: names}
}

// Open implements Provider.
func (p *ResourceProvider) Open(_ context.Context, ref *media.Ref) (*Stream, error) {
	start := time.Now()

	id, ok := ref.ResourceID()
	if !ok {
		return nil, p.fail(fmt.Errorf("fetch: %s is not a resource ref", ref.Key()))
	}
	name, ok := p.Names[id]
	if !ok || p.FS == nil {
		return nil, p.fail(fmt.Errorf("%w: resource %d", ErrNotFound, id))
	}

	f, err := p.FS.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: resource %d (%s)", ErrNotFound, id, name)
		}
		return nil, p.fail(err)
	}

	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	metrics.FetchRequestsTotal.WithLabelValues("resource", "success").Inc()
	metrics.FetchDuration.WithLabelValues("resource").Observe(time.Since(start).Seconds())

	base := path.Base(name)
	return &Stream{
		Body:        f,
		ContentType: mediatypes.MimeFor(mediatypes.ExtensionFromName(base)),
		Size:        size,
		Name:        base,
	}, nil
}

func (p *ResourceProvider) fail(err error) error {
	metrics.FetchRequestsTotal.WithLabelValues("resource", "error").Inc()
	return err
}
