package media

import (
	"strconv"
	"strings"
	"sync"

	"media-cache/internal/filesystem"
	"media-cache/internal/mediatypes"
)

// resourceKeyPrefix marks cache keys of embedded resources.
const resourceKeyPrefix = "res:"

// Ref identifies a piece of media by exactly one locator: a path or an
// embedded resource ID. Locators are fixed at construction.
type Ref struct {
	path       string
	resourceID int
	isResource bool

	mu         sync.RWMutex
	cachedPath string
}

// NewPathRef creates a Ref for a filesystem path or network URL.
func NewPathRef(path string) *Ref {
	return &Ref{path: path}
}

// NewResourceRef creates a Ref for an embedded resource.
func NewResourceRef(id int) *Ref {
	return &Ref{resourceID: id, isResource: true}
}

// ParseRef builds a Ref from its Key form.
func ParseRef(key string) *Ref {
	if rest, ok := strings.CutPrefix(key, resourceKeyPrefix); ok {
		if id, err := strconv.Atoi(rest); err == nil {
			return NewResourceRef(id)
		}
	}
	return NewPathRef(key)
}

// Path returns the original path, or "" for resource refs.
func (r *Ref) Path() string { return r.path }

// ResourceID returns the resource ID and whether r is a resource ref.
func (r *Ref) ResourceID() (int, bool) { return r.resourceID, r.isResource }

// IsResource reports whether r points at an embedded resource.
func (r *Ref) IsResource() bool { return r.isResource }

// Key returns the stable cache key.
func (r *Ref) Key() string {
	if r.isResource {
		return resourceKeyPrefix + strconv.Itoa(r.resourceID)
	}
	return r.path
}

func (r *Ref) String() string { return r.Key() }

// CachedPath returns the path of the cached copy, or "".
func (r *Ref) CachedPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cachedPath
}

// SetCachedPath records where the media was persisted.
func (r *Ref) SetCachedPath(path string) {
	r.mu.Lock()
	r.cachedPath = path
	r.mu.Unlock()
}

// Category classifies the original path. Resource refs have no name of
// their own, so their cached path is classified instead.
func (r *Ref) Category() mediatypes.Category {
	if r.isResource {
		return mediatypes.Classify(r.CachedPath())
	}
	return mediatypes.Classify(r.path)
}

// IsStoredLocally reports whether the original path or the cached path is an
// existing regular file.
func (r *Ref) IsStoredLocally() bool {
	return r.LocalPath() != ""
}

// LocalPath returns the original path when it is a local file, else the
// cached path when it exists, else "".
func (r *Ref) LocalPath() string {
	if !r.isResource && filesystem.IsRegularFile(r.path) {
		return r.path
	}
	if cached := r.CachedPath(); filesystem.IsRegularFile(cached) {
		return cached
	}
	return ""
}
