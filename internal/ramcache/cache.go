package ramcache

import (
	"image"
	"sort"
	"sync"

	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/mediatypes"
	"media-cache/internal/metrics"
	"media-cache/internal/storage"
)

// Entry is a cached image and its accounted size in bytes.
type Entry struct {
	Image image.Image
	Size  int64
}

// Cache maps media keys to decoded images.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	total   int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Put stores img under key, replacing any previous entry.
func (c *Cache) Put(key string, img image.Image) {
	if img == nil {
		return
	}
	size := Footprint(img)

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		c.total -= old.Size
	}
	c.entries[key] = Entry{Image: img, Size: size}
	c.total += size
	c.publishLocked()
	c.mu.Unlock()
}

// Get returns the image stored under key.
func (c *Cache) Get(key string) (image.Image, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		metrics.RAMCacheHitsTotal.Inc()
	} else {
		metrics.RAMCacheMissesTotal.Inc()
	}
	return e.Image, ok
}

// Remove evicts key. Removing a missing key is a no-op.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	c.removeLocked(key)
	c.publishLocked()
	c.mu.Unlock()
}

func (c *Cache) removeLocked(key string) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.total -= e.Size
	delete(c.entries, key)
	return true
}

// Contains reports whether key is cached.
func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// SizeOf returns the footprint of key, or 0 if it is not cached.
func (c *Cache) SizeOf(key string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[key].Size
}

// TotalSize returns the sum of all entry footprints.
func (c *Cache) TotalSize() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.total = 0
	c.publishLocked()
	c.mu.Unlock()
}

// RemoveAll evicts every image ref in refs and returns how many entries
// were dropped. Refs that are not images are skipped.
func (c *Cache) RemoveAll(refs []*media.Ref) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, ref := range refs {
		if ref == nil || ref.Category() != mediatypes.Image {
			continue
		}
		if c.removeLocked(ref.Key()) {
			removed++
		}
	}
	c.publishLocked()
	return removed
}

// DeleteAll deletes the local file of every image ref that is stored
// locally and evicts it from the cache. It returns the number of files
// deleted. Refs that are not images or not stored locally are skipped,
// as are files that cannot be removed.
func (c *Cache) DeleteAll(refs []*media.Ref) int {
	deleted := 0
	for _, ref := range refs {
		if ref == nil || ref.Category() != mediatypes.Image {
			continue
		}
		path := ref.LocalPath()
		if path == "" {
			continue
		}
		if err := storage.DeleteFile(path); err != nil {
			logging.Warn("ramcache: failed to delete %s: %v", path, err)
			continue
		}
		c.Remove(ref.Key())
		deleted++
	}
	return deleted
}

func (c *Cache) publishLocked() {
	metrics.RAMCacheEntries.Set(float64(len(c.entries)))
	metrics.RAMCacheBytes.Set(float64(c.total))
}

// Footprint returns the bytes held by img's pixel buffer. Image types
// without a known buffer are counted as 4 bytes per pixel.
func Footprint(img image.Image) int64 {
	switch m := img.(type) {
	case *image.RGBA:
		return int64(len(m.Pix))
	case *image.NRGBA:
		return int64(len(m.Pix))
	case *image.RGBA64:
		return int64(len(m.Pix))
	case *image.NRGBA64:
		return int64(len(m.Pix))
	case *image.Gray:
		return int64(len(m.Pix))
	case *image.Gray16:
		return int64(len(m.Pix))
	case *image.Alpha:
		return int64(len(m.Pix))
	case *image.Paletted:
		return int64(len(m.Pix) + 4*len(m.Palette))
	case *image.CMYK:
		return int64(len(m.Pix))
	case *image.YCbCr:
		return int64(len(m.Y) + len(m.Cb) + len(m.Cr))
	case *image.NYCbCrA:
		return int64(len(m.Y) + len(m.Cb) + len(m.Cr) + len(m.A))
	}
	if img == nil {
		return 0
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
