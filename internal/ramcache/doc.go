// Package ramcache keeps decoded images in memory keyed by media reference.
//
// The cache is unbounded: entries stay until they are removed explicitly,
// the cache is cleared, or the process exits. Callers remove entries when
// they know the backing file is stale. Every method is safe for concurrent
// use.
package ramcache
