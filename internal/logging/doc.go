// Package logging provides the leveled logger used across the media cache.
//
// Levels, from most to least verbose:
//   - DEBUG: per-chunk and per-decision detail (cache hits, routing, retries)
//   - INFO: lifecycle messages (startup sections, persisted files)
//   - WARN: recoverable problems (directory creation failed, close errors)
//   - ERROR: failed operations surfaced to a caller
//
// The level is read once from DEBUG or LOG_LEVEL. The startup configuration
// may override it later with SetLevel when a config file names a level.
package logging
