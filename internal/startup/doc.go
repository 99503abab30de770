// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] starts from [DefaultConfig], overlays the TOML file named by
// CONFIG_FILE (if any), then applies environment variables, which always win:
//
//   - CACHE_DIR: cache root holding the category folders (default: /cache)
//   - DATABASE_DIR: directory of the SQLite index (default: /database)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: enable the metrics server (default: true)
//   - CACHE_PREFIX: prefix of generated cache file names (default: mediacache)
//   - DECODE_SHRINK: default decode shrink factor (default: 1)
//   - COPY_LOCAL: copy local sources into the cache instead of using them in place
//   - LOCAL_ROOTS: PATH-style list of directories whose files HTTP clients
//     may request by absolute path (default: none, only URLs and res:<id>)
//   - FETCH_TIMEOUT: HTTP fetch timeout as a Go duration (default: 30s)
//   - FETCH_WORKERS: pipeline worker count (default: derived from GOMAXPROCS)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - LOG_STATIC_FILES: log successful media stream requests (default: false)
//   - LOG_HEALTH_CHECKS: log health probe requests (default: true)
//   - RECONCILE_INTERVAL: how often the index is checked against the cache
//     root (default: 6h, 0 disables)
//   - RECONCILE_VERIFY: compare checksums, not just sizes (default: false)
//   - RECONCILE_REMOVE_ORPHANS: delete cached files with no index entry
//     (default: false)
//
// Invalid environment values are logged and ignored. An unreadable or
// malformed CONFIG_FILE is a startup error.
//
// A config file looks like:
//
//	cache_dir = "/srv/media-cache"
//
//	[server]
//	port = "8080"
//	local_roots = ["/srv/media"]
//
//	[cache]
//	decode_shrink = 2
//
//	[fetch]
//	timeout = "45s"
//
//	[reconcile]
//	interval = "1h"
//	verify = true
//
// # Startup Logging
//
// The Log* functions print sectioned, human-readable progress while the
// server wires its components, and [LogHTTPRoutes] lists registered routes
// at debug level.
package startup
