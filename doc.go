// Package main provides the entry point for the media cache server.
//
// The server resolves media references (local paths, http(s) URLs and
// embedded resources) into files under a categorized disk cache, decodes
// images into an in-memory cache, and streams the cached files over HTTP.
//
// # Application Lifecycle
//
//  1. Configuration Loading: defaults, CONFIG_FILE, then environment variables
//  2. Memory Configuration: sets GOMEMLIMIT from MEMORY_LIMIT
//  3. Index Initialization: opens the SQLite index of cached files
//  4. Component Initialization:
//     - Decoder: libvips when available, pure Go otherwise
//     - Memory Monitor: pauses decoding under memory pressure
//     - Pipeline: worker pool, fetch providers, persister and RAM cache
//     - Metrics Collector: publishes cache gauges every 30 seconds
//  5. HTTP Server Setup: routes, middleware, optional metrics server
//  6. Graceful Shutdown: handles SIGINT/SIGTERM
//
// # HTTP Server
//
// The main server (default port 8080) exposes:
//
//   - GET /api/media?src=...&shrink=N: stream the cached file for src
//   - DELETE /api/media?src=...&disk=true: evict, optionally deleting the file
//   - GET /api/media/info?src=...: cache state of src without fetching
//   - POST /api/media/prefetch: persist {"sources": [...]} without decoding
//   - GET /api/cache/stats: RAM, disk and index statistics
//   - GET /api/classify?name=...: category and cache folder for a name or MIME type
//   - GET /health, /livez, /readyz, /version
//
// The metrics server (default port 9090) serves /metrics.
//
// # Graceful Shutdown
//
//  1. Mark the server not ready
//  2. Shut down the HTTP and metrics servers (30s timeout)
//  3. Close the pipeline, waiting for running tasks and pending callbacks
//  4. Stop the metrics collector and memory monitor
//  5. Close the index and shut down libvips
//
// # Build Requirements
//
// CGO is required for SQLite and libvips.
package main
