// Package handlers provides the HTTP handlers of the media cache API.
//
// It includes handlers for:
//   - Streaming cached media, resolving and persisting sources on demand
//   - Inspecting, prefetching and evicting cache entries
//   - Cache statistics and name classification
//   - Reconciling the index with the cache root, when a [Reconciler] is set
//   - Health, liveness, readiness and version probes
//
// Handlers talk to the cache through [MediaCache], which *pipeline.Pipeline
// implements.
//
// Sources are http(s) URLs, res:<id> keys, or absolute paths under one of
// the roots given to [Handlers.SetLocalRoots]. Anything else is rejected
// with 400, and local paths outside the roots with 403.
package handlers
