// Package metrics provides Prometheus instrumentation for the media cache.
//
// All metrics are registered with the default registry through promauto and
// are prefixed with "media_cache_".
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Pipeline Metrics
//   - PipelineRequestsTotal: resolved requests by source (ram/disk/network/error)
//   - PipelineDuration: end to end latency by source
//   - PipelineTasksInFlight, PipelineCoalescedTotal
//
// ## Persist Metrics
//   - PersistOperationsTotal, PersistFailuresTotal (by storage.Reason)
//   - PersistBytesTotal, PersistDuration
//
// ## Cache Metrics
//   - RAMCacheHitsTotal, RAMCacheMissesTotal, RAMCacheEntries, RAMCacheBytes
//   - DiskCacheBytes, DiskCacheFiles (updated by the Collector)
//
// ## Fetch and Decode Metrics
//   - FetchRequestsTotal, FetchDuration by provider (http/file/resource)
//   - DecodeDuration by method (vips/imaging), DecodeFailuresTotal
//
// ## Database, Filesystem and Memory Metrics
//   - DBQueryTotal, DBQueryDuration, DBConnectionsOpen, DBSizeBytes, IndexEntries
//   - FilesystemOperationDuration, FilesystemOperationErrors and FilesystemRetries, recorded through
//     the filesystem.Observer returned by NewFilesystemObserver
//   - GoMemLimit, GoMemAllocBytes, GoMemSysBytes, MemoryUsageRatio,
//     MemoryPaused, MemoryGCPauses
//
// # Collector
//
// Collector periodically pulls cache statistics from a StatsProvider, the
// SQLite file sizes and Go runtime memory stats:
//
//	collector := metrics.NewCollector(pipeline, dbPath, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// RAM hit rate:
//
//	rate(media_cache_ram_hits_total[5m]) /
//	(rate(media_cache_ram_hits_total[5m]) + rate(media_cache_ram_misses_total[5m]))
//
// Persist failures by reason:
//
//	sum(rate(media_cache_persist_failures_total[5m])) by (reason)
package metrics
