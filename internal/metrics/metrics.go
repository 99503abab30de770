package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_cache_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)

	IndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_index_entries",
			Help: "Number of cached files recorded in the index",
		},
	)
)

// Persist metrics
var (
	PersistOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_persist_operations_total",
			Help: "Total number of persist operations by status",
		},
		[]string{"status"},
	)

	PersistFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_persist_failures_total",
			Help: "Total number of failed persist operations by reason",
		},
		[]string{"reason"},
	)

	PersistBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_persist_bytes_total",
			Help: "Total bytes written to the cache",
		},
	)

	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_cache_persist_duration_seconds",
			Help:    "Time taken to write a source to disk",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// RAM and disk cache metrics
var (
	RAMCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_ram_hits_total",
			Help: "Total number of RAM image cache hits",
		},
	)

	RAMCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_ram_misses_total",
			Help: "Total number of RAM image cache misses",
		},
	)

	RAMCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_ram_entries",
			Help: "Number of decoded images held in RAM",
		},
	)

	RAMCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_ram_bytes",
			Help: "Accounted size of decoded images held in RAM",
		},
	)

	DiskCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_disk_bytes",
			Help: "Total size of files under the cache root",
		},
	)

	DiskCacheFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_disk_files",
			Help: "Number of files under the cache root",
		},
	)
)

// Fetch and decode metrics
var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_fetch_requests_total",
			Help: "Total number of source fetches by provider and status",
		},
		[]string{"provider", "status"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_fetch_duration_seconds",
			Help:    "Time to open a source stream",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	DecodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_decode_duration_seconds",
			Help:    "Image decode duration by method",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method"}, // "vips", "imaging"
	)

	DecodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_decode_failures_total",
			Help: "Total number of images that could not be decoded",
		},
	)
)

// Pipeline metrics
var (
	PipelineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_pipeline_requests_total",
			Help: "Total number of resolved media requests by source",
		},
		[]string{"source"}, // "ram", "disk", "network", "error"
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_pipeline_duration_seconds",
			Help:    "End to end request duration by source",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	PipelineTasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_pipeline_tasks_in_flight",
			Help: "Number of pipeline tasks currently running",
		},
	)

	PipelineCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_pipeline_coalesced_total",
			Help: "Requests that shared an in-flight fetch for the same key",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by volume and operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	// FilesystemRetries counts NFS stale handle handling. outcome is
	// stale, attempt, recovered or exhausted.
	FilesystemRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_filesystem_retries_total",
			Help: "NFS stale file handle retry steps by volume, operation and outcome",
		},
		[]string{"volume", "operation", "outcome"},
	)
)

// Memory metrics
var (
	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_go_memlimit_bytes",
			Help: "Configured GOMEMLIMIT in bytes",
		},
	)

	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_go_memory_alloc_bytes",
			Help: "Current heap allocation in bytes",
		},
	)

	GoMemSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_go_memory_sys_bytes",
			Help: "Total memory obtained from the OS",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_memory_usage_ratio",
			Help: "Memory usage as a ratio of GOMEMLIMIT (0.0-1.0)",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_memory_paused",
			Help: "Whether decoding is paused due to memory pressure (1=paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_memory_gc_pauses_total",
			Help: "Times decoding was paused for memory pressure",
		},
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_cache_app_info",
			Help: "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// Index reconciliation metrics
var (
	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_reconcile_runs_total",
			Help: "Index reconciliation runs by outcome",
		},
		[]string{"status"},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_cache_reconcile_duration_seconds",
			Help:    "Duration of index reconciliation runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	ReconcileFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_reconcile_findings_total",
			Help: "Problems found by index reconciliation by kind",
		},
		[]string{"kind"},
	)

	ReconcileWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_reconcile_workers",
			Help: "Number of workers used by the last reconciliation walk",
		},
	)
)
