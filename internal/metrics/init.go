package metrics

import "media-cache/internal/filesystem"

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	volumes := []string{"source", "cache", "database", "unknown"}
	fsOps := []string{"stat", "open", "create", "rename", "mkdir"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			for _, outcome := range filesystem.RetryOutcomes {
				FilesystemRetries.WithLabelValues(vol, op, string(outcome))
			}
		}
	}

	for _, status := range []string{"success", "failure"} {
		PersistOperationsTotal.WithLabelValues(status)
	}
	for _, reason := range []string{"source_missing", "io_failure", "root_unavailable", "canceled"} {
		PersistFailuresTotal.WithLabelValues(reason)
	}

	for _, provider := range []string{"http", "file", "resource"} {
		FetchRequestsTotal.WithLabelValues(provider, "success")
		FetchRequestsTotal.WithLabelValues(provider, "error")
		FetchDuration.WithLabelValues(provider)
	}

	for _, method := range []string{"vips", "imaging"} {
		DecodeDuration.WithLabelValues(method)
	}

	for _, source := range []string{"ram", "disk", "network", "error"} {
		PipelineRequestsTotal.WithLabelValues(source)
		PipelineDuration.WithLabelValues(source)
	}

	for _, status := range []string{"success", "error"} {
		ReconcileRunsTotal.WithLabelValues(status)
	}
	for _, kind := range []string{"stale", "corrupt", "orphan"} {
		ReconcileFindingsTotal.WithLabelValues(kind)
	}

	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"initialize_schema", "upsert_entry", "get_entry", "delete_entry",
		"list_entries", "count_entries", "vacuum"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
