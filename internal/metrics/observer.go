package metrics

import "media-cache/internal/filesystem"

type filesystemObserver struct{}

// NewFilesystemObserver returns a filesystem.Observer backed by the
// Filesystem* metrics.
func NewFilesystemObserver() filesystem.Observer {
	return filesystemObserver{}
}

func (filesystemObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, operation).Inc()
	}
}

func (filesystemObserver) ObserveRetry(volume, operation string, outcome filesystem.RetryOutcome) {
	FilesystemRetries.WithLabelValues(volume, operation, string(outcome)).Inc()
}
