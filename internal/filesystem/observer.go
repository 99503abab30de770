package filesystem

// RetryOutcome labels one step of the ESTALE retry loop.
type RetryOutcome string

const (
	// RetryStale is recorded for every stale file handle error.
	RetryStale RetryOutcome = "stale"
	// RetryAttempt is recorded before each retry.
	RetryAttempt RetryOutcome = "attempt"
	// RetryRecovered is recorded when a retry succeeds.
	RetryRecovered RetryOutcome = "recovered"
	// RetryExhausted is recorded when the retry budget runs out.
	RetryExhausted RetryOutcome = "exhausted"
)

// RetryOutcomes lists every outcome, for pre-populating metrics.
var RetryOutcomes = []RetryOutcome{RetryStale, RetryAttempt, RetryRecovered, RetryExhausted}

// Observer records filesystem metrics. The metrics package implements it so
// filesystem does not import metrics.
type Observer interface {
	// ObserveOperation records the duration and result of one operation:
	// "stat", "open", "create", "rename" or "mkdir".
	ObserveOperation(volume, operation string, durationSeconds float64, err error)
	// ObserveRetry records a step of the retry loop for operation.
	ObserveRetry(volume, operation string, outcome RetryOutcome)
}

var defaultObserver Observer

// SetObserver installs the package-level observer. Nil disables recording.
func SetObserver(o Observer) {
	defaultObserver = o
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, float64, error) {}

func (nopObserver) ObserveRetry(string, string, RetryOutcome) {}

func observe() Observer {
	if defaultObserver == nil {
		return nopObserver{}
	}
	return defaultObserver
}
