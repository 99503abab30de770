package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the environment variable that pins the worker count.
const OverrideEnv = "FETCH_WORKERS"

// Count returns the number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound work such as decoding
//   - 2.0 for I/O-bound work such as fetching and persisting
//   - 1.5 for mixed work
//
// The limit parameter caps the result. Use 0 for no limit.
//
// FETCH_WORKERS overrides the computed value.
func Count(multiplier float64, limit int) int {
	return count(os.Getenv(OverrideEnv), runtime.GOMAXPROCS(0), multiplier, limit)
}

func count(override string, available int, multiplier float64, limit int) int {
	if override != "" {
		if n, err := strconv.Atoi(override); err == nil && n > 0 {
			return capAt(n, limit)
		}
	}

	n := int(float64(available) * multiplier)
	if n < 1 {
		n = 1
	}
	return capAt(n, limit)
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}
