package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"media-cache/internal/logging"
)

const (
	// DefaultMemoryRatio is the share of container memory given to the Go heap.
	// The rest covers libvips buffers outside the Go heap and goroutine stacks.
	DefaultMemoryRatio = 0.85
)

// ConfigResult holds the result of memory configuration
type ConfigResult struct {
	// Configured indicates whether GOMEMLIMIT was set
	Configured bool

	// Source indicates where the configuration came from
	Source string // "GOMEMLIMIT", "MEMORY_LIMIT", or "none"

	// ContainerLimit is the container memory limit in bytes (0 if not set)
	ContainerLimit int64

	// GoMemLimit is the configured GOMEMLIMIT in bytes (0 if not set)
	GoMemLimit int64

	// Ratio is the memory ratio used (0 if not applicable)
	Ratio float64
}

// ConfigureFromEnv sets GOMEMLIMIT from the container memory limit.
// Call it early in main, before the RAM cache starts filling.
//
// Environment variables:
//   - GOMEMLIMIT: if set, it wins and nothing is changed
//   - MEMORY_LIMIT: container memory limit in bytes (Kubernetes Downward API)
//   - MEMORY_RATIO: share of MEMORY_LIMIT for the Go heap (default 0.85)
func ConfigureFromEnv() ConfigResult {
	return configure(os.Getenv, debug.SetMemoryLimit)
}

func configure(getenv func(string) string, setLimit func(int64) int64) ConfigResult {
	if goMemLimitEnv := getenv("GOMEMLIMIT"); goMemLimitEnv != "" {
		result := ConfigResult{Source: "GOMEMLIMIT"}
		if limit := setLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", goMemLimitEnv)
		return result
	}

	memLimitStr := getenv("MEMORY_LIMIT")
	if memLimitStr == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
		return ConfigResult{Source: "none"}
	}

	memLimit, err := strconv.ParseInt(memLimitStr, 10, 64)
	if err != nil || memLimit <= 0 {
		logging.Warn("Failed to parse MEMORY_LIMIT %q", memLimitStr)
		return ConfigResult{Source: "none"}
	}

	ratio := DefaultMemoryRatio
	if ratioStr := getenv("MEMORY_RATIO"); ratioStr != "" {
		parsed, err := strconv.ParseFloat(ratioStr, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using default %.2f", ratioStr, err, DefaultMemoryRatio)
		case parsed <= 0 || parsed > 1.0:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using default %.2f", ratioStr, DefaultMemoryRatio)
		default:
			ratio = parsed
		}
	}

	goMemLimit := int64(float64(memLimit) * ratio)
	setLimit(goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		FormatBytes(goMemLimit), ratio*100, FormatBytes(memLimit))

	return ConfigResult{
		Configured:     true,
		Source:         "MEMORY_LIMIT",
		ContainerLimit: memLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

// FormatBytes formats bytes into a human-readable IEC string.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
