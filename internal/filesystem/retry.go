package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
	"time"

	"media-cache/internal/logging"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the package-level resolver for this operation.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c *RetryConfig) resolveVolume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Resolve(path)
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

// withRetry runs fn until it succeeds, fails with a non-ESTALE error, or the
// retry budget is spent.
func withRetry[T any](op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	start := time.Now()
	volume := config.resolveVolume(path)
	obs := observe()
	backoff := config.InitialBackoff

	var (
		result T
		err    error
	)
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("NFS %s succeeded on retry %d for %s", op, attempt, path)
				obs.ObserveRetry(volume, op, RetryRecovered)
			}
			obs.ObserveOperation(volume, op, time.Since(start).Seconds(), nil)
			return result, nil
		}

		if !isNFSStaleError(err) {
			obs.ObserveOperation(volume, op, time.Since(start).Seconds(), err)
			return result, err
		}

		obs.ObserveRetry(volume, op, RetryStale)

		if attempt < config.MaxRetries {
			obs.ObserveRetry(volume, op, RetryAttempt)
			logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
				op, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("NFS %s failed after %d retries for %s: %v", op, config.MaxRetries, path, err)
	obs.ObserveRetry(volume, op, RetryExhausted)
	obs.ObserveOperation(volume, op, time.Since(start).Seconds(), err)
	return result, err
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open with retry logic for NFS stale file handle errors
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}

// CreateTempWithRetry creates a new file in dir named from pattern, as
// os.CreateTemp does, and sets its mode to perm.
func CreateTempWithRetry(dir, pattern string, perm os.FileMode, config RetryConfig) (*os.File, error) {
	f, err := withRetry("create", dir, config, func() (*os.File, error) {
		return os.CreateTemp(dir, pattern)
	})
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}

// RenameWithRetry moves oldpath to newpath, replacing newpath if it exists.
func RenameWithRetry(oldpath, newpath string, config RetryConfig) error {
	_, err := withRetry("rename", newpath, config, func() (struct{}, error) {
		return struct{}{}, os.Rename(oldpath, newpath)
	})
	return err
}

// MkdirAllWithRetry creates dir and any missing parents. An existing
// directory is not an error, and an EEXIST caused by a concurrent creator
// is retried once.
func MkdirAllWithRetry(dir string, perm os.FileMode, config RetryConfig) error {
	_, err := withRetry("mkdir", dir, config, func() (struct{}, error) {
		err := os.MkdirAll(dir, perm)
		if errors.Is(err, fs.ErrExist) {
			err = os.MkdirAll(dir, perm)
		}
		return struct{}{}, err
	})
	return err
}

// IsRegularFile reports whether path names an existing non-directory file.
func IsRegularFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		return false
	}
	return !info.IsDir()
}
