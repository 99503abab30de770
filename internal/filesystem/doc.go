/*
Package filesystem wraps the filesystem calls made by the media cache with
retry logic for NFS stale file handle errors and with per-volume metrics.

Cache roots are frequently NFS or SMB mounts shared by several processes, so
every stat, open, create, rename and mkdir on them goes through this package:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	f, err := filesystem.CreateTempWithRetry(dir, ".name-*", 0o644, cfg)
	err = filesystem.MkdirAllWithRetry(dir, 0o755, cfg)

Only ESTALE triggers a retry, with exponential backoff (50ms, 100ms, 200ms by
default, capped at MaxBackoff). Every other error is returned immediately.

MkdirAllWithRetry is idempotent: an existing directory is success, and an
EEXIST raised by a concurrent creator is retried once before being reported.

Metric labels come from a VolumeResolver that maps path prefixes to volume
names ("cache", "database", "source"). Recording goes through the Observer
interface so this package does not import the metrics package.

IsSubPath confines client-supplied paths to a root. Both sides have their
symlinks resolved before comparing.
*/
package filesystem
