package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"

	"media-cache/internal/filesystem"
	"media-cache/internal/logging"
	"media-cache/internal/mediatypes"
	"media-cache/internal/metrics"
)

// DefaultChunkSize is the copy buffer size used when Options.ChunkSize is zero.
const DefaultChunkSize = 8192

// ProgressFunc receives the cumulative number of bytes written after each chunk.
type ProgressFunc func(written int64)

// Options configures a Persister.
type Options struct {
	ChunkSize int
	DirPerm   os.FileMode
	FilePerm  os.FileMode
	Retry     filesystem.RetryConfig
}

// DefaultOptions returns the options used by the service.
func DefaultOptions() Options {
	return Options{
		ChunkSize: DefaultChunkSize,
		DirPerm:   0o755,
		FilePerm:  0o644,
		Retry:     filesystem.DefaultRetryConfig(),
	}
}

// Result describes a completed write.
type Result struct {
	Path     string
	Size     int64
	Checksum string // hex BLAKE2b-256 of the written bytes
	Category mediatypes.Category
	Duration time.Duration
}

// Persister writes byte sources to disk.
type Persister struct {
	opts Options
}

// New creates a Persister. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *Persister {
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.DirPerm == 0 {
		opts.DirPerm = def.DirPerm
	}
	if opts.FilePerm == 0 {
		opts.FilePerm = def.FilePerm
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialBackoff == 0 {
		opts.Retry = def.Retry
	}
	return &Persister{opts: opts}
}

// Persist streams src to dir/name and returns the resulting path. The path is
// only returned once every byte has been written, synced and the file
// renamed into place. On failure or cancellation nothing is left in dir.
func (p *Persister) Persist(ctx context.Context, dir, name string, src io.Reader, progress ProgressFunc) (string, error) {
	res, err := p.Write(ctx, dir, name, src, progress)
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// Write is Persist returning the full Result.
func (p *Persister) Write(ctx context.Context, dir, name string, src io.Reader, progress ProgressFunc) (Result, error) {
	dest := filepath.Join(dir, name)
	if src == nil {
		return Result{}, p.fail(newError("persist", dest, SourceMissing, nil))
	}

	start := time.Now()

	if err := filesystem.MkdirAllWithRetry(dir, p.opts.DirPerm, p.opts.Retry); err != nil {
		// Not fatal on its own: the create below reports the real failure.
		logging.Warn("storage: %v", newError("mkdir", dir, DirectoryCreateFailure, err))
	}

	// Bytes land in a hidden temp file that is renamed into place once
	// complete, so dest never holds a partial copy.
	f, err := filesystem.CreateTempWithRetry(dir, "."+name+"-*", p.opts.FilePerm, p.opts.Retry)
	if err != nil {
		return Result{}, p.fail(newError("create", dest, IOFailure, err))
	}
	tmp := f.Name()

	hasher, _ := blake2b.New256(nil)
	written, copyErr := p.copyChunks(ctx, dest, io.MultiWriter(f, hasher), src, progress)

	if copyErr == nil {
		if err := f.Sync(); err != nil {
			copyErr = newError("sync", dest, IOFailure, err)
		}
	}
	if err := f.Close(); err != nil && copyErr == nil {
		copyErr = newError("close", dest, IOFailure, err)
	}
	if copyErr == nil {
		if err := filesystem.RenameWithRetry(tmp, dest, p.opts.Retry); err != nil {
			copyErr = newError("rename", dest, IOFailure, err)
		}
	}
	if copyErr != nil {
		if err := DeleteFile(tmp); err != nil {
			logging.Warn("storage: failed to remove partial file %s: %v", tmp, err)
		}
		var se *Error
		if !errors.As(copyErr, &se) {
			copyErr = newError("write", dest, IOFailure, copyErr)
		}
		return Result{}, p.fail(copyErr)
	}

	res := Result{
		Path:     dest,
		Size:     written,
		Checksum: sum(hasher),
		Category: mediatypes.Classify(name),
		Duration: time.Since(start),
	}

	metrics.PersistOperationsTotal.WithLabelValues("success").Inc()
	metrics.PersistBytesTotal.Add(float64(written))
	metrics.PersistDuration.Observe(res.Duration.Seconds())
	logging.Debug("storage: wrote %d bytes to %s in %v", written, dest, res.Duration)

	return res, nil
}

// copyChunks copies src to dst in ChunkSize pieces, calling progress after
// each chunk and checking ctx before each read.
func (p *Persister) copyChunks(ctx context.Context, dest string, dst io.Writer, src io.Reader, progress ProgressFunc) (int64, error) {
	buf := make([]byte, p.opts.ChunkSize)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return total, newError("write", dest, Canceled, ctx.Err())
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			total += int64(w)
			if err != nil {
				return total, err
			}
			if w != n {
				return total, io.ErrShortWrite
			}
			if progress != nil {
				progress(total)
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

// PersistFile copies the file at srcPath to dir/name.
func (p *Persister) PersistFile(ctx context.Context, dir, name, srcPath string, progress ProgressFunc) (Result, error) {
	f, err := p.openSource(srcPath)
	if err != nil {
		return Result{}, p.fail(err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("storage: failed to close source %s: %v", srcPath, err)
		}
	}()
	return p.Write(ctx, dir, name, f, progress)
}

// PersistToCache classifies srcPath, copies it into root/<category folder>
// under a generated name keeping the source extension.
func (p *Persister) PersistToCache(ctx context.Context, root, prefix, srcPath string, progress ProgressFunc) (Result, error) {
	f, err := p.openSource(srcPath)
	if err != nil {
		return Result{}, p.fail(err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("storage: failed to close source %s: %v", srcPath, err)
		}
	}()

	if root == "" {
		return Result{}, p.fail(newError("persist", srcPath, RootUnavailable, nil))
	}

	category := mediatypes.Classify(srcPath)
	dir := filepath.Join(root, mediatypes.FolderFor(category))
	name := mediatypes.GenerateName(prefix, category) + mediatypes.ExtensionFromName(filepath.Base(srcPath))

	res, err := p.Write(ctx, dir, name, f, progress)
	if err != nil {
		return Result{}, err
	}
	res.Category = category
	return res, nil
}

// PersistStreamToCache stores a stream whose only type information is its
// MIME type, as delivered by a network transport. Category, folder and
// extension all derive from mime.
func (p *Persister) PersistStreamToCache(ctx context.Context, root, prefix, mime string, src io.Reader, progress ProgressFunc) (Result, error) {
	if src == nil {
		return Result{}, p.fail(newError("persist", root, SourceMissing, nil))
	}
	if root == "" {
		return Result{}, p.fail(newError("persist", mime, RootUnavailable, nil))
	}

	category := mediatypes.Classify(mime)
	if category == mediatypes.NotAFile {
		category = mediatypes.Other
	}
	dir := filepath.Join(root, mediatypes.FolderFor(category))
	name := mediatypes.GenerateName(prefix, category) + mediatypes.ExtensionFor(mime)

	res, err := p.Write(ctx, dir, name, src, progress)
	if err != nil {
		return Result{}, err
	}
	res.Category = category
	return res, nil
}

// openSource opens srcPath for reading, rejecting missing files and directories.
func (p *Persister) openSource(srcPath string) (*os.File, error) {
	if srcPath == "" {
		return nil, newError("open", srcPath, SourceMissing, nil)
	}
	info, err := filesystem.StatWithRetry(srcPath, p.opts.Retry)
	if err != nil {
		return nil, newError("open", srcPath, SourceMissing, err)
	}
	if info.IsDir() {
		return nil, newError("open", srcPath, SourceMissing, errors.New("source is a directory"))
	}
	f, err := filesystem.OpenWithRetry(srcPath, p.opts.Retry)
	if err != nil {
		return nil, newError("open", srcPath, SourceMissing, err)
	}
	return f, nil
}

func (p *Persister) fail(err error) error {
	reason := ReasonOf(err)
	metrics.PersistOperationsTotal.WithLabelValues("failure").Inc()
	metrics.PersistFailuresTotal.WithLabelValues(reason.String()).Inc()
	if reason == Canceled {
		logging.Debug("storage: %v", err)
	} else {
		logging.Warn("storage: %v", err)
	}
	return err
}

// CacheSize sums the regular files in root and its category folders.
func CacheSize(root string) (int64, error) {
	size, _, err := filesystem.TreeSize(root)
	return size, err
}

// DeleteFile removes a single cached file. A file that is already gone is
// not an error.
func DeleteFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Checksum returns the hex BLAKE2b-256 of the file at path, the same digest
// Write records in Result.Checksum.
func Checksum(path string) (string, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher, _ := blake2b.New256(nil)
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return sum(hasher), nil
}

func sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
