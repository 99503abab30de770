// Package storage streams byte sources to durable storage and routes cache
// writes into per-category folders under a cache root.
//
// A Persister copies its source in fixed-size chunks, creating parent
// directories as needed, reporting cumulative progress after every chunk and
// checking the context between chunks. Every failure is returned as an
// *Error carrying a Reason, so callers can branch with errors.Is against the
// package sentinels:
//
//	res, err := p.PersistToCache(ctx, root, "mediacache", "/tmp/report.xlsx", nil)
//	if errors.Is(err, storage.ErrSourceMissing) {
//		// nothing was written
//	}
//
// Bytes are written to a hidden ".<name>-*" temp file next to the
// destination and renamed into place once synced. A failed or canceled
// write removes the temp file, so the destination is either complete or
// absent.
package storage
