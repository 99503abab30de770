// Package indexer keeps the SQLite cache index consistent with the files
// under the cache root.
//
// A reconciliation walks the cache root in parallel and compares what it
// finds with the index:
//   - Stale entries point at files that no longer exist
//   - Corrupt entries point at files whose size (or checksum) changed
//   - Orphans are cached files no entry points at
//   - Misfiled files sit outside the folder their name classifies into
//
// Stale and corrupt entries are dropped, and corrupt files deleted. Orphans
// are only deleted when asked. Hidden files are ignored.
//
// Reconciliation runs periodically once [Indexer.Start] is called, and on
// demand through [Indexer.Reconcile].
package indexer
