// Package database provides the SQLite index of cached media.
//
// Every file the pipeline materialises under the cache root is recorded in
// the cached_media table, keyed by the source locator (a path, URL or
// "res:<id>"). On restart the index lets a locator resolve straight to its
// cached file without fetching it again. A small metadata table holds
// key-value bookkeeping such as the time of the last purge.
//
// The database uses WAL mode for improved concurrent read performance
// and includes automatic schema initialization.
package database
