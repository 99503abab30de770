// Command mediacache fetches sources into a media cache and maintains it
// from the command line, without a running server.
//
// Usage:
//
//	mediacache [flags] <command> [args]
//
// Commands:
//
//	fetch <src>...      Resolve URLs, local paths or res:<id> into the cache
//	classify <name>...  Show category, folder and extension for names or MIME types
//	stats               Show disk usage and index size
//	purge <src>...      Delete cached image files and their index entries
//	reconcile           Check the index against the cache root
//	version             Print build information
//
// The cache and index locations come from the same configuration the server
// reads (CONFIG_FILE, CACHE_DIR, DATABASE_DIR, ...) and can be overridden
// with --cache-dir and --database-dir. --json switches every command to
// JSON output. When stdout is a terminal, fetch shows transfer progress.
package main
