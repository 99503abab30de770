// Package playlist reads playlist files into lists of cache sources.
//
// Supported formats:
//   - WPL (Windows Playlist): XML-based playlist format used by Windows Media Player
//   - M3U and extended M3U, which also covers plain one-source-per-line lists
//
// Entries are resolved into sources the pipeline accepts:
//   - URLs and res:<id> keys are kept as they are
//   - Relative paths (e.g., ../folder/file.mp4) resolve against the playlist
//   - UNC paths (e.g., \\server\share\folder\file.mp4) and drive letter paths
//     (e.g., C:\folder\file.mp4) are looked up by file name next to the playlist
package playlist
