package mediatypes

import "strings"

// DefaultExtension is returned by ExtensionFor for unknown or empty MIME types.
const DefaultExtension = ".bin"

// DefaultMimeType is returned by MimeFor for unknown extensions.
const DefaultMimeType = "application/octet-stream"

// MimeExtensions maps MIME types to their canonical leading-dot extension.
var MimeExtensions = map[string]string{
	// Images
	"image/apng":               ".apng",
	"image/avif":               ".avif",
	"image/gif":                ".gif",
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/svg+xml":            ".svg",
	"image/webp":               ".webp",
	"image/bmp":                ".bmp",
	"image/ief":                ".ief",
	"image/pipeg":              ".pipeg",
	"image/tiff":               ".tiff",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",

	// Audio
	"audio/flac":           ".flac",
	"audio/x-mpegurl":      ".m3u",
	"audio/x-m4b":          ".m4b",
	"audio/mpeg":           ".mp3",
	"audio/ogg":            ".ogg",
	"audio/x-scpls":        ".pls",
	"audio/wav":            ".wav",
	"audio/x-wav":          ".wav",
	"audio/aac":            ".aac",
	"audio/webm":           ".webm",
	"audio/x-ms-wma":       ".wma",
	"audio/basic":          ".au",
	"audio/mid":            ".mid",
	"audio/midi":           ".mid",
	"audio/3gpp2":          ".3g2",
	"application/xspf+xml": ".xspf",

	// Video
	"video/x-flv":      ".flv",
	"video/mp4":        ".mp4",
	"video/3gpp":       ".3gp",
	"video/quicktime":  ".mov",
	"video/x-msvideo":  ".avi",
	"video/x-ms-wmv":   ".wmv",
	"video/mpeg":       ".mpeg",
	"video/ogg":        ".ogv",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",

	// Packages and archives
	"application/vnd.android.package-archive": ".apk",
	"application/zip":                         ".zip",
	"application/java-archive":                ".jar",
	"application/vnd.rar":                     ".rar",
	"application/x-rar-compressed":            ".rar",
	"application/x-tar":                       ".tar",

	// Documents
	"application/pdf":                                                           ".pdf",
	"application/msword":                                                        ".doc",
	"application/vnd.ms-excel":                                                  ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.sqlite3":                                                   ".db",

	// Text and web
	"text/html":                ".html",
	"text/css":                 ".css",
	"text/calendar":            ".ics",
	"text/csv":                 ".csv",
	"text/xml":                 ".xml",
	"application/xml":          ".xml",
	"text/plain":               ".txt",
	"application/json":         ".json",
	"application/xhtml+xml":    ".xhtml",
	"application/octet-stream": ".bin",
}

// ExtensionFor returns the canonical extension for a MIME type, ignoring
// case and parameters. Unknown or empty types yield DefaultExtension.
func ExtensionFor(mimeType string) string {
	token := mimeToken(strings.ToLower(strings.TrimSpace(mimeType)))
	if ext, ok := MimeExtensions[token]; ok {
		return ext
	}
	return DefaultExtension
}

// ExtensionFromName returns the part of name after its last dot, with the
// dot, or "" when name has no dot.
func ExtensionFromName(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i:]
}

// extensionMimes is the inverse of MimeExtensions plus extensions that only
// appear on the classification side.
var extensionMimes = func() map[string]string {
	m := map[string]string{
		".jpeg": "image/jpeg",
		".tif":  "image/tiff",
		".heic": "image/heic",
		".heif": "image/heif",
		".mpg":  "video/mpeg",
		".m4v":  "video/x-m4v",
		".ts":   "video/mp2t",
		".m4a":  "audio/mp4",
		".opus": "audio/opus",
		".htm":  "text/html",
		".webm": "video/webm",
		".xml":  "application/xml",
		".ico":  "image/x-icon",
		".wav":  "audio/wav",
		".mid":  "audio/midi",
		".rar":  "application/vnd.rar",
	}
	for mime, ext := range MimeExtensions {
		if _, ok := m[ext]; !ok {
			m[ext] = mime
		}
	}
	return m
}()

// MimeFor returns a MIME type for a leading-dot extension (any case).
// Unknown extensions yield DefaultMimeType.
func MimeFor(ext string) string {
	if mime, ok := extensionMimes[strings.ToLower(ext)]; ok {
		return mime
	}
	return DefaultMimeType
}
