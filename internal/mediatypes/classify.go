package mediatypes

import (
	"path"
	"strings"
)

// rule binds a category to the extensions and exact MIME tokens that select it.
type rule struct {
	category   Category
	extensions map[string]bool
	mimeTypes  map[string]bool
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}

// rules is ordered by precedence; the first matching rule wins.
var rules = []rule{
	{
		category: Image,
		extensions: set(".webp", ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".gifv",
			".apng", ".avif", ".jfif", ".pjpeg", ".pjp", ".svg", ".ico", ".cur",
			".tif", ".tiff", ".heic", ".heif"),
	},
	{
		category: Video,
		extensions: set(".mp4", ".mpg", ".mpeg", ".3gp", ".mkv", ".webm", ".flv",
			".vob", ".ogv", ".ovv", ".drc", ".f4b", ".mnv", ".avi", ".ts", ".mov",
			".qt", ".wmv", ".yuv", ".viv", ".asf", ".amv", ".m4v", ".svi", ".3g2",
			".mxf", ".roq", ".nsv", ".f4v", ".f4p", ".f4a"),
	},
	{
		category: Audio,
		extensions: set(".aa", ".aac", ".act", ".aiff", ".alac", ".ape", ".amr",
			".au", ".awb", ".dss", ".dvf", ".flac", ".gsm", ".iklax", ".ivs",
			".m3u", ".m4a", ".m4b", ".m4p", ".mid", ".midi", ".mmf", ".mp3", ".mpc",
			".msv", ".nmf", ".ogg", ".oga", ".mogg", ".opus", ".org", ".pls", ".ra",
			".rm", ".raw", ".rf64", ".sln", ".tta", ".voc", ".vox", ".wav", ".wma",
			".wv", ".8svx", ".cda"),
		mimeTypes: set("application/xspf+xml"),
	},
	{
		category:   Text,
		extensions: set(".txt"),
		mimeTypes:  set("text/plain"),
	},
	{
		category: MicrosoftExcel,
		extensions: set(".xls", ".xlt", ".xla", ".xlsx", ".xlsm", ".xltx", ".xltm",
			".xlam"),
		mimeTypes: set("application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
	},
	{
		category: MicrosoftWord,
		extensions: set(".doc", ".dot", ".wbk", ".docx", ".docm", ".dotx", ".dotm",
			".docb"),
		mimeTypes: set("application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
	},
	{
		category:   MicrosoftPowerPoint,
		extensions: set(".ppt", ".pptx", ".pptm"),
		mimeTypes: set("application/vnd.ms-powerpoint",
			"application/vnd.openxmlformats-officedocument.presentationml.presentation"),
	},
	{
		category:   Pdf,
		extensions: set(".pdf"),
		mimeTypes:  set("application/pdf"),
	},
	{
		category:   HTML,
		extensions: set(".htm", ".html", ".xhtml"),
		mimeTypes:  set("text/html", "application/xhtml+xml"),
	},
	{
		category:   CSS,
		extensions: set(".css"),
		mimeTypes:  set("text/css"),
	},
	{
		category:   XML,
		extensions: set(".xml"),
		mimeTypes:  set("text/xml", "application/xml"),
	},
	{
		category:   WindowsExecutable,
		extensions: set(".exe"),
		mimeTypes: set("application/vnd.microsoft.portable-executable",
			"application/x-msdownload"),
	},
	{
		category:   WindowsLibrary,
		extensions: set(".lib", ".dll"),
	},
	{
		category:   SqlDatabase,
		extensions: set(".db", ".sqlite", ".sqlite3", ".mdf", ".sdf"),
		mimeTypes:  set("application/vnd.sqlite3", "application/x-sqlite3"),
	},
	{
		category:   AndroidPackage,
		extensions: set(".apk", ".aab"),
		mimeTypes:  set("application/vnd.android.package-archive"),
	},
	{
		category:   JarArchive,
		extensions: set(".jar"),
		mimeTypes:  set("application/java-archive", "application/x-java-archive"),
	},
}

// mimeFamilies maps a MIME top-level type to the category used when the
// full token is not in any rule.
var mimeFamilies = map[string]Category{
	"image": Image,
	"video": Video,
	"audio": Audio,
	"text":  Text,
}

// topLevelTypes are the registered MIME top-level types.
var topLevelTypes = set("application", "audio", "font", "image", "message",
	"model", "multipart", "text", "video")

// Classify returns the content category of a name, path, URL or MIME string.
// It never fails: empty input is NotAFile and unmatched input is Other.
func Classify(s string) Category {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return NotAFile
	}

	token := mimeToken(s)
	for _, r := range rules {
		if r.mimeTypes[token] {
			return r.category
		}
	}
	if ext := nameExtension(s); ext != "" {
		for _, r := range rules {
			if r.extensions[ext] {
				return r.category
			}
		}
	}
	if family, ok := looksLikeMIME(token); ok {
		if c, ok := mimeFamilies[family]; ok {
			return c
		}
	}
	return Other
}

// IsImage reports whether s classifies as an image.
func IsImage(s string) bool {
	return Classify(s) == Image
}

// mimeToken strips MIME parameters ("; charset=utf-8").
func mimeToken(s string) string {
	token, _, _ := strings.Cut(s, ";")
	return strings.TrimSpace(token)
}

// looksLikeMIME reports whether token has the type/subtype shape with a
// registered top-level type, returning the top-level type.
func looksLikeMIME(token string) (string, bool) {
	family, sub, ok := strings.Cut(token, "/")
	if !ok || sub == "" || strings.ContainsAny(sub, "/ ") {
		return "", false
	}
	return family, topLevelTypes[family]
}

// nameExtension returns the lower-case extension of the base name in s,
// ignoring any URL query or fragment.
func nameExtension(s string) string {
	s, _, _ = strings.Cut(s, "#")
	s, _, _ = strings.Cut(s, "?")
	s = strings.ReplaceAll(s, "\\", "/")
	return path.Ext(path.Base(s))
}
