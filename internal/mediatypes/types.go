package mediatypes

// Category is the coarse content classification of a name or MIME string.
type Category int

const (
	// NotAFile is returned for empty input.
	NotAFile Category = iota
	Image
	Video
	Audio
	Text
	HTML
	CSS
	XML
	MicrosoftWord
	MicrosoftExcel
	MicrosoftPowerPoint
	Pdf
	SqlDatabase
	WindowsExecutable
	WindowsLibrary
	AndroidPackage
	JarArchive
	// Other is returned for anything no table claims.
	Other
)

var categoryNames = [...]string{
	NotAFile:            "not_a_file",
	Image:               "image",
	Video:               "video",
	Audio:               "audio",
	Text:                "text",
	HTML:                "html",
	CSS:                 "css",
	XML:                 "xml",
	MicrosoftWord:       "microsoft_word",
	MicrosoftExcel:      "microsoft_excel",
	MicrosoftPowerPoint: "microsoft_powerpoint",
	Pdf:                 "pdf",
	SqlDatabase:         "sql_database",
	WindowsExecutable:   "windows_executable",
	WindowsLibrary:      "windows_library",
	AndroidPackage:      "android_package",
	JarArchive:          "jar_archive",
	Other:               "other",
}

// String returns the stable lower-case name of the category.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "other"
	}
	return categoryNames[c]
}

// ParseCategory is the inverse of Category.String. Unknown names yield Other.
func ParseCategory(name string) Category {
	for i, n := range categoryNames {
		if n == name {
			return Category(i)
		}
	}
	return Other
}

// Categories lists every category in declaration order.
func Categories() []Category {
	out := make([]Category, 0, len(categoryNames))
	for i := range categoryNames {
		out = append(out, Category(i))
	}
	return out
}

// IsOffice reports whether c is one of the Microsoft Office formats.
func (c Category) IsOffice() bool {
	return c == MicrosoftWord || c == MicrosoftExcel || c == MicrosoftPowerPoint
}

// IsWeb reports whether c is a web document format.
func (c Category) IsWeb() bool {
	return c == HTML || c == CSS || c == XML
}

// Cache folder names under a cache root.
const (
	FolderImages    = "images"
	FolderAudios    = "audios"
	FolderVideos    = "videos"
	FolderPdf       = "pdf_files"
	FolderDatabases = "sql_databases"
	FolderText      = "text_files"
	FolderOffice    = "microsoft_office_files"
	FolderWeb       = "web_files"
	FolderOther     = "other_files"
)

// Folders lists every cache folder name.
var Folders = []string{
	FolderImages, FolderAudios, FolderVideos, FolderPdf, FolderDatabases,
	FolderText, FolderOffice, FolderWeb, FolderOther,
}

// FolderFor returns the cache subdirectory used for files of category c.
func FolderFor(c Category) string {
	switch {
	case c.IsOffice():
		return FolderOffice
	case c.IsWeb():
		return FolderWeb
	}
	switch c {
	case Image:
		return FolderImages
	case Audio:
		return FolderAudios
	case Video:
		return FolderVideos
	case Pdf:
		return FolderPdf
	case SqlDatabase:
		return FolderDatabases
	case Text:
		return FolderText
	}
	return FolderOther
}
