package mediatypes

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// DefaultPrefix is used by GenerateName when no prefix is given.
const DefaultPrefix = "mediacache"

// nameTag returns the category tag embedded in generated names.
func nameTag(c Category) string {
	switch {
	case c == HTML || c == CSS:
		return "web_file"
	case c.IsOffice():
		return "microsoft_office"
	}
	switch c {
	case SqlDatabase:
		return "database"
	case AndroidPackage:
		return "android_application"
	case JarArchive:
		return "jar"
	case Image:
		return "picture"
	case Video:
		return "movie"
	case Audio:
		return "audio"
	case Pdf:
		return "pdf"
	case Text:
		return "text"
	case XML:
		return "xml"
	}
	return "other_files"
}

// GenerateName returns a file name (without extension) of the form
//
//	prefix_tag_millis_r1_r2_millis*r_r3
//
// The random fields come from the runtime's ChaCha8 generator, so two calls
// in the same millisecond still differ with overwhelming probability.
func GenerateName(prefix string, c Category) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	millis := uint64(time.Now().UnixMilli())

	var b strings.Builder
	b.Grow(len(prefix) + 96)
	b.WriteString(prefix)
	b.WriteByte('_')
	b.WriteString(nameTag(c))
	b.WriteByte('_')
	b.WriteString(strconv.FormatUint(millis, 10))
	b.WriteByte('_')
	b.WriteString(strconv.FormatUint(rand.Uint64(), 10))
	b.WriteByte('_')
	b.WriteString(strconv.FormatUint(rand.Uint64(), 10))
	b.WriteByte('_')
	b.WriteString(strconv.FormatUint(millis*uint64(rand.Uint32()), 10))
	b.WriteByte('_')
	b.WriteString(strconv.FormatUint(rand.Uint64(), 10))
	return b.String()
}

// GenerateNameForMIME returns a generated name for content of the given MIME
// type, with the matching extension appended.
func GenerateNameForMIME(prefix, mimeType string) string {
	return GenerateName(prefix, Classify(mimeType)) + ExtensionFor(mimeType)
}
