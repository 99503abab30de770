// Package mediatypes classifies names, paths, URLs and MIME strings into a
// coarse content Category, and derives extensions, cache folder names and
// collision-resistant file names from that category.
//
// This package is a dependency-free foundation imported by storage, media
// and the HTTP layer. Everything in it is a pure function of its input apart
// from the random component of GenerateName.
//
// # Classification
//
// Classify accepts either a MIME type or something that ends in a file name:
//
//	mediatypes.Classify("image/png")                     // Image
//	mediatypes.Classify("text/html; charset=utf-8")      // HTML
//	mediatypes.Classify("/sdcard/Download/report.xlsx")  // MicrosoftExcel
//	mediatypes.Classify("https://cdn.example.com/a.mp4?x=1") // Video
//	mediatypes.Classify("")                              // NotAFile
//
// Matching is exact on the extension after the last dot of the base name, or
// on the MIME token with parameters removed. When several tables could claim
// an input the first one in precedence order wins:
// image, video, audio, text, office, pdf, web, windows binaries, database,
// packages. Anything unmatched is Other.
//
// # Extensions and names
//
//	mediatypes.ExtensionFor("image/jpeg")         // ".jpg"
//	mediatypes.ExtensionFor("application/x-foo")  // ".bin"
//	mediatypes.ExtensionFromName("a.tar.gz")      // ".gz"
//	mediatypes.GenerateName("avatar", mediatypes.Image)
//	// avatar_picture_1734012345678_8123..._4410..._...
//
// # Cache folders
//
// FolderFor maps a category to its subdirectory under a cache root (images,
// audios, videos, pdf_files, sql_databases, text_files,
// microsoft_office_files, web_files, other_files).
package mediatypes
