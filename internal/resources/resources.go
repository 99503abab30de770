// Package resources embeds the images served for resource refs ("res:<id>").
package resources

import (
	"embed"
	"io/fs"
)

// Resource IDs.
const (
	Placeholder = 1
	Error       = 2
)

//go:embed *.png
var files embed.FS

// Names maps resource IDs to file names inside FS.
var Names = map[int]string{
	Placeholder: "placeholder.png",
	Error:       "error.png",
}

// FS returns the embedded resource files.
func FS() fs.FS {
	return files
}
