package filesystem

import (
	"os"
	"path/filepath"

	"media-cache/internal/logging"
)

// TreeSize returns the total size and count of regular files directly in
// root and in its immediate subdirectories. Deeper levels are not visited,
// which matches the one-folder-per-category cache layout.
func TreeSize(root string) (size int64, count int, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, 0, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			if info, err := entry.Info(); err == nil && info.Mode().IsRegular() {
				size += info.Size()
				count++
			}
			continue
		}

		sub := filepath.Join(root, entry.Name())
		children, err := os.ReadDir(sub)
		if err != nil {
			logging.Debug("TreeSize: skipping unreadable directory %s: %v", sub, err)
			continue
		}
		for _, child := range children {
			if child.IsDir() {
				continue
			}
			if info, err := child.Info(); err == nil && info.Mode().IsRegular() {
				size += info.Size()
				count++
			}
		}
	}
	return size, count, nil
}
