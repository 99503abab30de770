package filesystem

import (
	"path/filepath"
	"strings"
)

// IsSubPath reports whether child is parent or lies beneath it. Both paths
// are made absolute and their symlinks resolved first, so a link inside
// parent that points elsewhere does not count. Missing trailing path
// elements are allowed.
func IsSubPath(parent, child string) bool {
	if parent == "" || child == "" {
		return false
	}
	p, err := resolvePath(parent)
	if err != nil {
		return false
	}
	c, err := resolvePath(child)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(p, c)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolvePath returns the absolute form of path with symlinks resolved in
// its longest existing prefix.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}

	dir := filepath.Dir(abs)
	if dir == abs {
		return abs, nil
	}
	real, err := resolvePath(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(real, filepath.Base(abs)), nil
}
