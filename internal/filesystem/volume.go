package filesystem

import (
	"path/filepath"
	"sort"
	"strings"
)

// UnknownVolume labels paths outside every configured volume.
const UnknownVolume = "unknown"

// VolumeResolver maps file paths to known volume names for metric labeling.
// It uses longest-prefix matching on absolute paths.
type VolumeResolver struct {
	// mounts is sorted by path length descending for longest-prefix matching
	mounts []volumeMount
}

type volumeMount struct {
	path string // absolute path with trailing slash (e.g., "/cache/")
	name string
}

// NewVolumeResolver creates a resolver from a map of volume name to path.
//
//	NewVolumeResolver(map[string]string{
//	    "cache":    "/var/cache/media",
//	    "database": "/var/lib/media",
//	})
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, path := range volumes {
		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}
		if !strings.HasSuffix(absPath, "/") {
			absPath += "/"
		}
		mounts = append(mounts, volumeMount{path: absPath, name: name})
	}

	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].path) > len(mounts[j].path)
	})

	return &VolumeResolver{mounts: mounts}
}

// Resolve returns the volume name for path, or UnknownVolume.
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return UnknownVolume
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return UnknownVolume
	}

	for _, mount := range vr.mounts {
		if strings.HasPrefix(absPath+"/", mount.path) {
			return mount.name
		}
	}
	return UnknownVolume
}

// defaultResolver is the package-level resolver set at startup
var defaultResolver *VolumeResolver

// SetDefaultVolumeResolver sets the package-level volume resolver.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver = vr
}
