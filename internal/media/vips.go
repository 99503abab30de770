package media

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"media-cache/internal/logging"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// vipsLevels maps the application log level to the most verbose libvips
// level that is still forwarded.
var vipsLevels = map[logging.LogLevel]vips.LogLevel{
	logging.LevelDebug: vips.LogLevelInfo,
	logging.LevelInfo:  vips.LogLevelWarning,
	logging.LevelWarn:  vips.LogLevelError,
	logging.LevelError: vips.LogLevelCritical,
}

// vipsLogHandler forwards libvips messages to the application logger.
// Lower vips levels are more severe.
func vipsLogHandler(threshold vips.LogLevel) func(string, vips.LogLevel, string) {
	return func(domain string, level vips.LogLevel, msg string) {
		if level > threshold {
			return
		}
		switch {
		case level <= vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case level == vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}
}

// InitVips initializes libvips. It is safe to call more than once.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	threshold, ok := vipsLevels[logging.GetLevel()]
	if !ok {
		threshold = vips.LogLevelWarning
	}
	// Must be configured before Startup to take effect.
	vips.LoggingSettings(vipsLogHandler(threshold), threshold)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips releases libvips. libvips cannot be restarted afterwards.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// decodeWithVips loads path with libvips, shrinking to fit width x height
// during the load, and converts the result to an image.Image.
func decodeWithVips(path string, width, height int) (image.Image, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available")
	}

	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if width > 0 && height > 0 && (ref.Width() != width || ref.Height() != height) {
		logging.Debug("vips shrinking %s from %dx%d to %dx%d",
			filepath.Base(path), ref.Width(), ref.Height(), width, height)
		if err := ref.Thumbnail(width, height, vips.InterestingNone); err != nil {
			return nil, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	// PNG keeps alpha and is lossless, which matters for images held in RAM.
	buf, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode vips output: %w", err)
	}
	return img, nil
}
