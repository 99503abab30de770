package media

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"media-cache/internal/bytebuf"
	"media-cache/internal/filesystem"
	"media-cache/internal/logging"
	"media-cache/internal/metrics"
)

const (
	// MaxImageDimension is the maximum width or height kept in memory.
	MaxImageDimension = 4096

	// MaxImagePixels caps total pixels (~80MB as RGBA).
	MaxImagePixels = 20_000_000
)

// ErrNotDecodable is returned for files no registered decoder understands.
var ErrNotDecodable = errors.New("media: not a decodable image")

// Dimensions holds image width and height
type Dimensions struct {
	Width  int
	Height int
}

// Decoder turns image files into image.Image values.
type Decoder struct {
	MaxDimension int
	MaxPixels    int
	// DisableVips forces the pure Go path even when libvips is available.
	DisableVips bool
}

// NewDecoder returns a Decoder with the default size limits.
func NewDecoder() *Decoder {
	return &Decoder{MaxDimension: MaxImageDimension, MaxPixels: MaxImagePixels}
}

// Decode loads path, dividing each dimension by shrink (values below 2 mean
// full size) and then constraining the result to the decoder limits.
func (d *Decoder) Decode(path string, shrink int) (image.Image, error) {
	start := time.Now()

	dims, err := ImageDimensions(path)
	if err != nil {
		metrics.DecodeFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrNotDecodable, path, err)
	}

	width, height := d.TargetSize(dims.Width, dims.Height, shrink)

	if !d.DisableVips && IsVipsAvailable() {
		img, err := decodeWithVips(path, width, height)
		if err == nil {
			metrics.DecodeDuration.WithLabelValues("vips").Observe(time.Since(start).Seconds())
			return img, nil
		}
		logging.Debug("vips decode failed for %s, falling back to imaging: %v", path, err)
	}

	img, err := decodeWithImaging(path, width, height)
	if err != nil {
		metrics.DecodeFailuresTotal.Inc()
		return nil, err
	}
	metrics.DecodeDuration.WithLabelValues("imaging").Observe(time.Since(start).Seconds())
	return img, nil
}

func decodeWithImaging(path string, width, height int) (image.Image, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	// AppendFrom closes the file.
	buf := bytebuf.FromReader(file)

	img, err := imaging.Decode(buf.Reader(), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img, nil
	}
	// AutoOrientation may have swapped the axes.
	if b.Dx() == height && b.Dy() == width {
		width, height = height, width
	}
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

// TargetSize applies the shrink factor and the decoder limits to the given
// dimensions, keeping the aspect ratio. Neither side drops below 1.
func (d *Decoder) TargetSize(width, height, shrink int) (int, int) {
	if shrink > 1 {
		width, height = width/shrink, height/shrink
	}

	maxDim := d.MaxDimension
	if maxDim > 0 && (width > maxDim || height > maxDim) {
		if width > height {
			height = height * maxDim / width
			width = maxDim
		} else {
			width = width * maxDim / height
			height = maxDim
		}
	}

	if d.MaxPixels > 0 && width*height > d.MaxPixels {
		scale := math.Sqrt(float64(d.MaxPixels) / float64(width*height))
		width = int(float64(width) * scale)
		height = int(float64(height) * scale)
	}

	return max(width, 1), max(height, 1)
}

// ImageDimensions returns image dimensions without fully decoding the image
func ImageDimensions(path string) (Dimensions, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return Dimensions{}, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return Dimensions{}, err
	}
	return Dimensions{Width: config.Width, Height: config.Height}, nil
}
