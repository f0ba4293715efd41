package resolver

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	defaultJPEGQuality = 85
	defaultMaxPixels   = 100 * 1000 * 1000 // 100 megapixels
)

// Downscaler shrinks oversized raster images before they are inlined, so a
// book of full-resolution scans does not balloon the document. Only JPEG and
// PNG are re-encoded; everything else passes through.
type Downscaler struct {
	MaxWidth    int
	JPEGQuality int
	MaxPixels   int // Total pixel count limit for decode (width * height)
}

// NewDownscaler returns a downscaler for maxWidth, or nil when maxWidth <= 0.
func NewDownscaler(maxWidth int) *Downscaler {
	if maxWidth <= 0 {
		return nil
	}
	return &Downscaler{
		MaxWidth:    maxWidth,
		JPEGQuality: defaultJPEGQuality,
		MaxPixels:   defaultMaxPixels,
	}
}

// Downscale returns data resized to MaxWidth, in the same format. The input
// is returned unchanged when it is narrow enough, not JPEG/PNG, or cannot be
// decoded; warning says why in the latter case.
func (d *Downscaler) Downscale(mediaType string, data []byte) (out []byte, warning string) {
	if d == nil {
		return data, ""
	}

	format := mediaTypeToFormat(mediaType)
	if format != "jpeg" && format != "png" {
		return data, ""
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, fmt.Sprintf("image decode failed: %v", err)
	}
	if cfg.Width <= d.MaxWidth {
		return data, ""
	}
	pixels := uint64(cfg.Width) * uint64(cfg.Height)
	if d.MaxPixels > 0 && pixels > uint64(d.MaxPixels) {
		return data, fmt.Sprintf("image too large to decode: %dx%d (%d pixels)", cfg.Width, cfg.Height, pixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, fmt.Sprintf("image decode failed: %v", err)
	}
	resized := imaging.Resize(src, d.MaxWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: d.JPEGQuality})
	case "png":
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		err = encoder.Encode(&buf, resized)
	}
	if err != nil {
		return data, fmt.Sprintf("%s encode failed: %v", format, err)
	}
	return buf.Bytes(), ""
}

func mediaTypeToFormat(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	default:
		return ""
	}
}
