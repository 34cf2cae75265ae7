package domain

import (
	"fmt"
	"math"
	"strings"
)

// Encoding is the target MIME type of rendered artifacts.
type Encoding string

const (
	EncodingWebP Encoding = "image/webp"
	EncodingJPEG Encoding = "image/jpeg"
	EncodingPNG  Encoding = "image/png"
)

// Extension returns the filename extension without the dot.
func (e Encoding) Extension() string {
	switch e {
	case EncodingJPEG:
		return "jpg"
	case EncodingPNG:
		return "png"
	default:
		return "webp"
	}
}

// ParseEncoding accepts a MIME type or a short format name.
func ParseEncoding(v string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "webp", "image/webp":
		return EncodingWebP, nil
	case "jpg", "jpeg", "image/jpeg":
		return EncodingJPEG, nil
	case "png", "image/png":
		return EncodingPNG, nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrInvalidOptions, v)
	}
}

const (
	// FixedAspect is the width:height ratio used when cropping is enabled.
	FixedAspect = 4.0 / 3.0

	DefaultQuality  = 0.8
	DefaultMaxWidth = 1600

	minSliderQuality = 0.4
	maxSliderQuality = 1.0
)

// ProcessingOptions describes one orchestration run and is applied uniformly
// to every eligible item.
type ProcessingOptions struct {
	Quality           float64
	MaxWidth          int
	Encoding          Encoding
	CropToFixedAspect bool
}

// DefaultProcessingOptions mirrors the defaults of the upload screen.
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		Quality:           DefaultQuality,
		MaxWidth:          DefaultMaxWidth,
		Encoding:          EncodingWebP,
		CropToFixedAspect: true,
	}
}

// Validate checks the ranges the transcode engine supports.
func (o ProcessingOptions) Validate() error {
	if math.IsNaN(o.Quality) || o.Quality <= 0 || o.Quality > 1 {
		return fmt.Errorf("%w: quality %.2f outside (0,1]", ErrInvalidOptions, o.Quality)
	}
	if o.MaxWidth <= 0 {
		return fmt.Errorf("%w: max width must be positive", ErrInvalidOptions)
	}
	switch o.Encoding {
	case EncodingWebP, EncodingJPEG, EncodingPNG:
	default:
		return fmt.Errorf("%w: unsupported encoding %q", ErrInvalidOptions, o.Encoding)
	}
	return nil
}

// ClampQuality maps user input onto the quality slider: [0.4, 1.0] in 0.1
// steps. NaN falls back to the default.
func ClampQuality(q float64) float64 {
	if math.IsNaN(q) {
		return DefaultQuality
	}
	if q < minSliderQuality {
		q = minSliderQuality
	}
	if q > maxSliderQuality {
		q = maxSliderQuality
	}
	return math.Round(q*10) / 10
}
