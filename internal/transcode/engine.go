// Package transcode implements the decode, crop, downscale and re-encode
// pipeline for a single image.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	// Registers the WebP decoder with image.Decode; imaging already pulls in
	// the stdlib formats plus BMP and TIFF.
	_ "golang.org/x/image/webp"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"listingprep/internal/domain"
	"listingprep/internal/infra"
)

// Options configures an Engine.
type Options struct {
	Logger *infra.Logger
}

// Engine turns source images into rendered artifacts. It holds no per-call
// state and may be shared.
type Engine struct {
	logger *infra.Logger
	filter imaging.ResampleFilter
}

// Result is a successfully encoded artifact.
type Result struct {
	Data     []byte
	MIMEType string
	Encoding domain.Encoding
	Width    int
	Height   int
	Size     int64
}

// NewEngine constructs an Engine. A nil logger discards output.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Engine{logger: logger, filter: imaging.Lanczos}
}

// Transcode decodes source, crops it to 4:3 when requested, downscales to
// opts.MaxWidth, flattens transparency onto white and encodes the result.
// Failures are *domain.TranscodeError and never carry a partial artifact.
func (e *Engine) Transcode(ctx context.Context, source []byte, opts domain.ProcessingOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, &domain.TranscodeError{Stage: domain.StageOptions, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := decode(source)
	if err != nil {
		return nil, &domain.TranscodeError{Stage: domain.StageDecode, Err: err}
	}
	bounds := src.Bounds()

	win := CropWindow(bounds.Dx(), bounds.Dy(), opts.CropToFixedAspect)
	dw, dh := DestinationSize(win, opts.MaxWidth)

	var cropped image.Image = src
	if opts.CropToFixedAspect {
		cropped = imaging.Crop(src, win.Rect(bounds))
	}
	scaled := imaging.Resize(cropped, dw, dh, e.filter)
	canvas := imaging.New(dw, dh, color.White)
	flattened := imaging.Overlay(canvas, scaled, image.Pt(0, 0), 1.0)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := encode(flattened, opts.Encoding, opts.Quality)
	if err != nil {
		return nil, &domain.TranscodeError{Stage: domain.StageEncode, Err: err}
	}

	e.logger.Debug().
		Int("source_width", bounds.Dx()).
		Int("source_height", bounds.Dy()).
		Int("width", dw).
		Int("height", dh).
		Str("encoding", string(opts.Encoding)).
		Int("bytes", len(data)).
		Msg("transcode: rendered image")

	return &Result{
		Data:     data,
		MIMEType: string(opts.Encoding),
		Encoding: opts.Encoding,
		Width:    dw,
		Height:   dh,
		Size:     int64(len(data)),
	}, nil
}

func decode(source []byte) (image.Image, error) {
	if len(source) == 0 {
		return nil, errors.New("empty source")
	}
	img, err := imaging.Decode(bytes.NewReader(source), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("zero dimension source %dx%d", b.Dx(), b.Dy())
	}
	return img, nil
}

func encode(img image.Image, enc domain.Encoding, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch enc {
	case domain.EncodingWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(quality * 100)})
	case domain.EncodingJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality(quality)))
	case domain.EncodingPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		err = fmt.Errorf("unsupported encoding %q", enc)
	}
	if err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, errors.New("encoder produced no data")
	}
	return buf.Bytes(), nil
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
