package transcode

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"listingprep/internal/domain"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 7 {
		for x := 0; x < w; x += 7 {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodeTransparentPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jpegOptions(maxWidth int, crop bool) domain.ProcessingOptions {
	return domain.ProcessingOptions{
		Quality:           0.8,
		MaxWidth:          maxWidth,
		Encoding:          domain.EncodingJPEG,
		CropToFixedAspect: crop,
	}
}

func TestCropWindow(t *testing.T) {
	win := CropWindow(3000, 2000, true)
	if math.Abs(win.W-2666.6667) > 0.001 || win.H != 2000 {
		t.Fatalf("landscape window = %+v", win)
	}
	if math.Abs(win.X-166.6667) > 0.001 || win.Y != 0 {
		t.Fatalf("landscape offset = %+v", win)
	}

	win = CropWindow(1000, 2000, true)
	if win.W != 1000 || win.H != 750 || win.Y != 625 || win.X != 0 {
		t.Fatalf("portrait window = %+v", win)
	}

	win = CropWindow(3000, 2000, false)
	if win.W != 3000 || win.H != 2000 || win.X != 0 || win.Y != 0 {
		t.Fatalf("uncropped window = %+v", win)
	}
}

func TestDestinationSize(t *testing.T) {
	tests := []struct {
		name         string
		win          Window
		maxWidth     int
		wantW, wantH int
	}{
		{name: "scenario", win: CropWindow(3000, 2000, true), maxWidth: 1600, wantW: 1600, wantH: 1200},
		{name: "crop without scaling", win: CropWindow(3000, 2000, true), maxWidth: 4000, wantW: 2666, wantH: 2000},
		{name: "never upscales", win: Window{W: 800, H: 600}, maxWidth: 1600, wantW: 800, wantH: 600},
		{name: "keeps aspect", win: Window{W: 2000, H: 1000}, maxWidth: 800, wantW: 800, wantH: 400},
		{name: "minimum one pixel", win: Window{W: 4000, H: 1}, maxWidth: 100, wantW: 100, wantH: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h := DestinationSize(tc.win, tc.maxWidth)
			if w != tc.wantW || h != tc.wantH {
				t.Fatalf("DestinationSize = %dx%d, want %dx%d", w, h, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestTranscodeScenario(t *testing.T) {
	engine := NewEngine(Options{})
	res, err := engine.Transcode(context.Background(), encodeJPEG(t, 3000, 2000), jpegOptions(1600, true))
	if err != nil {
		t.Fatalf("Transcode returned error: %v", err)
	}
	if res.Width != 1600 || res.Height != 1200 {
		t.Fatalf("dimensions = %dx%d, want 1600x1200", res.Width, res.Height)
	}
	if res.Size <= 0 || int(res.Size) != len(res.Data) {
		t.Fatalf("size = %d, data = %d", res.Size, len(res.Data))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" || cfg.Width != 1600 || cfg.Height != 1200 {
		t.Fatalf("output = %s %dx%d", format, cfg.Width, cfg.Height)
	}
}

func TestTranscodeAspectProperties(t *testing.T) {
	engine := NewEngine(Options{})
	sources := [][2]int{{3000, 2000}, {1000, 2000}, {640, 480}, {500, 500}, {2400, 600}}
	for _, dims := range sources {
		src := encodeJPEG(t, dims[0], dims[1])
		srcRatio := float64(dims[0]) / float64(dims[1])

		cropped, err := engine.Transcode(context.Background(), src, jpegOptions(1200, true))
		if err != nil {
			t.Fatalf("crop %v: %v", dims, err)
		}
		ratio := float64(cropped.Width) / float64(cropped.Height)
		if math.Abs(ratio-domain.FixedAspect) > 0.01 {
			t.Fatalf("crop %v ratio = %.4f (%dx%d)", dims, ratio, cropped.Width, cropped.Height)
		}
		win := CropWindow(dims[0], dims[1], true)
		if cropped.Width > 1200 || float64(cropped.Width) > win.W {
			t.Fatalf("crop %v width %d exceeds bounds", dims, cropped.Width)
		}

		plain, err := engine.Transcode(context.Background(), src, jpegOptions(1200, false))
		if err != nil {
			t.Fatalf("plain %v: %v", dims, err)
		}
		ratio = float64(plain.Width) / float64(plain.Height)
		if math.Abs(ratio-srcRatio)/srcRatio > 0.01 {
			t.Fatalf("plain %v ratio = %.4f, source %.4f", dims, ratio, srcRatio)
		}
		if plain.Width > 1200 || plain.Width > dims[0] {
			t.Fatalf("plain %v width %d exceeds bounds", dims, plain.Width)
		}
	}
}

func TestTranscodeFlattensTransparencyToWhite(t *testing.T) {
	engine := NewEngine(Options{})
	res, err := engine.Transcode(context.Background(), encodeTransparentPNG(t, 120, 90), jpegOptions(1600, false))
	if err != nil {
		t.Fatalf("Transcode returned error: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r, g, b, _ := img.At(60, 45).RGBA()
	if r>>8 < 245 || g>>8 < 245 || b>>8 < 245 {
		t.Fatalf("center pixel = (%d,%d,%d), want white", r>>8, g>>8, b>>8)
	}
}

func TestTranscodeEncodings(t *testing.T) {
	engine := NewEngine(Options{})
	src := encodeJPEG(t, 400, 300)
	tests := []struct {
		enc    domain.Encoding
		format string
	}{
		{enc: domain.EncodingWebP, format: "webp"},
		{enc: domain.EncodingPNG, format: "png"},
		{enc: domain.EncodingJPEG, format: "jpeg"},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			opts := jpegOptions(200, true)
			opts.Encoding = tc.enc
			res, err := engine.Transcode(context.Background(), src, opts)
			if err != nil {
				t.Fatalf("Transcode returned error: %v", err)
			}
			if res.MIMEType != string(tc.enc) {
				t.Fatalf("MIMEType = %q, want %q", res.MIMEType, tc.enc)
			}
			cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Data))
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if format != tc.format || cfg.Width != 200 || cfg.Height != 150 {
				t.Fatalf("output = %s %dx%d", format, cfg.Width, cfg.Height)
			}
		})
	}
}

func TestTranscodeErrors(t *testing.T) {
	engine := NewEngine(Options{})
	valid := encodeJPEG(t, 40, 30)

	tests := []struct {
		name      string
		source    []byte
		opts      domain.ProcessingOptions
		wantStage domain.TranscodeStage
	}{
		{name: "garbage", source: []byte("definitely not an image"), opts: jpegOptions(100, true), wantStage: domain.StageDecode},
		{name: "empty", source: nil, opts: jpegOptions(100, true), wantStage: domain.StageDecode},
		{name: "zero quality", source: valid, opts: domain.ProcessingOptions{Quality: 0, MaxWidth: 100, Encoding: domain.EncodingJPEG}, wantStage: domain.StageOptions},
		{name: "quality above one", source: valid, opts: domain.ProcessingOptions{Quality: 1.5, MaxWidth: 100, Encoding: domain.EncodingJPEG}, wantStage: domain.StageOptions},
		{name: "zero width", source: valid, opts: domain.ProcessingOptions{Quality: 0.8, MaxWidth: 0, Encoding: domain.EncodingJPEG}, wantStage: domain.StageOptions},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := engine.Transcode(context.Background(), tc.source, tc.opts)
			if res != nil {
				t.Fatalf("expected no partial result, got %+v", res)
			}
			var te *domain.TranscodeError
			if !errors.As(err, &te) {
				t.Fatalf("error = %v, want TranscodeError", err)
			}
			if te.Stage != tc.wantStage {
				t.Fatalf("stage = %q, want %q", te.Stage, tc.wantStage)
			}
		})
	}
}

func TestTranscodeHonorsCancelledContext(t *testing.T) {
	engine := NewEngine(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Transcode(ctx, encodeJPEG(t, 40, 30), jpegOptions(100, true)); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
