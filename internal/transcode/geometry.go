package transcode

import (
	"image"
	"math"

	"listingprep/internal/domain"
)

// Window is the source region selected for drawing, in source pixels. Values
// are fractional the same way a canvas source rectangle is.
type Window struct {
	X, Y float64
	W, H float64
}

// CropWindow returns the centered 4:3 window when fixed is set, otherwise the
// whole source.
func CropWindow(width, height int, fixed bool) Window {
	w, h := float64(width), float64(height)
	win := Window{W: w, H: h}
	if !fixed {
		return win
	}
	if w/h > domain.FixedAspect {
		win.W = h * domain.FixedAspect
		win.X = (w - win.W) / 2
		return win
	}
	win.H = w / domain.FixedAspect
	win.Y = (h - win.H) / 2
	return win
}

// Rect converts the window into whole pixels clipped to the source bounds.
func (w Window) Rect(bounds image.Rectangle) image.Rectangle {
	x0 := bounds.Min.X + int(math.Round(w.X))
	y0 := bounds.Min.Y + int(math.Round(w.Y))
	r := image.Rect(x0, y0, x0+pixels(w.W), y0+pixels(w.H))
	return r.Intersect(bounds)
}

// DestinationSize scales the window down uniformly so the width fits
// maxWidth. It never upscales.
func DestinationSize(win Window, maxWidth int) (int, int) {
	dw, dh := win.W, win.H
	if maxWidth > 0 && dw > float64(maxWidth) {
		ratio := float64(maxWidth) / dw
		dw = float64(maxWidth)
		dh *= ratio
	}
	return pixels(dw), pixels(dh)
}

// pixels truncates like a canvas dimension assignment, tolerating float noise
// and never going below one pixel.
func pixels(v float64) int {
	n := int(math.Floor(v + 1e-6))
	if n < 1 {
		return 1
	}
	return n
}
