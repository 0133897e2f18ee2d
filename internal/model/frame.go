package model

import (
	"image"
	"time"
)

// Frame is a decoded video frame together with the instant it was read.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// Width returns the frame width in pixels, or 0 for an empty frame.
func (f *Frame) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels, or 0 for an empty frame.
func (f *Frame) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}
