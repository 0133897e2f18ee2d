package detection

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/andremotz/katzenschreck/internal/model"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	personColor  = color.RGBA{R: 0, G: 120, B: 255, A: 255}
	catColor     = color.RGBA{R: 255, G: 140, B: 0, A: 255}
	defaultColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	labelText    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// BoxAnnotator draws a rectangle and a "class confidence" label for every detection.
type BoxAnnotator struct {
	Thickness int
	Face      font.Face
}

func NewBoxAnnotator() *BoxAnnotator {
	return &BoxAnnotator{Thickness: 2, Face: basicfont.Face7x13}
}

// Annotate returns an RGBA copy of the frame with the detections drawn on it.
// The frame itself is left untouched.
func (a *BoxAnnotator) Annotate(frame *model.Frame, detections []model.Detection) (image.Image, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("empty frame")
	}

	bounds := frame.Image.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, frame.Image, bounds.Min, draw.Src)

	for _, d := range detections {
		c := classColor(d.ClassName)
		rect := image.Rect(int(d.Box.XMin), int(d.Box.YMin), int(d.Box.XMax), int(d.Box.YMax)).
			Add(bounds.Min).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		a.drawRect(canvas, rect, c)
		a.drawLabel(canvas, rect, fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence), c)
	}
	return canvas, nil
}

func (a *BoxAnnotator) drawRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	t := a.Thickness
	if t <= 0 {
		t = 1
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

func (a *BoxAnnotator) drawLabel(dst *image.RGBA, r image.Rectangle, label string, c color.Color) {
	face := a.Face
	if face == nil {
		face = basicfont.Face7x13
	}
	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(labelText), Face: face}

	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil() + 2
	width := drawer.MeasureString(label).Ceil() + 4

	// Above the box when there is room, inside it otherwise.
	top := r.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = r.Min.Y
	}
	background := image.Rect(r.Min.X, top, r.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, background, image.NewUniform(c), image.Point{}, draw.Src)

	drawer.Dot = fixed.Point26_6{
		X: fixed.I(r.Min.X + 2),
		Y: fixed.I(top+1) + metrics.Ascent,
	}
	drawer.DrawString(label)
}

func classColor(name string) color.Color {
	switch name {
	case model.ClassPerson:
		return personColor
	case model.ClassCat:
		return catColor
	default:
		return defaultColor
	}
}
