package model

import (
	"image"
	"time"
)

// DetectionEvent is an accepted detection ready to be stored and published.
// Rendered is shared between the events of one frame and must not be modified.
type DetectionEvent struct {
	Timestamp  time.Time
	ClassID    int
	ClassName  string
	Confidence float64
	Box        BoundingBox
	Rendered   image.Image
}
