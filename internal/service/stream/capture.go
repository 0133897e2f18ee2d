// Package stream keeps a live video source open and feeds fresh frames to a handler.
package stream

import (
	"context"

	"github.com/andremotz/katzenschreck/internal/model"
)

// Source opens connections to a video source.
type Source interface {
	Open(ctx context.Context, url string) (Capture, error)
}

// Capture is an open video source connection.
type Capture interface {
	// Grab advances past one buffered frame without decoding it. It reports
	// false when no frame was immediately available.
	Grab() bool
	// Read decodes the next frame.
	Read() (*model.Frame, error)
	IsOpened() bool
	Close() error
}

// FrameHandler consumes frames produced by the Supervisor.
type FrameHandler interface {
	HandleFrame(ctx context.Context, frame *model.Frame) error
}

// HandlerFunc adapts a function to FrameHandler.
type HandlerFunc func(ctx context.Context, frame *model.Frame) error

func (f HandlerFunc) HandleFrame(ctx context.Context, frame *model.Frame) error {
	return f(ctx, frame)
}
