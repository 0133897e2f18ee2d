// Package video reads live streams through OpenCV.
package video

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/model"
	"github.com/andremotz/katzenschreck/internal/service/stream"
	"gocv.io/x/gocv"
)

// DefaultGrabThreshold separates grabs served from the decoder buffer from
// grabs that had to wait for the network.
const DefaultGrabThreshold = 15 * time.Millisecond

// Source opens OpenCV video captures.
type Source struct {
	grabThreshold time.Duration
	logger        *logger.Logger
}

// NewSource creates a Source. A non-positive grabThreshold uses DefaultGrabThreshold.
func NewSource(grabThreshold time.Duration, logger *logger.Logger) *Source {
	if grabThreshold <= 0 {
		grabThreshold = DefaultGrabThreshold
	}
	return &Source{grabThreshold: grabThreshold, logger: logger}
}

// Open connects to the stream at rawURL and keeps the capture buffer at one frame.
func (s *Source) Open(ctx context.Context, rawURL string) (stream.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Info("Connecting to video source %s", RedactURL(rawURL))
	vc, err := gocv.OpenVideoCapture(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open %s: %v", model.ErrConnection, RedactURL(rawURL), err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: cannot open %s", model.ErrConnection, RedactURL(rawURL))
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &Capture{
		vc:            vc,
		mat:           gocv.NewMat(),
		grabThreshold: s.grabThreshold,
	}, nil
}

// Capture wraps a gocv.VideoCapture.
type Capture struct {
	vc            *gocv.VideoCapture
	mat           gocv.Mat
	grabThreshold time.Duration
}

// Grab skips one frame. A grab that returns faster than the threshold was
// served from the buffer; a slower one waited for a new frame, so the buffer
// was empty.
func (c *Capture) Grab() bool {
	start := time.Now()
	c.vc.Grab(1)
	return time.Since(start) < c.grabThreshold
}

func (c *Capture) Read() (*model.Frame, error) {
	if ok := c.vc.Read(&c.mat); !ok {
		return nil, fmt.Errorf("failed to read frame from video source")
	}
	if c.mat.Empty() {
		return nil, fmt.Errorf("video source returned an empty frame")
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return &model.Frame{Image: img, CapturedAt: time.Now()}, nil
}

func (c *Capture) IsOpened() bool {
	return c.vc.IsOpened()
}

func (c *Capture) Close() error {
	c.mat.Close()
	return c.vc.Close()
}

// RedactURL hides the password of a stream URL for logging.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	return u.Redacted()
}
