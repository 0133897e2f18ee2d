package stream

import (
	"fmt"

	"github.com/andremotz/katzenschreck/internal/model"
)

// DefaultMaxSkip bounds the frames discarded by one NextFreshFrame call.
const DefaultMaxSkip = 50

// NextFreshFrame discards every frame already buffered by the capture, up to
// maxSkip of them, and decodes the one after. Processing is slower than the
// source, so without draining the handler would fall further behind live.
func NextFreshFrame(c Capture, maxSkip int) (*model.Frame, error) {
	if maxSkip < 0 {
		maxSkip = 0
	}
	for skipped := 0; skipped < maxSkip && c.Grab(); skipped++ {
	}

	frame, err := c.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRead, err)
	}
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("%w: empty frame", model.ErrRead)
	}
	return frame, nil
}
