package stream

import (
	"errors"
	"image"
	"testing"

	"github.com/andremotz/katzenschreck/internal/model"
)

// fakeCapture serves buffered frames to Grab and scripted results to Read.
type fakeCapture struct {
	buffered  int
	grabs     int
	reads     int
	readErrs  []error // consumed one per Read; nil entries succeed
	closed    bool
	closedErr error
	opened    bool
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{opened: true}
}

func (c *fakeCapture) Grab() bool {
	if c.buffered == 0 {
		return false
	}
	c.buffered--
	c.grabs++
	return true
}

func (c *fakeCapture) Read() (*model.Frame, error) {
	c.reads++
	if len(c.readErrs) > 0 {
		err := c.readErrs[0]
		c.readErrs = c.readErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &model.Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))}, nil
}

func (c *fakeCapture) IsOpened() bool { return c.opened && !c.closed }

func (c *fakeCapture) Close() error {
	c.closed = true
	return c.closedErr
}

func TestNextFreshFrame_DrainsBuffer(t *testing.T) {
	c := newFakeCapture()
	c.buffered = 7

	frame, err := NextFreshFrame(c, 50)
	if err != nil {
		t.Fatalf("NextFreshFrame failed: %v", err)
	}
	if frame == nil {
		t.Fatal("expected a frame")
	}
	if c.grabs != 7 {
		t.Errorf("grabs = %d, expected 7", c.grabs)
	}
	if c.reads != 1 {
		t.Errorf("reads = %d, expected 1", c.reads)
	}
}

func TestNextFreshFrame_BoundedSkip(t *testing.T) {
	c := newFakeCapture()
	c.buffered = 100

	if _, err := NextFreshFrame(c, 10); err != nil {
		t.Fatalf("NextFreshFrame failed: %v", err)
	}
	if c.grabs != 10 {
		t.Errorf("grabs = %d, expected 10", c.grabs)
	}
}

func TestNextFreshFrame_ReadFailure(t *testing.T) {
	c := newFakeCapture()
	c.readErrs = []error{errors.New("stream ended")}

	_, err := NextFreshFrame(c, 50)
	if !errors.Is(err, model.ErrRead) {
		t.Errorf("expected ErrRead, got %v", err)
	}
}
