package storage

import (
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/model"
)

func testEvent(at time.Time) model.DetectionEvent {
	return model.DetectionEvent{
		Timestamp:  at,
		ClassID:    15,
		ClassName:  model.ClassCat,
		Confidence: 0.9,
		Rendered:   image.NewRGBA(image.Rect(0, 0, 64, 48)),
	}
}

func TestSink_SaveWritesTimestampedJPEG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	sink, err := NewSink(dir, 0.8, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}

	at := time.Date(2025, 6, 15, 14, 30, 5, 7*int(time.Millisecond), time.Local)
	result, err := sink.Save(testEvent(at))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	want := filepath.Join(dir, "frame_2025-06-15_14-30-05-007.jpg")
	if result.Artifact.FilePath != want {
		t.Errorf("FilePath = %q, expected %q", result.Artifact.FilePath, want)
	}
	if result.Artifact.ClassName != model.ClassCat || result.Artifact.Confidence != 0.9 {
		t.Errorf("artifact metadata = %+v", result.Artifact)
	}

	f, err := os.Open(want)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("artifact is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("decoded size = %v", img.Bounds())
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSink_BackToBackSavesAreDistinct(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, 0.8, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}

	fixed := time.Now()
	stamper := model.NewStamperWithClock(func() time.Time { return fixed })
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		result, err := sink.Save(testEvent(stamper.Next()))
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if seen[result.Artifact.Filename] {
			t.Fatalf("duplicate artifact name %s", result.Artifact.Filename)
		}
		seen[result.Artifact.Filename] = true
	}
}

func TestSink_EnforcesEvictionBeforeWrite(t *testing.T) {
	dir := t.TempDir()
	old := createAged(t, dir, "frame_old.jpg")[0]
	vol := &fakeVolume{dir: dir, base: 0.75, perFile: 0.1}

	sink, err := NewSink(dir, 0.8, NewEvictor("/", vol.usage, logger.NewNop()), logger.NewNop())
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}

	result, err := sink.Save(testEvent(time.Now()))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if exists(old) {
		t.Error("old artifact should have been evicted before the write")
	}
	if len(result.Eviction.Deleted) != 1 {
		t.Errorf("Eviction.Deleted = %v", result.Eviction.Deleted)
	}
	if !exists(result.Artifact.FilePath) {
		t.Error("new artifact should exist")
	}
}

func TestSink_SaveFrameUsesAllFramePrefix(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, 0.8, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}

	frame := &model.Frame{Image: image.NewRGBA(image.Rect(0, 0, 8, 8))}
	result, err := sink.SaveFrame(frame, time.Now())
	if err != nil {
		t.Fatalf("SaveFrame failed: %v", err)
	}
	if !strings.HasPrefix(result.Artifact.Filename, "all_frame_") {
		t.Errorf("Filename = %q", result.Artifact.Filename)
	}
}

func TestSink_NothingToWrite(t *testing.T) {
	sink, err := NewSink(t.TempDir(), 0.8, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	_, err = sink.Save(model.DetectionEvent{Timestamp: time.Now()})
	if !errors.Is(err, model.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
}

func TestSink_RecreatesRemovedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	sink, err := NewSink(dir, 0.8, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	if _, err := sink.Save(testEvent(time.Now())); err != nil {
		t.Fatalf("Save failed after directory removal: %v", err)
	}
}
