package storage

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/model"
)

const (
	// DetectionPrefix names artifacts of accepted detections.
	DetectionPrefix = "frame"
	// FramePrefix names artifacts of the save-every-frame mode.
	FramePrefix = "all_frame"
	// JPEGQuality is used for every artifact.
	JPEGQuality = 90
)

// SaveResult is the outcome of a successful save.
type SaveResult struct {
	Artifact model.Artifact
	Eviction EvictionReport
}

// Sink persists artifacts under a directory, enforcing the eviction policy
// before every write.
type Sink struct {
	dir       string
	threshold float64
	evictor   *Evictor
	logger    *logger.Logger
}

// NewSink creates the artifact directory if needed.
func NewSink(dir string, threshold float64, evictor *Evictor, logger *logger.Logger) (*Sink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create %s: %v", model.ErrStorage, dir, err)
	}
	return &Sink{
		dir:       dir,
		threshold: threshold,
		evictor:   evictor,
		logger:    logger,
	}, nil
}

// Directory returns the artifact directory.
func (s *Sink) Directory() string {
	return s.dir
}

// Save writes the event's rendered frame to frame_<timestamp>.jpg.
func (s *Sink) Save(event model.DetectionEvent) (*SaveResult, error) {
	result, err := s.write(DetectionPrefix, event.Rendered, event.Timestamp)
	if err != nil {
		return nil, err
	}
	result.Artifact.ClassName = event.ClassName
	result.Artifact.Confidence = event.Confidence
	result.Artifact.Box = event.Box
	return result, nil
}

// SaveFrame writes an unannotated frame to all_frame_<timestamp>.jpg.
func (s *Sink) SaveFrame(frame *model.Frame, at time.Time) (*SaveResult, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: empty frame", model.ErrStorage)
	}
	return s.write(FramePrefix, frame.Image, at)
}

func (s *Sink) write(prefix string, img image.Image, at time.Time) (*SaveResult, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nothing to write", model.ErrStorage)
	}

	var eviction EvictionReport
	if s.evictor != nil {
		eviction = s.evictor.Enforce(s.dir, s.threshold)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create %s: %v", model.ErrStorage, s.dir, err)
	}

	filename := fmt.Sprintf("%s_%s.jpg", prefix, model.FormatTimestamp(at))
	fullpath := filepath.Join(s.dir, filename)

	size, err := writeJPEG(fullpath, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	s.logger.Info("Frame saved: %s", fullpath)

	return &SaveResult{
		Artifact: model.Artifact{
			Filename:  filename,
			Timestamp: at,
			FilePath:  fullpath,
			FileSize:  size,
		},
		Eviction: eviction,
	}, nil
}

// writeJPEG encodes into a temporary file next to path and renames it into
// place, so a partially written artifact is never visible under its final name.
func writeJPEG(path string, img image.Image) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to stat %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return 0, fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("failed to save %s: %w", path, err)
	}
	return info.Size(), nil
}
