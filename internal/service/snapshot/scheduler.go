// Package snapshot samples frames into the relational store on a fixed interval.
package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/metrics"
	"github.com/andremotz/katzenschreck/internal/model"
	"github.com/andremotz/katzenschreck/internal/repository"
	xdraw "golang.org/x/image/draw"
)

const (
	// ThumbnailWidth is the width of stored thumbnails; height keeps the aspect ratio.
	ThumbnailWidth = 320
	jpegQuality    = 85
)

// Options configures a Scheduler.
type Options struct {
	CameraName string
	Interval   time.Duration // 0 disables snapshots
	Keep       int           // 0 keeps every snapshot
}

// Scheduler writes at most one snapshot per interval. It is independent of
// artifact writes: a snapshot may or may not coincide with a detection.
type Scheduler struct {
	repo    repository.SnapshotRepository
	opts    Options
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewScheduler creates a Scheduler. The first observed frame is stored immediately.
func NewScheduler(repo repository.SnapshotRepository, opts Options, logger *logger.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		repo:    repo,
		opts:    opts,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Enabled reports whether snapshots are stored at all.
func (s *Scheduler) Enabled() bool {
	return s != nil && s.repo != nil && s.opts.Interval > 0
}

// Observe stores frame when the interval has elapsed since the last snapshot.
// accuracy is the best detection confidence on the frame, 0 when none. It
// reports whether a snapshot was written; failures are logged only.
func (s *Scheduler) Observe(frame *model.Frame, accuracy float64) bool {
	if !s.Enabled() || frame == nil || frame.Image == nil {
		return false
	}

	now := s.now()
	s.mu.Lock()
	if !s.last.IsZero() && now.Sub(s.last) < s.opts.Interval {
		s.mu.Unlock()
		return false
	}
	s.last = now
	s.mu.Unlock()

	if err := s.store(frame.Image, accuracy, now); err != nil {
		s.logger.Error("Failed to store snapshot: %v", err)
		return false
	}
	s.metrics.SnapshotStored()
	return true
}

func (s *Scheduler) store(img image.Image, accuracy float64, at time.Time) error {
	full, err := encodeJPEG(img)
	if err != nil {
		return err
	}
	thumb, err := encodeJPEG(Thumbnail(img, ThumbnailWidth))
	if err != nil {
		return err
	}

	id, err := s.repo.Insert(&model.Snapshot{
		CameraName: s.opts.CameraName,
		Accuracy:   accuracy,
		Image:      full,
		Thumbnail:  thumb,
		CreatedAt:  at,
	})
	if err != nil {
		return err
	}
	s.logger.Info("Snapshot %d stored for %s (accuracy %.2f)", id, s.opts.CameraName, accuracy)

	if s.opts.Keep > 0 {
		removed, err := s.repo.Prune(s.opts.CameraName, s.opts.Keep)
		if err != nil {
			s.logger.Warning("Failed to prune snapshots: %v", err)
		} else if removed > 0 {
			s.logger.Debug("Pruned %d old snapshot(s)", removed)
		}
	}
	return nil
}

// Thumbnail scales img down to width pixels wide. Images already narrower
// are returned unchanged.
func Thumbnail(img image.Image, width int) image.Image {
	b := img.Bounds()
	if b.Dx() <= width || b.Dx() == 0 {
		return img
	}
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
