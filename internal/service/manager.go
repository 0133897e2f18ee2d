package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/jpeg"
	"path/filepath"

	"github.com/andremotz/katzenschreck/internal/dto"
	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/metrics"
	"github.com/andremotz/katzenschreck/internal/model"
	"github.com/andremotz/katzenschreck/internal/repository"
	"github.com/andremotz/katzenschreck/internal/service/detection"
	"github.com/andremotz/katzenschreck/internal/service/snapshot"
	"github.com/andremotz/katzenschreck/internal/service/storage"
)

const viewerJPEGQuality = 70

// EventPublisher delivers accepted detections to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, className string, event model.DetectionEvent) error
}

// Broadcaster pushes messages to live viewers without blocking.
type Broadcaster interface {
	Broadcast(message []byte) bool
	GetClientCount() int
}

// Components are the collaborators of a Manager. Publisher, Hub, Artifacts and
// Snapshots are optional.
type Components struct {
	Pipeline  *detection.Pipeline
	Sink      *storage.Sink
	Publisher EventPublisher
	Hub       Broadcaster
	Artifacts repository.ArtifactRepository
	Snapshots *snapshot.Scheduler
	Stamper   *model.Stamper
}

// Manager runs every frame through detection, storage and notification.
type Manager struct {
	pipeline      *detection.Pipeline
	sink          *storage.Sink
	publisher     EventPublisher
	hub           Broadcaster
	artifacts     repository.ArtifactRepository
	snapshots     *snapshot.Scheduler
	stamper       *model.Stamper
	saveAllFrames bool
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

func NewManager(c Components, saveAllFrames bool, logger *logger.Logger, m *metrics.Metrics) *Manager {
	stamper := c.Stamper
	if stamper == nil {
		stamper = model.NewStamper()
	}

	manager := &Manager{
		pipeline:      c.Pipeline,
		sink:          c.Sink,
		publisher:     c.Publisher,
		hub:           c.Hub,
		artifacts:     c.Artifacts,
		snapshots:     c.Snapshots,
		stamper:       stamper,
		saveAllFrames: saveAllFrames,
		logger:        logger,
		metrics:       m,
	}

	manager.logger.Info("🎬 Manager started, saving to %s", c.Sink.Directory())
	return manager
}

// HandleFrame processes one frame. Only a detection failure is returned;
// storage, index and publish failures are logged and the frame completes.
func (m *Manager) HandleFrame(ctx context.Context, frame *model.Frame) error {
	if m.saveAllFrames {
		m.saveFrame(frame)
	}

	result, err := m.pipeline.Process(frame)
	if err != nil {
		m.metrics.DetectionError()
		m.snapshots.Observe(frame, 0)
		return err
	}

	m.metrics.DetectionsDropped("class", result.DroppedClass)
	m.metrics.DetectionsDropped("confidence", result.DroppedConfidence)
	m.metrics.DetectionsDropped("zone", result.DroppedZone)
	if result.DroppedZone > 0 {
		m.logger.Debug("%d detection(s) inside the ignore zone suppressed", result.DroppedZone)
	}
	if result.AnnotationErr != nil {
		m.logger.Warning("Failed to draw detections, saving raw frame: %v", result.AnnotationErr)
	}

	best := 0.0
	for _, event := range result.Events {
		if event.Confidence > best {
			best = event.Confidence
		}
		m.handleEvent(ctx, event)
	}

	m.snapshots.Observe(frame, best)
	return nil
}

func (m *Manager) handleEvent(ctx context.Context, event model.DetectionEvent) {
	m.logger.Info("Detected %s (%.2f)", event.ClassName, event.Confidence)
	m.metrics.DetectionAccepted(event.ClassName)

	var artifact *model.Artifact
	saved, err := m.sink.Save(event)
	if err != nil {
		m.metrics.StorageError()
		m.logger.Error("Error saving frame: %v", err)
	} else {
		m.metrics.ArtifactSaved()
		m.recordEviction(saved.Eviction)
		artifact = &saved.Artifact
		m.index(artifact)
	}

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, event.ClassName, event); err != nil {
			m.logger.Warning("Detection not published: %v", err)
		}
	}

	m.sendToViewers(event, artifact)
}

func (m *Manager) saveFrame(frame *model.Frame) {
	saved, err := m.sink.SaveFrame(frame, m.stamper.Next())
	if err != nil {
		m.metrics.StorageError()
		m.logger.Error("Error saving frame: %v", err)
		return
	}
	m.recordEviction(saved.Eviction)
}

func (m *Manager) index(artifact *model.Artifact) {
	if m.artifacts == nil {
		return
	}
	id, err := m.artifacts.Insert(artifact)
	if err != nil {
		m.logger.Warning("Failed to index %s: %v", artifact.Filename, err)
		return
	}
	artifact.ID = id
}

func (m *Manager) recordEviction(report storage.EvictionReport) {
	m.metrics.SetDiskUsage(report.UsageAfter)
	m.metrics.ArtifactsEvicted(len(report.Deleted))
	if report.Failed > 0 {
		m.metrics.StorageError()
	}
}

// ForgetArtifact drops the index row of an evicted file.
func (m *Manager) ForgetArtifact(path string) {
	if m.artifacts == nil {
		return
	}
	if err := m.artifacts.DeleteByFilename(filepath.Base(path)); err != nil {
		m.logger.Warning("Failed to remove %s from index: %v", filepath.Base(path), err)
	}
}

// sendToViewers pushes the rendered detection to connected viewers.
func (m *Manager) sendToViewers(event model.DetectionEvent, artifact *model.Artifact) {
	if m.hub == nil || m.hub.GetClientCount() == 0 {
		return
	}

	msg := dto.ViewerMessage{
		Type:       "detection",
		Class:      event.ClassName,
		Confidence: event.Confidence,
		Time:       model.FormatTimestamp(event.Timestamp),
	}
	if artifact != nil {
		msg.Artifact = artifact.Filename
	}
	if event.Rendered != nil {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, event.Rendered, &jpeg.Options{Quality: viewerJPEGQuality}); err == nil {
			msg.Image = base64.StdEncoding.EncodeToString(buf.Bytes())
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("Failed to marshal viewer message: %v", err)
		return
	}
	m.hub.Broadcast(payload)
}
