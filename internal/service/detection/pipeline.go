package detection

import (
	"fmt"
	"image"

	"github.com/andremotz/katzenschreck/internal/model"
)

// Detector is the detection capability: one frame in, zero or more detections out.
type Detector interface {
	Detect(frame *model.Frame) ([]model.Detection, error)
}

// Annotator renders detections onto a copy of the frame.
type Annotator interface {
	Annotate(frame *model.Frame, detections []model.Detection) (image.Image, error)
}

// Options configures the filters applied to every frame.
type Options struct {
	Threshold float64
	Zone      *model.IgnoreZone
	// Classes restricts accepted class names; empty accepts every class.
	Classes []string
}

// Result is the outcome of processing one frame.
type Result struct {
	Events []model.DetectionEvent

	Total             int
	DroppedClass      int
	DroppedConfidence int
	DroppedZone       int

	// AnnotationErr is set when rendering failed and the raw frame was used instead.
	AnnotationErr error
}

// Pipeline filters detections by class, confidence and ignore zone and turns
// the survivors into events.
type Pipeline struct {
	detector  Detector
	annotator Annotator
	stamper   *model.Stamper
	threshold float64
	zone      *model.IgnoreZone
	classes   map[string]bool
}

// NewPipeline creates a pipeline. A nil annotator uses BoxAnnotator and a nil
// stamper uses the wall clock.
func NewPipeline(detector Detector, annotator Annotator, stamper *model.Stamper, opts Options) *Pipeline {
	if annotator == nil {
		annotator = NewBoxAnnotator()
	}
	if stamper == nil {
		stamper = model.NewStamper()
	}

	classes := make(map[string]bool, len(opts.Classes))
	for _, c := range opts.Classes {
		classes[c] = true
	}

	return &Pipeline{
		detector:  detector,
		annotator: annotator,
		stamper:   stamper,
		threshold: opts.Threshold,
		zone:      opts.Zone,
		classes:   classes,
	}
}

// Process runs detection on frame and returns the accepted events. Only the
// detection capability can fail the call; the error wraps model.ErrDetection.
func (p *Pipeline) Process(frame *model.Frame) (*Result, error) {
	detections, err := p.detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDetection, err)
	}

	result := &Result{Total: len(detections)}
	accepted := make([]model.Detection, 0, len(detections))

	for _, d := range detections {
		if d.ClassName == "" {
			d.ClassName = model.ClassName(d.ClassID)
		}
		if !p.acceptsClass(d.ClassName) {
			result.DroppedClass++
			continue
		}
		// NaN confidences fail this test and are dropped
		if !(d.Confidence > p.threshold) {
			result.DroppedConfidence++
			continue
		}
		if Overlaps(d.Box, frame.Width(), frame.Height(), p.zone) {
			result.DroppedZone++
			continue
		}
		accepted = append(accepted, d)
	}

	if len(accepted) == 0 {
		return result, nil
	}

	rendered, err := p.annotator.Annotate(frame, accepted)
	if err != nil {
		result.AnnotationErr = err
		rendered = frame.Image
	}

	result.Events = make([]model.DetectionEvent, 0, len(accepted))
	for _, d := range accepted {
		result.Events = append(result.Events, model.DetectionEvent{
			Timestamp:  p.stamper.Next(),
			ClassID:    d.ClassID,
			ClassName:  d.ClassName,
			Confidence: d.Confidence,
			Box:        d.Box,
			Rendered:   rendered,
		})
	}
	return result, nil
}

func (p *Pipeline) acceptsClass(name string) bool {
	return len(p.classes) == 0 || p.classes[name]
}
