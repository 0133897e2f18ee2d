package detection

import (
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/andremotz/katzenschreck/internal/model"
)

type fakeDetector struct {
	detections []model.Detection
	err        error
	calls      int
}

func (f *fakeDetector) Detect(*model.Frame) ([]model.Detection, error) {
	f.calls++
	return f.detections, f.err
}

type failingAnnotator struct{}

func (failingAnnotator) Annotate(*model.Frame, []model.Detection) (image.Image, error) {
	return nil, errors.New("render failed")
}

func testFrame() *model.Frame {
	return &model.Frame{Image: image.NewRGBA(image.Rect(0, 0, 400, 400)), CapturedAt: time.Now()}
}

func catAt(confidence float64, box model.BoundingBox) model.Detection {
	return model.Detection{ClassID: 15, ClassName: model.ClassCat, Confidence: confidence, Box: box}
}

var centerBox = model.BoundingBox{XMin: 250, YMin: 250, XMax: 350, YMax: 350}

func TestPipeline_ConfidenceIsStrict(t *testing.T) {
	tests := []struct {
		confidence float64
		accepted   bool
	}{
		{0.4, false},
		{0.5, false},
		{0.5000001, true},
		{0.9, true},
		{1.0, true},
		{math.NaN(), false},
	}

	for _, tt := range tests {
		det := &fakeDetector{detections: []model.Detection{catAt(tt.confidence, centerBox)}}
		p := NewPipeline(det, nil, nil, Options{Threshold: 0.5, Classes: []string{model.ClassCat}})

		result, err := p.Process(testFrame())
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if got := len(result.Events) == 1; got != tt.accepted {
			t.Errorf("confidence %v: accepted=%v, expected %v", tt.confidence, got, tt.accepted)
		}
	}
}

func TestPipeline_ZoneSuppression(t *testing.T) {
	zone := &model.IgnoreZone{XMin: 0, YMin: 0, XMax: 0.5, YMax: 0.5}
	inside := model.BoundingBox{XMin: 10, YMin: 10, XMax: 100, YMax: 100}
	straddling := model.BoundingBox{XMin: 150, YMin: 150, XMax: 300, YMax: 300}

	det := &fakeDetector{detections: []model.Detection{
		catAt(0.99, inside),
		catAt(0.99, straddling),
		catAt(0.99, centerBox),
	}}
	p := NewPipeline(det, nil, nil, Options{Threshold: 0.5, Zone: zone})

	result, err := p.Process(testFrame())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(result.Events))
	}
	if result.Events[0].Box != centerBox {
		t.Errorf("wrong detection survived: %v", result.Events[0].Box)
	}
	if result.DroppedZone != 2 {
		t.Errorf("DroppedZone = %d, expected 2", result.DroppedZone)
	}
}

func TestPipeline_ClassSet(t *testing.T) {
	det := &fakeDetector{detections: []model.Detection{
		{ClassID: 0, Confidence: 0.9, Box: centerBox},
		{ClassID: 15, Confidence: 0.9, Box: centerBox},
		{ClassID: 2, Confidence: 0.9, Box: centerBox},
	}}

	p := NewPipeline(det, nil, nil, Options{Threshold: 0.5, Classes: []string{model.ClassCat}})
	result, err := p.Process(testFrame())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0].ClassName != model.ClassCat {
		t.Fatalf("expected a single Cat event, got %+v", result.Events)
	}
	if result.DroppedClass != 2 {
		t.Errorf("DroppedClass = %d, expected 2", result.DroppedClass)
	}

	all := NewPipeline(det, nil, nil, Options{Threshold: 0.5})
	result, err = all.Process(testFrame())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Events) != 3 {
		t.Errorf("empty class set should accept all, got %d events", len(result.Events))
	}
	if result.Events[2].ClassName != model.ClassUnknown {
		t.Errorf("class 2 should map to Unknown, got %q", result.Events[2].ClassName)
	}
}

func TestPipeline_DetectorFailure(t *testing.T) {
	det := &fakeDetector{err: errors.New("inference crashed")}
	p := NewPipeline(det, nil, nil, Options{Threshold: 0.5})

	_, err := p.Process(testFrame())
	if !errors.Is(err, model.ErrDetection) {
		t.Fatalf("expected ErrDetection, got %v", err)
	}
}

func TestPipeline_EventsHaveDistinctTimestamps(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 14, 30, 0, 0, time.Local)
	stamper := model.NewStamperWithClock(func() time.Time { return fixed })

	det := &fakeDetector{detections: []model.Detection{catAt(0.8, centerBox), catAt(0.7, centerBox)}}
	p := NewPipeline(det, nil, stamper, Options{Threshold: 0.5})

	result, err := p.Process(testFrame())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result.Events))
	}
	if !result.Events[1].Timestamp.After(result.Events[0].Timestamp) {
		t.Errorf("timestamps not increasing: %v, %v", result.Events[0].Timestamp, result.Events[1].Timestamp)
	}
	if result.Events[0].Rendered == nil || result.Events[0].Rendered != result.Events[1].Rendered {
		t.Error("events of one frame should share the rendered image")
	}
}

func TestPipeline_AnnotationFailureFallsBackToFrame(t *testing.T) {
	frame := testFrame()
	det := &fakeDetector{detections: []model.Detection{catAt(0.9, centerBox)}}
	p := NewPipeline(det, failingAnnotator{}, nil, Options{Threshold: 0.5})

	result, err := p.Process(frame)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.AnnotationErr == nil {
		t.Error("AnnotationErr should be set")
	}
	if len(result.Events) != 1 || result.Events[0].Rendered != frame.Image {
		t.Error("event should carry the raw frame when rendering fails")
	}
}
