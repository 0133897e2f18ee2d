package ai

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/andremotz/katzenschreck/internal/config"
	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/model"
	"gocv.io/x/gocv"
)

// DefaultScoreFloor discards raw candidates before non-maximum suppression.
// Final filtering against the configured threshold happens in the pipeline.
const DefaultScoreFloor = 0.25

// DetectorService runs a YOLO ONNX model (v8 and later output layout) through
// the OpenCV DNN module.
type DetectorService struct {
	net          gocv.Net
	modelPath    string
	inputSize    int
	scoreFloor   float32
	nmsThreshold float32
	logger       *logger.Logger
	mu           sync.Mutex
}

// NewDetectorService loads the model named by config.ModelPath.
func NewDetectorService(config *config.Config, logger *logger.Logger) (*DetectorService, error) {
	floor := float32(DefaultScoreFloor)
	if t := float32(config.ConfidenceThreshold); t < floor {
		floor = t
	}

	service := &DetectorService{
		modelPath:    config.ModelPath,
		inputSize:    config.ModelInputSize,
		scoreFloor:   floor,
		nmsThreshold: float32(config.NMSThreshold),
		logger:       logger,
	}

	if err := service.initializeNet(); err != nil {
		return nil, err
	}
	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	net := gocv.ReadNetFromONNX(s.modelPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", s.modelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Detection network initialized from %s (input %dx%d)", s.modelPath, s.inputSize, s.inputSize)
	return nil
}

// Detect runs the network on frame and returns boxes in frame pixel coordinates.
func (s *DetectorService) Detect(frame *model.Frame) ([]model.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.net.Empty() {
		return nil, fmt.Errorf("detection network not initialized")
	}
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("empty frame")
	}

	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %v", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("converted frame is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(s.inputSize, s.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	return s.parseOutput(output, mat.Cols(), mat.Rows())
}

// parseOutput decodes a [1, 4+classes, candidates] tensor. Each candidate is
// (cx, cy, w, h, score per class) in network input pixels.
func (s *DetectorService) parseOutput(output gocv.Mat, width, height int) ([]model.Detection, error) {
	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	attributes, candidates := dims[1], dims[2]

	rows := output.Reshape(1, attributes)
	defer rows.Close()
	table := gocv.NewMat()
	defer table.Close()
	gocv.Transpose(rows, &table)

	scaleX := float32(width) / float32(s.inputSize)
	scaleY := float32(height) / float32(s.inputSize)

	var boxes []image.Rectangle
	var scores []float32
	var classes []int
	for i := 0; i < candidates; i++ {
		classID, best := 0, float32(0)
		for j := 4; j < attributes; j++ {
			if score := table.GetFloatAt(i, j); score > best {
				best = score
				classID = j - 4
			}
		}
		if best < s.scoreFloor {
			continue
		}

		cx := table.GetFloatAt(i, 0) * scaleX
		cy := table.GetFloatAt(i, 1) * scaleY
		w := table.GetFloatAt(i, 2) * scaleX
		h := table.GetFloatAt(i, 3) * scaleY

		x0 := clamp(int(cx-w/2), 0, width)
		y0 := clamp(int(cy-h/2), 0, height)
		x1 := clamp(int(cx+w/2), 0, width)
		y1 := clamp(int(cy+h/2), 0, height)

		boxes = append(boxes, image.Rect(x0, y0, x1, y1))
		scores = append(scores, best)
		classes = append(classes, classID)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, s.scoreFloor, s.nmsThreshold)

	detections := make([]model.Detection, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		detections = append(detections, model.Detection{
			ClassID:    classes[idx],
			ClassName:  model.ClassName(classes[idx]),
			Confidence: float64(scores[idx]),
			Box: model.BoundingBox{
				XMin: float64(box.Min.X),
				YMin: float64(box.Min.Y),
				XMax: float64(box.Max.X),
				YMax: float64(box.Max.Y),
			},
		})
		s.logger.Debug("Detected %s (%.2f)", model.ClassName(classes[idx]), scores[idx])
	}
	return detections, nil
}

// Close releases the network.
func (s *DetectorService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.net.Empty() {
		s.net.Close()
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
