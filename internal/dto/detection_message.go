package dto

import (
	"encoding/json"
	"time"

	"github.com/andremotz/katzenschreck/internal/model"
)

// DetectionMessage is the broker payload for one accepted detection.
type DetectionMessage struct {
	Time       time.Time `json:"time"`
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
}

// NewDetectionMessage builds the payload for event.
func NewDetectionMessage(event model.DetectionEvent) DetectionMessage {
	return DetectionMessage{
		Time:       event.Timestamp,
		Class:      event.ClassName,
		Confidence: event.Confidence,
	}
}

// MarshalJSON formats time the same way artifact file names do.
func (m DetectionMessage) MarshalJSON() ([]byte, error) {
	type Alias DetectionMessage
	return json.Marshal(&struct {
		Time string `json:"time"`
		Alias
	}{
		Time:  model.FormatTimestamp(m.Time),
		Alias: (Alias)(m),
	})
}

// PingMessage is the heartbeat payload.
type PingMessage struct {
	Timestamp int64 `json:"timestamp"`
}
