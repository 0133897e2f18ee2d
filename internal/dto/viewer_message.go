package dto

// ViewerMessage is pushed to live viewers for every accepted detection.
type ViewerMessage struct {
	Type       string  `json:"type"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Time       string  `json:"time"`
	Artifact   string  `json:"artifact,omitempty"`
	Image      string  `json:"image,omitempty"` // base64 JPEG
}
