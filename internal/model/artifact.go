package model

import "time"

// Artifact is an index record for a stored artifact file.
type Artifact struct {
	ID         int64       `json:"id"`
	Filename   string      `json:"filename"`
	ClassName  string      `json:"class"`
	Confidence float64     `json:"confidence"`
	Timestamp  time.Time   `json:"timestamp"`
	FilePath   string      `json:"filepath"`
	FileSize   int64       `json:"filesize"`
	Box        BoundingBox `json:"box"`
}

// Snapshot is a periodic frame sample kept in the relational store.
type Snapshot struct {
	ID         int64     `json:"id"`
	CameraName string    `json:"camera"`
	Accuracy   float64   `json:"accuracy"`
	Image      []byte    `json:"-"`
	Thumbnail  []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArtifactFilter narrows artifact index queries.
type ArtifactFilter struct {
	ClassName string
	After     time.Time
	Before    time.Time
	Limit     int
	Offset    int
}
