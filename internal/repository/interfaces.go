package repository

import "github.com/andremotz/katzenschreck/internal/model"

// ArtifactRepository indexes artifact files written by the sink.
type ArtifactRepository interface {
	// Create operations
	Insert(artifact *model.Artifact) (int64, error)

	// Read operations
	GetByFilename(filename string) (*model.Artifact, error)
	GetAll(filter *model.ArtifactFilter) ([]model.Artifact, error)
	GetTotalCount(filter *model.ArtifactFilter) (int, error)
	CountByClass() (map[string]int, error)

	// Delete operations
	DeleteByFilename(filename string) error
}

// SnapshotRepository stores periodic frame samples.
type SnapshotRepository interface {
	Insert(snapshot *model.Snapshot) (int64, error)
	Latest(cameraName string, limit int) ([]model.Snapshot, error)
	Prune(cameraName string, keep int) (int64, error)
}
