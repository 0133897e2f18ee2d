// ArtifactsData is a paginated response payload for the artifact index.
package dto

import "github.com/andremotz/katzenschreck/internal/model"

type ArtifactsData struct {
	Artifacts   []model.Artifact `json:"artifacts"`
	Directory   string           `json:"directory"`
	Length      int              `json:"length"`
	TotalPages  int              `json:"totalPages"`
	CurrentPage int              `json:"currentPage"`
	Limit       int              `json:"pageSize"`
}
