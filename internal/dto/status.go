// StatusResponse is the payload of GET /api/status.
package dto

import "time"

type StatusResponse struct {
	Camera          string    `json:"camera"`
	BrokerState     string    `json:"brokerState"`
	DiskUsage       float64   `json:"diskUsage"`
	DiskThreshold   float64   `json:"diskThreshold"`
	OutputDirectory string    `json:"outputDirectory"`
	ArtifactCount   int       `json:"artifactCount"`
	Viewers         int       `json:"viewers"`
	StartedAt       time.Time `json:"startedAt"`
	Uptime          string    `json:"uptime"`
}
