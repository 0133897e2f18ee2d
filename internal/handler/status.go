package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/andremotz/katzenschreck/internal/config"
	"github.com/andremotz/katzenschreck/internal/dto"
	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/model"
	"github.com/andremotz/katzenschreck/internal/repository"
	"github.com/andremotz/katzenschreck/internal/service/storage"
)

// BrokerStatus reports the publisher's connection state.
type BrokerStatus interface {
	State() model.ConnectionState
}

// ViewerCounter reports connected websocket viewers.
type ViewerCounter interface {
	GetClientCount() int
}

// StatusDeps groups what the status endpoint reads. Artifacts may be nil when
// the relational store is disabled; Usage defaults to storage.DiskUsage.
type StatusDeps struct {
	Broker    BrokerStatus
	Viewers   ViewerCounter
	Artifacts repository.ArtifactRepository
	Usage     storage.UsageFunc
	StartedAt time.Time
}

// StatusHandler handles GET /api/status.
func StatusHandler(cfg *config.Config, deps StatusDeps, logger *logger.Logger) http.HandlerFunc {
	usage := deps.Usage
	if usage == nil {
		usage = storage.DiskUsage
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		response := dto.StatusResponse{
			Camera:          cfg.CameraName,
			BrokerState:     deps.Broker.State().String(),
			DiskThreshold:   cfg.DiskUsageThreshold,
			OutputDirectory: cfg.OutputDirectory,
			StartedAt:       deps.StartedAt,
			Uptime:          time.Since(deps.StartedAt).Truncate(time.Second).String(),
		}
		if deps.Viewers != nil {
			response.Viewers = deps.Viewers.GetClientCount()
		}

		if fraction, err := usage(cfg.DiskUsagePath); err != nil {
			logger.Warning("Status: %v", err)
		} else {
			response.DiskUsage = fraction
		}

		if deps.Artifacts != nil {
			count, err := deps.Artifacts.GetTotalCount(&model.ArtifactFilter{})
			if err != nil {
				logger.Error("Status: failed to count artifacts: %v", err)
			} else {
				response.ArtifactCount = count
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("Failed to encode status response: %v", err)
		}
	}
}
