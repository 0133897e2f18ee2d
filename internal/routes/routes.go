package routes

import (
	"net/http"

	"github.com/andremotz/katzenschreck/internal/config"
	"github.com/andremotz/katzenschreck/internal/handler"
	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/metrics"
	"github.com/andremotz/katzenschreck/internal/middleware"
	"github.com/andremotz/katzenschreck/internal/repository"
)

// Dependencies are the services the status server reads from.
type Dependencies struct {
	Status    handler.StatusDeps
	Hub       handler.ViewerHub
	Artifacts repository.ArtifactRepository
	Metrics   *metrics.Metrics
	Auth      *middleware.Auth
}

// SetupRoutes registers the status, artifact, viewer, log and auth endpoints
// and wraps the mux with the authentication middleware.
func SetupRoutes(deps Dependencies, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/status", handler.StatusHandler(cfg, deps.Status, logger))
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(deps.Hub, logger))
	mux.HandleFunc("/api/artifacts", handler.GetArtifactsHandler(cfg, deps.Artifacts, logger))
	mux.HandleFunc("/api/artifacts/view", handler.ViewArtifactHandler(cfg))
	mux.HandleFunc("/api/artifacts/delete", handler.DeleteArtifactHandler(cfg, deps.Artifacts, logger))
	mux.HandleFunc("/api/artifacts/stats", handler.GetArtifactStatsHandler(deps.Artifacts, logger))

	mux.Handle("/metrics", deps.Metrics.Handler())

	// Log endpoints
	mux.HandleFunc("/logs/info", handler.ShowInfoLogsHandler(logger))
	mux.HandleFunc("/logs/warning", handler.ShowWarningLogsHandler(logger))
	mux.HandleFunc("/logs/error", handler.ShowErrorLogsHandler(logger))

	mux.HandleFunc("/logs/info/clear", handler.ClearInfoLogsHandler(logger))
	mux.HandleFunc("/logs/warning/clear", handler.ClearWarningLogsHandler(logger))
	mux.HandleFunc("/logs/error/clear", handler.ClearErrorLogsHandler(logger))

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(deps.Auth, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	return deps.Auth.Middleware(mux)
}
