package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/andremotz/katzenschreck/internal/config"
	"github.com/andremotz/katzenschreck/internal/dto"
	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/model"
	"github.com/andremotz/katzenschreck/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// GetArtifactsHandler handles GET /api/artifacts with optional page, limit,
// class, after and before (RFC 3339) query parameters. Results are newest first.
func GetArtifactsHandler(cfg *config.Config, repo repository.ArtifactRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if repo == nil {
			http.Error(w, "Artifact index is disabled", http.StatusServiceUnavailable)
			return
		}

		query := r.URL.Query()
		page := atoiDefault(query.Get("page"), 1)
		if page < 1 {
			page = 1
		}
		limit := atoiDefault(query.Get("limit"), defaultPageSize)
		if limit < 1 || limit > maxPageSize {
			limit = defaultPageSize
		}

		filter := &model.ArtifactFilter{
			ClassName: query.Get("class"),
			Limit:     limit,
			Offset:    (page - 1) * limit,
		}
		var ok bool
		if filter.After, ok = parseTimeParam(w, query.Get("after")); !ok {
			return
		}
		if filter.Before, ok = parseTimeParam(w, query.Get("before")); !ok {
			return
		}

		total, err := repo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Failed to count artifacts: %v", err)
			http.Error(w, "Failed to load artifacts", http.StatusInternalServerError)
			return
		}
		artifacts, err := repo.GetAll(filter)
		if err != nil {
			logger.Error("Failed to load artifacts: %v", err)
			http.Error(w, "Failed to load artifacts", http.StatusInternalServerError)
			return
		}
		if artifacts == nil {
			artifacts = []model.Artifact{}
		}

		response := dto.ArtifactsData{
			Artifacts:   artifacts,
			Directory:   cfg.OutputDirectory,
			Length:      total,
			TotalPages:  (total + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("Failed to encode artifacts response: %v", err)
		}
	}
}

// ViewArtifactHandler serves a single artifact image from the output directory.
// Only bare file names are accepted.
func ViewArtifactHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" || name != filepath.Base(name) || filepath.Ext(name) != ".jpg" {
			http.Error(w, "Invalid artifact name", http.StatusBadRequest)
			return
		}

		path := filepath.Join(cfg.OutputDirectory, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, path)
	}
}

// DeleteArtifactHandler removes an artifact file and its index row.
func DeleteArtifactHandler(cfg *config.Config, repo repository.ArtifactRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete && r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		name := r.URL.Query().Get("name")
		if name == "" || name != filepath.Base(name) || filepath.Ext(name) != ".jpg" {
			http.Error(w, "Invalid artifact name", http.StatusBadRequest)
			return
		}

		if err := os.Remove(filepath.Join(cfg.OutputDirectory, name)); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete artifact %s: %v", name, err)
			http.Error(w, "Failed to delete artifact", http.StatusInternalServerError)
			return
		}
		if repo != nil {
			if err := repo.DeleteByFilename(name); err != nil {
				logger.Warning("Failed to remove %s from index: %v", name, err)
			}
		}

		logger.Info("🗑️ Artifact deleted: %s", name)
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetArtifactStatsHandler returns the number of indexed artifacts per class.
func GetArtifactStatsHandler(repo repository.ArtifactRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			http.Error(w, "Artifact index is disabled", http.StatusServiceUnavailable)
			return
		}

		counts, err := repo.CountByClass()
		if err != nil {
			logger.Error("Failed to count artifacts by class: %v", err)
			http.Error(w, "Failed to load stats", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(counts); err != nil {
			logger.Error("Failed to encode stats response: %v", err)
		}
	}
}

func parseTimeParam(w http.ResponseWriter, value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		http.Error(w, "Invalid time parameter: "+value, http.StatusBadRequest)
		return time.Time{}, false
	}
	return t, true
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
