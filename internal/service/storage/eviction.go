package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/shirou/gopsutil/v3/disk"
)

// UsageFunc returns the used fraction (0..1) of the volume holding path.
type UsageFunc func(path string) (float64, error)

// DiskUsage measures volume usage through gopsutil.
func DiskUsage(path string) (float64, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to measure disk usage of %s: %w", path, err)
	}
	return stat.UsedPercent / 100, nil
}

// EvictionReport describes one Enforce call.
type EvictionReport struct {
	UsageBefore float64
	UsageAfter  float64
	Deleted     []string
	Failed      int
}

// Evictor deletes the oldest artifacts in a directory while the volume is
// above the usage threshold.
type Evictor struct {
	usagePath string
	usage     UsageFunc
	logger    *logger.Logger

	// OnDelete, when set, is called with the path of every deleted file.
	OnDelete func(path string)
}

// NewEvictor creates an Evictor measuring the volume of usagePath. A nil
// usage function uses DiskUsage.
func NewEvictor(usagePath string, usage UsageFunc, logger *logger.Logger) *Evictor {
	if usage == nil {
		usage = DiskUsage
	}
	return &Evictor{
		usagePath: usagePath,
		usage:     usage,
		logger:    logger,
	}
}

type artifactFile struct {
	path    string
	created time.Time
}

// Enforce deletes artifacts in dir oldest-first, re-measuring after every
// deletion, until usage drops below threshold or no artifacts remain. Every
// failure is logged and left for the next call.
func (e *Evictor) Enforce(dir string, threshold float64) EvictionReport {
	usage, err := e.usage(e.usagePath)
	if err != nil {
		e.logger.Error("Eviction skipped: %v", err)
		return EvictionReport{}
	}
	report := EvictionReport{UsageBefore: usage, UsageAfter: usage}
	if usage < threshold {
		return report
	}

	files, err := listArtifacts(dir)
	if err != nil {
		e.logger.Error("Eviction: cannot list %s: %v", dir, err)
		return report
	}
	e.logger.Warning("Disk usage %.1f%% above %.1f%%, %d artifact(s) eligible for eviction",
		usage*100, threshold*100, len(files))

	for _, f := range files {
		if err := os.Remove(f.path); err != nil {
			if os.IsNotExist(err) {
				// deleted through the status server since the listing
				e.logger.Debug("Eviction: %s already gone", f.path)
				continue
			}
			e.logger.Error("Eviction: failed to delete %s: %v", f.path, err)
			report.Failed++
			continue
		}
		report.Deleted = append(report.Deleted, f.path)
		if e.OnDelete != nil {
			e.OnDelete(f.path)
		}

		usage, err = e.usage(e.usagePath)
		if err != nil {
			e.logger.Error("Eviction stopped: %v", err)
			break
		}
		report.UsageAfter = usage
		if usage < threshold {
			break
		}
	}

	e.logger.Info("Evicted %d artifact(s), disk usage now %.1f%%", len(report.Deleted), report.UsageAfter*100)
	return report
}

// listArtifacts returns the regular .jpg files directly inside dir, oldest first.
// Artifacts are never modified after creation, so the modification time is
// their creation time.
func listArtifacts(dir string) ([]artifactFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	root := filepath.Clean(dir)
	files := make([]artifactFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(entry.Name()), ".jpg") {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if filepath.Dir(path) != root {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between listing and stat
			continue
		}
		files = append(files, artifactFile{path: path, created: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].created.Equal(files[j].created) {
			return files[i].path < files[j].path
		}
		return files[i].created.Before(files[j].created)
	})
	return files, nil
}
