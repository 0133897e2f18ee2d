package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andremotz/katzenschreck/internal/model"
)

// UnknownClass labels artifacts whose detection details were not recorded.
const UnknownClass = "unknown"

// ParseArtifactName splits an artifact file name into its prefix and timestamp.
func ParseArtifactName(name string) (string, time.Time, error) {
	if filepath.Ext(name) != ".jpg" {
		return "", time.Time{}, fmt.Errorf("not an artifact: %s", name)
	}
	base := strings.TrimSuffix(name, ".jpg")

	for _, prefix := range []string{FramePrefix, DetectionPrefix} {
		if stamp, ok := strings.CutPrefix(base, prefix+"_"); ok {
			at, err := model.ParseTimestamp(stamp)
			if err != nil {
				return "", time.Time{}, err
			}
			return prefix, at, nil
		}
	}
	return "", time.Time{}, fmt.Errorf("unknown artifact prefix: %s", name)
}

// ScanDetections lists detection artifacts directly under dir as index
// records. Files that do not follow the artifact naming are skipped and counted.
func ScanDetections(dir string) ([]model.Artifact, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: cannot list %s: %v", model.ErrStorage, dir, err)
	}

	var artifacts []model.Artifact
	skipped := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || filepath.Ext(entry.Name()) != ".jpg" {
			continue
		}

		prefix, at, err := ParseArtifactName(entry.Name())
		if err != nil {
			skipped++
			continue
		}
		if prefix != DetectionPrefix {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			skipped++
			continue
		}

		artifacts = append(artifacts, model.Artifact{
			Filename:  entry.Name(),
			ClassName: UnknownClass,
			Timestamp: at,
			FilePath:  filepath.Join(dir, entry.Name()),
			FileSize:  info.Size(),
		})
	}
	return artifacts, skipped, nil
}
