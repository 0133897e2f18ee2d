package sqlite

import (
	"fmt"

	"github.com/andremotz/katzenschreck/internal/model"
)

// SnapshotRepository implements repository.SnapshotRepository for SQLite.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new SQLite snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert stores a snapshot.
func (r *SnapshotRepository) Insert(s *model.Snapshot) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO snapshots (camera_name, accuracy, image, thumbnail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.CameraName, s.Accuracy, s.Image, s.Thumbnail, s.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return result.LastInsertId()
}

// Latest returns up to limit snapshots of cameraName, newest first.
func (r *SnapshotRepository) Latest(cameraName string, limit int) ([]model.Snapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if limit <= 0 {
		limit = 1
	}

	rows, err := r.db.Conn().Query(`
		SELECT id, camera_name, accuracy, image, thumbnail, created_at
		FROM snapshots WHERE camera_name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, cameraName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []model.Snapshot
	for rows.Next() {
		var s model.Snapshot
		if err := rows.Scan(&s.ID, &s.CameraName, &s.Accuracy, &s.Image, &s.Thumbnail, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// Prune deletes every snapshot of cameraName except the newest keep and
// returns how many rows were removed.
func (r *SnapshotRepository) Prune(cameraName string, keep int) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		DELETE FROM snapshots
		WHERE camera_name = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE camera_name = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`, cameraName, cameraName, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return result.RowsAffected()
}
