package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/andremotz/katzenschreck/internal/model"
)

const artifactColumns = `id, filename, class_name, confidence, timestamp, filepath, filesize, x_min, y_min, x_max, y_max`

// ArtifactRepository implements repository.ArtifactRepository for SQLite.
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new SQLite artifact repository.
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Insert adds an artifact record. Re-inserting a known filename replaces it.
func (r *ArtifactRepository) Insert(a *model.Artifact) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT OR REPLACE INTO artifacts (filename, class_name, confidence, timestamp, filepath, filesize, x_min, y_min, x_max, y_max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.Filename, a.ClassName, a.Confidence, a.Timestamp, a.FilePath, a.FileSize,
		a.Box.XMin, a.Box.YMin, a.Box.XMax, a.Box.YMax)
	if err != nil {
		return 0, fmt.Errorf("failed to insert artifact: %w", err)
	}

	return result.LastInsertId()
}

// GetByFilename retrieves an artifact by its filename, or nil when unknown.
func (r *ArtifactRepository) GetByFilename(filename string) (*model.Artifact, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+artifactColumns+` FROM artifacts WHERE filename = ?`, filename)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// GetAll retrieves artifacts matching filter, newest first.
func (r *ArtifactRepository) GetAll(filter *model.ArtifactFilter) ([]model.Artifact, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := filterClause(filter)
	query := `SELECT ` + artifactColumns + ` FROM artifacts` + where + ` ORDER BY timestamp DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []model.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, rows.Err()
}

// GetTotalCount returns the number of artifacts matching filter.
func (r *ArtifactRepository) GetTotalCount(filter *model.ArtifactFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := filterClause(filter)
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM artifacts`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count artifacts: %w", err)
	}
	return count, nil
}

// CountByClass returns how many indexed artifacts exist per class.
func (r *ArtifactRepository) CountByClass() (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT class_name, COUNT(*) FROM artifacts GROUP BY class_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var class string
		var count int
		if err := rows.Scan(&class, &count); err != nil {
			return nil, err
		}
		counts[class] = count
	}
	return counts, rows.Err()
}

// DeleteByFilename removes an artifact by its filename. Unknown names are ignored.
func (r *ArtifactRepository) DeleteByFilename(filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM artifacts WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArtifact(row rowScanner) (*model.Artifact, error) {
	var a model.Artifact
	err := row.Scan(&a.ID, &a.Filename, &a.ClassName, &a.Confidence, &a.Timestamp, &a.FilePath, &a.FileSize,
		&a.Box.XMin, &a.Box.YMin, &a.Box.XMax, &a.Box.YMax)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func filterClause(filter *model.ArtifactFilter) (string, []interface{}) {
	query := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return query, args
	}

	if filter.ClassName != "" {
		query += " AND class_name = ?"
		args = append(args, filter.ClassName)
	}
	if !filter.After.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.After)
	}
	if !filter.Before.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.Before)
	}
	return query, args
}
