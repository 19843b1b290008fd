package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/larderapp/larder/internal/model"
)

type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const snapshotCols = `id, filename, s3_key, size_bytes, status, error, created_at, completed_at`

func scanSnapshot(scanner interface{ Scan(...any) error }) (*model.Snapshot, error) {
	var sn model.Snapshot
	var completedAt sql.NullTime
	err := scanner.Scan(&sn.ID, &sn.Filename, &sn.S3Key, &sn.SizeBytes, &sn.Status, &sn.Error, &sn.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		sn.CompletedAt = &completedAt.Time
	}
	return &sn, nil
}

func (s *SnapshotStore) Create(filename, s3Key string) (*model.Snapshot, error) {
	result, err := s.db.Exec(
		`INSERT INTO snapshots (filename, s3_key) VALUES (?, ?)`,
		filename, s3Key,
	)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+snapshotCols+` FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

func (s *SnapshotStore) UpdateStatus(id int64, status, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE snapshots SET status = ?, error = ? WHERE id = ?`,
		status, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot status: %w", err)
	}
	return nil
}

func (s *SnapshotStore) UpdateCompleted(id, sizeBytes int64) error {
	_, err := s.db.Exec(
		`UPDATE snapshots SET status = ?, size_bytes = ?, completed_at = datetime('now') WHERE id = ?`,
		model.SnapshotStatusCompleted, sizeBytes, id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot completed: %w", err)
	}
	return nil
}

func (s *SnapshotStore) List(limit int) ([]model.Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT `+snapshotCols+` FROM snapshots ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []model.Snapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *sn)
	}
	return snapshots, rows.Err()
}

// DeleteOlderThan removes snapshot rows past retention and returns their S3
// keys so the caller can delete the objects.
func (s *SnapshotStore) DeleteOlderThan(before time.Time) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT s3_key FROM snapshots WHERE created_at < ?`,
		before.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list old snapshots: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan s3 key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE created_at < ?`, before.UTC()); err != nil {
		return nil, fmt.Errorf("delete old snapshots: %w", err)
	}
	return keys, nil
}
