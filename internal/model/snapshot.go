package model

import "time"

const (
	SnapshotStatusPending   = "pending"
	SnapshotStatusCompleted = "completed"
	SnapshotStatusFailed    = "failed"
)

type Snapshot struct {
	ID          int64      `json:"id"`
	Filename    string     `json:"filename"`
	S3Key       string     `json:"s3_key"`
	SizeBytes   int64      `json:"size_bytes"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}
