package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/larderapp/larder/internal/model"
	"github.com/larderapp/larder/internal/store"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds snapshot manager configuration.
type Config struct {
	S3            S3Config
	DBPath        string
	Passphrase    string
	ScheduleHour  int
	RetentionDays int
}

// Manager uploads encrypted database snapshots to S3-compatible storage on
// a daily schedule.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	db        *sql.DB
	snapshots *store.SnapshotStore
	logger    *slog.Logger
	client    s3Client
	running   bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, snapshots *store.SnapshotStore, logger *slog.Logger) *Manager {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	m := &Manager{
		cfg:       cfg,
		db:        db,
		snapshots: snapshots,
		logger:    logger,
	}
	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Configured reports whether snapshots can run.
func (m *Manager) Configured() bool {
	return m.client != nil
}

// Start begins the schedule loop. No-op when unconfigured.
func (m *Manager) Start(ctx context.Context) {
	if !m.Configured() {
		m.logger.Info("snapshots disabled: missing S3 or passphrase configuration")
		return
	}

	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				if now.Hour() != m.cfg.ScheduleHour || now.Minute() != 0 {
					continue
				}
				if _, err := m.RunNow(ctx); err != nil {
					m.logger.Error("scheduled snapshot", "error", err)
				}
				if err := m.Cleanup(ctx); err != nil {
					m.logger.Error("snapshot cleanup", "error", err)
				}
			}
		}
	}()
}

// Stop halts the schedule loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunNow takes one snapshot: checkpoint WAL, copy, encrypt, upload. Only
// one snapshot runs at a time.
func (m *Manager) RunNow(ctx context.Context) (*model.Snapshot, error) {
	if !m.Configured() {
		return nil, fmt.Errorf("snapshots not configured")
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil, fmt.Errorf("snapshot already in progress")
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	filename := fmt.Sprintf("snapshot-%s.db.enc", timestamp)
	s3Key := fmt.Sprintf("snapshots/%s", filename)

	record, err := m.snapshots.Create(filename, s3Key)
	if err != nil {
		return nil, fmt.Errorf("create snapshot record: %w", err)
	}

	fail := func(err error) (*model.Snapshot, error) {
		m.snapshots.UpdateStatus(record.ID, model.SnapshotStatusFailed, err.Error())
		return nil, err
	}

	tmpDir := os.TempDir()
	dbCopy := filepath.Join(tmpDir, fmt.Sprintf("larder-snapshot-%d.db", record.ID))
	encFile := filepath.Join(tmpDir, fmt.Sprintf("larder-snapshot-%d.db.enc", record.ID))
	defer os.Remove(dbCopy)
	defer os.Remove(encFile)

	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fail(fmt.Errorf("wal checkpoint: %w", err))
	}
	if err := copyFile(m.cfg.DBPath, dbCopy); err != nil {
		return fail(fmt.Errorf("copy database: %w", err))
	}

	salt, err := GenerateSalt()
	if err != nil {
		return fail(err)
	}
	if err := EncryptFile(dbCopy, encFile, m.cfg.Passphrase, salt); err != nil {
		return fail(fmt.Errorf("encrypt snapshot: %w", err))
	}

	f, err := os.Open(encFile)
	if err != nil {
		return fail(fmt.Errorf("open encrypted snapshot: %w", err))
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fail(fmt.Errorf("stat encrypted snapshot: %w", err))
	}

	if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(s3Key),
		Body:   f,
	}); err != nil {
		return fail(fmt.Errorf("upload snapshot: %w", err))
	}

	if err := m.snapshots.UpdateCompleted(record.ID, info.Size()); err != nil {
		return nil, err
	}
	m.logger.Info("snapshot uploaded", "key", s3Key, "bytes", info.Size())

	record.Status = model.SnapshotStatusCompleted
	record.SizeBytes = info.Size()
	return record, nil
}

// Cleanup removes snapshots past retention, locally and in S3.
func (m *Manager) Cleanup(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	keys, err := m.snapshots.DeleteOlderThan(cutoff)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete old snapshot object", "key", key, "error", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
