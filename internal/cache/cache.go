// Package cache persists per-workspace record snapshots on the client so a
// session can render its last known state before the first fetch returns.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/splax/deskpulse/internal/codec"
	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/pkg/crypto"
)

// SnapshotRecord is the persistence model for one table snapshot.
type SnapshotRecord struct {
	WorkspaceID string    `gorm:"primaryKey;type:text;not null"`
	RecordTable string    `gorm:"primaryKey;type:text;not null"`
	Records     []byte    `gorm:"not null"`
	Count       int       `gorm:"not null"`
	SavedAt     time.Time `gorm:"not null"`
}

func (SnapshotRecord) TableName() string { return "snapshots" }

// Store is a gorm/sqlite snapshot store.
type Store struct {
	db      *gorm.DB
	logger  *slog.Logger
	now     func() time.Time
	sealKey string
}

// Option configures a Store.
type Option func(*Store)

// WithSealKey encrypts snapshot blobs at rest with key.
func WithSealKey(key string) Option {
	return func(s *Store) { s.sealKey = key }
}

// Open opens (or creates) the sqlite database at path. Use ":memory:" for a
// throwaway cache.
func Open(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("cache path is required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := db.AutoMigrate(&SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger.With("component", "cache"), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save replaces the snapshot of one table in a workspace.
func (s *Store) Save(ctx context.Context, workspaceID string, table domain.Table, records []domain.Record) error {
	blob, err := codec.EncodeRecords(records)
	if err != nil {
		return err
	}
	if s.sealKey != "" {
		if blob, err = crypto.Seal(s.sealKey, blob); err != nil {
			return fmt.Errorf("seal snapshot: %w", err)
		}
	}
	row := SnapshotRecord{
		WorkspaceID: workspaceID,
		RecordTable: string(table),
		Records:     blob,
		Count:       len(records),
		SavedAt:     s.now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// Load returns the stored snapshot, or nil when none exists.
func (s *Store) Load(ctx context.Context, workspaceID string, table domain.Table) ([]domain.Record, error) {
	var row SnapshotRecord
	err := s.db.WithContext(ctx).First(&row, "workspace_id = ? AND record_table = ?", workspaceID, string(table)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	blob := row.Records
	if s.sealKey != "" {
		if blob, err = crypto.Open(s.sealKey, blob); err != nil {
			s.logger.Warn("discarding sealed snapshot", "workspace_id", workspaceID, "table", string(table), "error", err)
			return nil, nil
		}
	}
	records, err := codec.DecodeRecords(blob)
	if err != nil {
		s.logger.Warn("discarding unreadable snapshot", "workspace_id", workspaceID, "table", string(table), "error", err)
		return nil, nil
	}
	return records, nil
}

// Forget drops every snapshot of a workspace.
func (s *Store) Forget(ctx context.Context, workspaceID string) error {
	return s.db.WithContext(ctx).Delete(&SnapshotRecord{}, "workspace_id = ?", workspaceID).Error
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
