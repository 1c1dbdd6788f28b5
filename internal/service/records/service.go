// Package records is the server side of the remote store gateway: it
// validates payloads and stamps authorship before records reach storage.
package records

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository"
)

// Service wraps a RecordStore with validation and server-side stamping.
type Service struct {
	store  repository.RecordStore
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Service.
func New(store repository.RecordStore, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{store: store, logger: logger.With("component", "records"), now: time.Now}
}

// Fetch returns the live records of one table in a workspace.
func (s Service) Fetch(ctx context.Context, table domain.Table, workspaceID string) ([]domain.Record, error) {
	records, err := s.store.FetchTable(ctx, table, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	return records, nil
}

// Upsert validates the payload and fills UpdatedBy, CreatedBy and UpdatedAt
// when the caller left them empty. It returns the record as stored.
func (s Service) Upsert(ctx context.Context, actorID string, table domain.Table, record domain.Record) (domain.Record, error) {
	if err := domain.ValidatePayload(table, record.Payload); err != nil {
		return domain.Record{}, err
	}
	if record.UpdatedBy == "" {
		record.UpdatedBy = actorID
	}
	if record.CreatedBy == "" {
		record.CreatedBy = actorID
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = domain.At(s.now())
	}
	if err := s.store.Upsert(ctx, table, record); err != nil {
		return domain.Record{}, err
	}
	s.logger.Debug("record upserted", "table", string(table), "workspace_id", record.WorkspaceID, "record_id", record.ID, "actor_id", actorID)
	return record, nil
}

// Delete soft-deletes a record.
func (s Service) Delete(ctx context.Context, actorID string, table domain.Table, workspaceID, id string) error {
	if err := s.store.DeleteEntity(ctx, table, workspaceID, id); err != nil {
		return err
	}
	s.logger.Debug("record deleted", "table", string(table), "workspace_id", workspaceID, "record_id", id, "actor_id", actorID)
	return nil
}
