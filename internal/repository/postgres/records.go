package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository"
)

// record tables share one layout, so queries are rendered per table from a
// template. Table names come from the closed domain.Table set only.
const (
	recordSelect = `SELECT id, workspace_id, payload, COALESCE(created_by, ''), COALESCE(updated_by, ''), updated_at
		FROM %[1]s
		WHERE workspace_id = $1 AND NOT is_deleted
		ORDER BY id`
	recordUpsert = `INSERT INTO %[1]s (id, workspace_id, payload, created_by, updated_by, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, $5), $5, COALESCE($6, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at,
			is_deleted = FALSE
		WHERE %[1]s.workspace_id = EXCLUDED.workspace_id`
	recordSoftDelete = `UPDATE %[1]s SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2 AND NOT is_deleted`
)

func tableIdent(table domain.Table) (string, error) {
	if _, err := domain.ParseTable(string(table)); err != nil {
		return "", err
	}
	return pgx.Identifier{string(table)}.Sanitize(), nil
}

// FetchTable returns the live records of a workspace.
func (r *Repository) FetchTable(ctx context.Context, table domain.Table, workspaceID string) ([]domain.Record, error) {
	ident, err := tableIdent(table)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(recordSelect, ident), workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.Record, 0)
	for rows.Next() {
		var (
			rec       domain.Record
			payload   []byte
			updatedAt *time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.WorkspaceID, &payload, &rec.CreatedBy, &rec.UpdatedBy, &updatedAt); err != nil {
			return nil, err
		}
		rec.Payload = payload
		if updatedAt != nil {
			rec.UpdatedAt = domain.At(*updatedAt)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Upsert inserts or replaces a record. A record id already owned by another
// workspace is rejected with repository.ErrConflict.
func (r *Repository) Upsert(ctx context.Context, table domain.Table, record domain.Record) error {
	ident, err := tableIdent(table)
	if err != nil {
		return err
	}
	if record.ID == "" || record.WorkspaceID == "" {
		return repository.ErrInvalidArgument
	}
	payload := []byte(record.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	var updatedAt any
	if !record.UpdatedAt.IsZero() {
		updatedAt = record.UpdatedAt.Time()
	}
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(recordUpsert, ident),
		record.ID,
		record.WorkspaceID,
		payload,
		emptyToNil(record.CreatedBy),
		emptyToNil(record.UpdatedBy),
		updatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

// DeleteEntity flags a record as deleted; it stops appearing in fetches.
func (r *Repository) DeleteEntity(ctx context.Context, table domain.Table, workspaceID, id string) error {
	ident, err := tableIdent(table)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(recordSoftDelete, ident), id, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
