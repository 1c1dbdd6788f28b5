package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/splax/deskpulse/internal/domain"
)

// TableStore is the typed view of a RecordStore for a single table.
type TableStore[P domain.Payload] interface {
	Table() domain.Table
	Fetch(ctx context.Context, workspaceID string) ([]domain.Entity[P], error)
	Upsert(ctx context.Context, entity domain.Entity[P]) error
	Delete(ctx context.Context, workspaceID, id string) error
}

// Typed adapts a RecordStore to one table's payload type. Payloads are
// decoded and validated here; invalid rows are skipped on fetch and
// rejected on write.
type Typed[P domain.Payload] struct {
	table  domain.Table
	store  RecordStore
	logger *slog.Logger
}

// NewTyped constructs a Typed store.
func NewTyped[P domain.Payload](table domain.Table, store RecordStore, logger *slog.Logger) *Typed[P] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Typed[P]{table: table, store: store, logger: logger.With("table", string(table))}
}

func (t *Typed[P]) Table() domain.Table { return t.table }

// Fetch returns the decodable records of the workspace.
func (t *Typed[P]) Fetch(ctx context.Context, workspaceID string) ([]domain.Entity[P], error) {
	records, err := t.store.FetchTable(ctx, t.table, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Entity[P], 0, len(records))
	for _, rec := range records {
		entity, err := domain.FromRecord[P](rec)
		if err != nil {
			t.logger.Warn("skipping invalid record", "workspace_id", workspaceID, "record_id", rec.ID, "error", err)
			continue
		}
		out = append(out, entity)
	}
	return out, nil
}

func (t *Typed[P]) Upsert(ctx context.Context, entity domain.Entity[P]) error {
	if entity.ID == "" || entity.WorkspaceID == "" {
		return fmt.Errorf("%w: record needs id and workspace", ErrInvalidArgument)
	}
	if err := entity.Payload.Validate(); err != nil {
		return err
	}
	rec, err := domain.ToRecord(entity)
	if err != nil {
		return err
	}
	return t.store.Upsert(ctx, t.table, rec)
}

func (t *Typed[P]) Delete(ctx context.Context, workspaceID, id string) error {
	return t.store.DeleteEntity(ctx, t.table, workspaceID, id)
}

// Stores bundles one typed store per table.
type Stores struct {
	Clients        TableStore[domain.Client]
	Tasks          TableStore[domain.Task]
	FinanceEntries TableStore[domain.FinanceEntry]
	Notes          TableStore[domain.Note]
}

// NewStores wraps store with a typed adapter for every table.
func NewStores(store RecordStore, logger *slog.Logger) Stores {
	return Stores{
		Clients:        NewTyped[domain.Client](domain.TableClients, store, logger),
		Tasks:          NewTyped[domain.Task](domain.TableTasks, store, logger),
		FinanceEntries: NewTyped[domain.FinanceEntry](domain.TableFinanceEntries, store, logger),
		Notes:          NewTyped[domain.Note](domain.TableNotes, store, logger),
	}
}
