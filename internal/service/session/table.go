package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/merge"
	"github.com/splax/deskpulse/internal/repository"
)

// Table is one synchronised collection of a Session, kept per workspace.
// Its state is guarded by the owning session's mutex.
type Table[P domain.Payload] struct {
	s           *Session
	store       repository.TableStore[P]
	collections map[string]merge.Collection[P]
	warmed      map[string]bool
}

func newTable[P domain.Payload](s *Session, store repository.TableStore[P]) *Table[P] {
	return &Table[P]{
		s:           s,
		store:       store,
		collections: make(map[string]merge.Collection[P]),
		warmed:      make(map[string]bool),
	}
}

func (t *Table[P]) table() domain.Table { return t.store.Table() }

// Snapshot returns the active workspace's collection.
func (t *Table[P]) Snapshot() merge.Collection[P] {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.collections[t.s.active]
}

// SnapshotOf returns the collection held for any workspace.
func (t *Table[P]) SnapshotOf(workspaceID string) merge.Collection[P] {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.collections[workspaceID]
}

// Apply writes entity into the active workspace immediately, stamped with the
// session clock and user, then upserts it remotely in the background. The
// returned channel yields the remote result once and is closed. A failed
// write is not rolled back: the optimistic version stays until a newer
// remote version replaces it.
func (t *Table[P]) Apply(ctx context.Context, entity domain.Entity[P]) <-chan error {
	errc := make(chan error, 1)
	if err := entity.Payload.Validate(); err != nil {
		errc <- err
		close(errc)
		return errc
	}

	t.s.mu.Lock()
	workspaceID, userID := t.s.active, t.s.userID
	if workspaceID == "" || userID == "" {
		t.s.mu.Unlock()
		errc <- ErrNoActiveWorkspace
		close(errc)
		return errc
	}
	if entity.WorkspaceID == "" {
		entity.WorkspaceID = workspaceID
	}
	if entity.WorkspaceID != workspaceID {
		t.s.mu.Unlock()
		errc <- fmt.Errorf("%w: %s", ErrWorkspaceMismatch, entity.WorkspaceID)
		close(errc)
		return errc
	}
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	current := t.collections[workspaceID]
	if entity.CreatedBy == "" {
		if prev, ok := current.Get(entity.ID); ok {
			entity.CreatedBy = prev.CreatedBy
		}
		if entity.CreatedBy == "" {
			entity.CreatedBy = userID
		}
	}
	entity.UpdatedAt = domain.At(t.s.clock.Now())
	entity.UpdatedBy = userID
	t.collections[workspaceID] = current.With(entity)
	t.s.mu.Unlock()

	go func() {
		defer close(errc)
		ctx := context.WithoutCancel(ctx)
		t.persist(ctx, workspaceID)
		errc <- t.write(ctx, func(wctx context.Context) error {
			return t.store.Upsert(wctx, entity)
		}, "record_id", entity.ID)
	}()
	return errc
}

// Delete removes id from the active workspace immediately and soft-deletes it
// remotely. The result is reported like Apply.
func (t *Table[P]) Delete(ctx context.Context, id string) <-chan error {
	errc := make(chan error, 1)

	t.s.mu.Lock()
	workspaceID, userID := t.s.active, t.s.userID
	if workspaceID == "" || userID == "" {
		t.s.mu.Unlock()
		errc <- ErrNoActiveWorkspace
		close(errc)
		return errc
	}
	t.collections[workspaceID] = t.collections[workspaceID].Without(id)
	t.s.mu.Unlock()

	go func() {
		defer close(errc)
		ctx := context.WithoutCancel(ctx)
		t.persist(ctx, workspaceID)
		errc <- t.write(ctx, func(wctx context.Context) error {
			return t.store.Delete(wctx, workspaceID, id)
		}, "record_id", id)
	}()
	return errc
}

// write runs fn detached from the caller's cancellation, bounded only by the
// session write timeout.
func (t *Table[P]) write(ctx context.Context, fn func(context.Context) error, attrs ...any) error {
	if t.s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.s.writeTimeout)
		defer cancel()
	}
	err := fn(ctx)
	if err != nil {
		t.s.metrics.recordWriteFailure(t.table())
		t.s.logger.Warn("remote write failed", append([]any{"table", string(t.table()), "error", err}, attrs...)...)
	}
	return err
}

// load fetches the table for workspaceID and folds the result into that
// workspace's collection.
func (t *Table[P]) load(ctx context.Context, workspaceID string) (merge.Report, error) {
	entities, err := t.store.Fetch(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			t.s.logger.Debug("table fetch cancelled", "table", string(t.table()), "workspace_id", workspaceID)
			return merge.Report{}, err
		}
		t.s.metrics.recordFetchFailure(t.table())
		t.s.logger.Warn("table fetch failed", "table", string(t.table()), "workspace_id", workspaceID, "error", err)
		return merge.Report{}, err
	}
	remote := merge.NewCollection(entities...)

	t.s.mu.Lock()
	merged, report := merge.Reconcile(t.collections[workspaceID], remote)
	t.collections[workspaceID] = merged
	t.s.mu.Unlock()

	t.s.metrics.recordMerge(t.table(), report)
	t.s.logger.Debug("table merged", "table", string(t.table()), "workspace_id", workspaceID,
		"inserted", report.Inserted, "replaced", report.Replaced, "kept_local", report.KeptLocal, "retained", report.Retained)
	if report.Changed() {
		t.persist(ctx, workspaceID)
	}
	return report, nil
}

// warm seeds a workspace's collection from the snapshot cache the first time
// the workspace is selected.
func (t *Table[P]) warm(ctx context.Context, workspaceID string) {
	if t.s.cache == nil {
		return
	}
	t.s.mu.Lock()
	if t.warmed[workspaceID] {
		t.s.mu.Unlock()
		return
	}
	t.warmed[workspaceID] = true
	t.s.mu.Unlock()

	records, err := t.s.cache.Load(ctx, workspaceID, t.table())
	if err != nil {
		t.s.logger.Warn("snapshot load failed", "table", string(t.table()), "workspace_id", workspaceID, "error", err)
		return
	}
	entities := make([]domain.Entity[P], 0, len(records))
	for _, rec := range records {
		e, err := domain.FromRecord[P](rec)
		if err != nil {
			continue
		}
		entities = append(entities, e)
	}
	if len(entities) == 0 {
		return
	}

	t.s.mu.Lock()
	t.collections[workspaceID] = merge.Merge(t.collections[workspaceID], merge.NewCollection(entities...))
	t.s.mu.Unlock()
}

func (t *Table[P]) persist(ctx context.Context, workspaceID string) {
	if t.s.cache == nil {
		return
	}
	snapshot := t.SnapshotOf(workspaceID)
	records := make([]domain.Record, 0, snapshot.Len())
	for _, e := range snapshot.Entities() {
		rec, err := domain.ToRecord(e)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := t.s.cache.Save(ctx, workspaceID, t.table(), records); err != nil {
		t.s.logger.Warn("snapshot save failed", "table", string(t.table()), "workspace_id", workspaceID, "error", err)
	}
}
