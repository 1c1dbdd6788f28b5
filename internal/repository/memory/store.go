// Package memory provides thread-safe in-memory repositories used by tests
// and by the API when STORE_BACKEND=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository"
)

type recordKey struct {
	table domain.Table
	id    string
}

type storedRecord struct {
	record  domain.Record
	deleted bool
}

// RecordStore keeps records in a map and soft-deletes on DeleteEntity.
type RecordStore struct {
	mu    sync.RWMutex
	items map[recordKey]storedRecord
	now   func() time.Time
}

var _ repository.RecordStore = (*RecordStore)(nil)

func NewRecordStore() *RecordStore {
	return &RecordStore{items: make(map[recordKey]storedRecord), now: time.Now}
}

func (s *RecordStore) FetchTable(_ context.Context, table domain.Table, workspaceID string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Record, 0)
	for key, v := range s.items {
		if key.table != table || v.deleted || v.record.WorkspaceID != workspaceID {
			continue
		}
		out = append(out, copyRecord(v.record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RecordStore) Upsert(_ context.Context, table domain.Table, record domain.Record) error {
	if record.ID == "" || record.WorkspaceID == "" {
		return repository.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{table: table, id: record.ID}
	if prev, ok := s.items[key]; ok && prev.record.WorkspaceID != record.WorkspaceID {
		return repository.ErrConflict
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = domain.At(s.now())
	}
	if prev, ok := s.items[key]; ok && record.CreatedBy == "" {
		record.CreatedBy = prev.record.CreatedBy
	}
	s.items[key] = storedRecord{record: copyRecord(record)}
	return nil
}

func (s *RecordStore) DeleteEntity(_ context.Context, table domain.Table, workspaceID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{table: table, id: id}
	v, ok := s.items[key]
	if !ok || v.deleted || v.record.WorkspaceID != workspaceID {
		return repository.ErrNotFound
	}
	v.deleted = true
	v.record.UpdatedAt = domain.At(s.now())
	s.items[key] = v
	return nil
}

// Ping always succeeds.
func (s *RecordStore) Ping(context.Context) error { return nil }

func copyRecord(r domain.Record) domain.Record {
	cp := r
	if r.Payload != nil {
		cp.Payload = append([]byte(nil), r.Payload...)
	}
	return cp
}
