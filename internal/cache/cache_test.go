package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/splax/deskpulse/internal/domain"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return openStoreAt(t, filepath.Join(t.TempDir(), "cache.db"), opts...)
}

func openStoreAt(t *testing.T, path string, opts ...Option) *Store {
	t.Helper()
	store, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	records := []domain.Record{{ID: "c1", WorkspaceID: "w1", UpdatedAt: domain.UnixMilli(10), Payload: json.RawMessage(`{"name":"Acme"}`)}}
	if err := store.Save(ctx, "w1", domain.TableClients, records); err != nil {
		t.Fatalf("save: %v", err)
	}
	replaced := append(records, domain.Record{ID: "c2", WorkspaceID: "w1", Payload: json.RawMessage(`{"name":"Beta"}`)})
	if err := store.Save(ctx, "w1", domain.TableClients, replaced); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := store.Load(ctx, "w1", domain.TableClients)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || !got[0].UpdatedAt.Equal(domain.UnixMilli(10)) {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	missing, err := store.Load(ctx, "w1", domain.TableNotes)
	if err != nil || missing != nil {
		t.Fatalf("expected empty snapshot, got %v (%v)", missing, err)
	}
}

func TestForgetWorkspace(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_ = store.Save(ctx, "w1", domain.TableTasks, []domain.Record{{ID: "t1", WorkspaceID: "w1"}})
	_ = store.Save(ctx, "w2", domain.TableTasks, []domain.Record{{ID: "t2", WorkspaceID: "w2"}})

	if err := store.Forget(ctx, "w1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if got, _ := store.Load(ctx, "w1", domain.TableTasks); got != nil {
		t.Fatalf("w1 snapshot should be gone, got %+v", got)
	}
	if got, _ := store.Load(ctx, "w2", domain.TableTasks); len(got) != 1 {
		t.Fatalf("w2 snapshot should survive, got %+v", got)
	}
}

func TestSealedSnapshots(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	sealed := openStoreAt(t, path, WithSealKey("k1"))

	records := []domain.Record{{ID: "n1", WorkspaceID: "w1", Payload: json.RawMessage(`{"body":"secret note"}`)}}
	if err := sealed.Save(ctx, "w1", domain.TableNotes, records); err != nil {
		t.Fatalf("save: %v", err)
	}
	var row SnapshotRecord
	if err := sealed.db.First(&row, "workspace_id = ?", "w1").Error; err != nil {
		t.Fatalf("read row: %v", err)
	}
	if bytes.Contains(row.Records, []byte("secret note")) {
		t.Fatalf("snapshot stored in the clear")
	}
	got, err := sealed.Load(ctx, "w1", domain.TableNotes)
	if err != nil || len(got) != 1 || got[0].ID != "n1" {
		t.Fatalf("sealed load: %+v (%v)", got, err)
	}

	wrongKey := openStoreAt(t, path, WithSealKey("k2"))
	got, err = wrongKey.Load(ctx, "w1", domain.TableNotes)
	if err != nil || got != nil {
		t.Fatalf("wrong key should discard the snapshot, got %+v (%v)", got, err)
	}
}
