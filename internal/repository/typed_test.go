package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository"
	"github.com/splax/deskpulse/internal/repository/memory"
)

func TestTypedFetchSkipsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	_ = store.Upsert(ctx, domain.TableClients, domain.Record{ID: "good", WorkspaceID: "w1", Payload: json.RawMessage(`{"name":"Acme"}`)})
	_ = store.Upsert(ctx, domain.TableClients, domain.Record{ID: "bad", WorkspaceID: "w1", Payload: json.RawMessage(`{"name":""}`)})

	stores := repository.NewStores(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	got, err := stores.Clients.Fetch(ctx, "w1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "good" || got[0].Payload.Name != "Acme" {
		t.Fatalf("unexpected entities %+v", got)
	}
}

func TestTypedUpsertValidates(t *testing.T) {
	ctx := context.Background()
	stores := repository.NewStores(memory.NewRecordStore(), nil)

	err := stores.Tasks.Upsert(ctx, domain.Entity[domain.Task]{ID: "t1", WorkspaceID: "w1"})
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
	err = stores.Tasks.Upsert(ctx, domain.Entity[domain.Task]{ID: "t1", Payload: domain.Task{Title: "x"}})
	if !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument without workspace, got %v", err)
	}
	if err := stores.Tasks.Upsert(ctx, domain.Entity[domain.Task]{ID: "t1", WorkspaceID: "w1", Payload: domain.Task{Title: "x"}}); err != nil {
		t.Fatalf("valid upsert failed: %v", err)
	}
}
