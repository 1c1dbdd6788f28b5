package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestFromRecordValidatesPayload(t *testing.T) {
	_, err := FromRecord[Client](Record{ID: "c1", Payload: json.RawMessage(`{"name":""}`)})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}

	_, err = FromRecord[Client](Record{ID: "c1", Payload: json.RawMessage(`{"name":`)})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected decode failure to wrap ErrInvalidPayload, got %v", err)
	}

	e, err := FromRecord[Client](Record{ID: "c1", WorkspaceID: "w1", UpdatedAt: UnixMilli(5), Payload: json.RawMessage(`{"name":"Acme","status":"lead"}`)})
	if err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	if e.ID != "c1" || e.WorkspaceID != "w1" || e.Payload.Name != "Acme" || !e.UpdatedAt.Equal(UnixMilli(5)) {
		t.Fatalf("unexpected entity %+v", e)
	}
}

func TestValidatePayloadPerTable(t *testing.T) {
	cases := []struct {
		table Table
		raw   string
		ok    bool
	}{
		{TableClients, `{"name":"Acme"}`, true},
		{TableTasks, `{"title":"Ship","priority":"urgent"}`, false},
		{TableTasks, `{"title":"Ship","dueDate":"2024-02-30"}`, false},
		{TableFinanceEntries, `{"kind":"income","amountCents":1500,"currency":"EUR"}`, true},
		{TableFinanceEntries, `{"kind":"refund","amountCents":1}`, false},
		{TableNotes, `{}`, false},
		{TableNotes, `{"body":"remember"}`, true},
	}
	for _, tc := range cases {
		err := ValidatePayload(tc.table, json.RawMessage(tc.raw))
		if tc.ok && err != nil {
			t.Fatalf("%s %s: unexpected error %v", tc.table, tc.raw, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s %s: expected validation error", tc.table, tc.raw)
		}
	}
}

func TestParseTable(t *testing.T) {
	for _, table := range AllTables() {
		got, err := ParseTable(string(table))
		if err != nil || got != table {
			t.Fatalf("round trip of %s failed: %v", table, err)
		}
	}
	if _, err := ParseTable("invoices"); !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
}
