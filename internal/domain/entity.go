package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPayload wraps payload validation and decoding failures.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload is implemented by every table's record body.
type Payload interface {
	Validate() error
}

// Entity is a business record of one table, identified by ID within that
// table. UpdatedAt may be zero when the record was never stamped.
type Entity[P Payload] struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	UpdatedAt   Timestamp `json:"updatedAt"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	Payload     P         `json:"payload"`
}

// Record is the untyped form of an Entity used by stores and transports.
type Record struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspaceId"`
	UpdatedAt   Timestamp       `json:"updatedAt"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	UpdatedBy   string          `json:"updatedBy,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// ToRecord encodes the entity payload as JSON.
func ToRecord[P Payload](e Entity[P]) (Record, error) {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("%w: encode: %v", ErrInvalidPayload, err)
	}
	return Record{
		ID:          e.ID,
		WorkspaceID: e.WorkspaceID,
		UpdatedAt:   e.UpdatedAt,
		CreatedBy:   e.CreatedBy,
		UpdatedBy:   e.UpdatedBy,
		Payload:     body,
	}, nil
}

// FromRecord decodes and validates a record payload.
func FromRecord[P Payload](r Record) (Entity[P], error) {
	var payload P
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			return Entity[P]{}, fmt.Errorf("%w: record %s: %v", ErrInvalidPayload, r.ID, err)
		}
	}
	if err := payload.Validate(); err != nil {
		return Entity[P]{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return Entity[P]{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		UpdatedAt:   r.UpdatedAt,
		CreatedBy:   r.CreatedBy,
		UpdatedBy:   r.UpdatedBy,
		Payload:     payload,
	}, nil
}

// ValidatePayload checks a raw payload against the table's schema.
func ValidatePayload(table Table, raw json.RawMessage) error {
	r := Record{Payload: raw}
	var err error
	switch table {
	case TableClients:
		_, err = FromRecord[Client](r)
	case TableTasks:
		_, err = FromRecord[Task](r)
	case TableFinanceEntries:
		_, err = FromRecord[FinanceEntry](r)
	case TableNotes:
		_, err = FromRecord[Note](r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTable, string(table))
	}
	return err
}
