package domain

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Client is a customer of the workspace.
type Client struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Status  string `json:"status,omitempty"`
}

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: client name is required", ErrInvalidPayload)
	}
	switch c.Status {
	case "", "lead", "active", "inactive":
	default:
		return fmt.Errorf("%w: client status %q", ErrInvalidPayload, c.Status)
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: client email %q", ErrInvalidPayload, c.Email)
	}
	return nil
}

// Task is a unit of work, optionally tied to a client.
type Task struct {
	Title      string `json:"title"`
	Status     string `json:"status,omitempty"`
	Priority   string `json:"priority,omitempty"`
	DueDate    string `json:"dueDate,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
	AssigneeID string `json:"assigneeId,omitempty"`
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: task title is required", ErrInvalidPayload)
	}
	switch t.Status {
	case "", "todo", "in_progress", "done":
	default:
		return fmt.Errorf("%w: task status %q", ErrInvalidPayload, t.Status)
	}
	switch t.Priority {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("%w: task priority %q", ErrInvalidPayload, t.Priority)
	}
	return validDate("task due date", t.DueDate)
}

// FinanceEntry is an income or expense line in minor currency units.
type FinanceEntry struct {
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency,omitempty"`
	Category    string `json:"category,omitempty"`
	OccurredOn  string `json:"occurredOn,omitempty"`
	ClientID    string `json:"clientId,omitempty"`
}

func (f FinanceEntry) Validate() error {
	switch f.Kind {
	case "income", "expense":
	default:
		return fmt.Errorf("%w: finance entry kind %q", ErrInvalidPayload, f.Kind)
	}
	if f.AmountCents < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidPayload)
	}
	if f.Currency != "" && len(f.Currency) != 3 {
		return fmt.Errorf("%w: currency %q", ErrInvalidPayload, f.Currency)
	}
	return validDate("finance entry date", f.OccurredOn)
}

// Note is free-form text pinned to the workspace.
type Note struct {
	Title  string `json:"title,omitempty"`
	Body   string `json:"body,omitempty"`
	Pinned bool   `json:"pinned,omitempty"`
}

func (n Note) Validate() error {
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Body) == "" {
		return fmt.Errorf("%w: note is empty", ErrInvalidPayload)
	}
	return nil
}

func validDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return fmt.Errorf("%w: %s %q", ErrInvalidPayload, field, value)
	}
	return nil
}
