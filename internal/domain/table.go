package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownTable is returned for table names outside the closed set.
var ErrUnknownTable = errors.New("unknown table")

// Table names one of the synchronised record collections.
type Table string

const (
	TableClients        Table = "clients"
	TableTasks          Table = "tasks"
	TableFinanceEntries Table = "finance_entries"
	TableNotes          Table = "notes"
)

var allTables = []Table{TableClients, TableTasks, TableFinanceEntries, TableNotes}

// AllTables lists every table in load order.
func AllTables() []Table {
	out := make([]Table, len(allTables))
	copy(out, allTables)
	return out
}

// ParseTable validates a wire table name.
func ParseTable(name string) (Table, error) {
	for _, t := range allTables {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTable, name)
}

func (t Table) String() string { return string(t) }
