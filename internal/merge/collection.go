package merge

import (
	"sort"

	"github.com/splax/deskpulse/internal/domain"
)

// Collection is an immutable set of entities of one table keyed by ID.
// Mutating methods return a new Collection and leave the receiver intact.
type Collection[P domain.Payload] struct {
	items map[string]domain.Entity[P]
}

// NewCollection builds a collection from entities. When an ID repeats, the
// newer UpdatedAt wins and ties keep the first occurrence.
func NewCollection[P domain.Payload](entities ...domain.Entity[P]) Collection[P] {
	items := make(map[string]domain.Entity[P], len(entities))
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		if prev, ok := items[e.ID]; ok && !e.UpdatedAt.After(prev.UpdatedAt) {
			continue
		}
		items[e.ID] = e
	}
	return Collection[P]{items: items}
}

func (c Collection[P]) Len() int { return len(c.items) }

func (c Collection[P]) Get(id string) (domain.Entity[P], bool) {
	e, ok := c.items[id]
	return e, ok
}

// IDs returns entity identifiers in ascending order.
func (c Collection[P]) IDs() []string {
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entities returns the members ordered by ID.
func (c Collection[P]) Entities() []domain.Entity[P] {
	out := make([]domain.Entity[P], 0, len(c.items))
	for _, id := range c.IDs() {
		out = append(out, c.items[id])
	}
	return out
}

// With returns a copy of c in which e replaces any entity with the same ID.
func (c Collection[P]) With(e domain.Entity[P]) Collection[P] {
	next := c.clone(len(c.items) + 1)
	next.items[e.ID] = e
	return next
}

// Without returns a copy of c lacking id.
func (c Collection[P]) Without(id string) Collection[P] {
	if _, ok := c.items[id]; !ok {
		return c
	}
	next := c.clone(len(c.items))
	delete(next.items, id)
	return next
}

func (c Collection[P]) clone(capacity int) Collection[P] {
	items := make(map[string]domain.Entity[P], capacity)
	for id, e := range c.items {
		items[id] = e
	}
	return Collection[P]{items: items}
}
