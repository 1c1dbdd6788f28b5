package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/deskpulse/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.RecordStore         = (*Repository)(nil)
	_ repository.WorkspaceRepository = (*Repository)(nil)
	_ repository.HealthChecker       = (*Repository)(nil)
)

// Ping verifies the pool can reach the database.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func emptyToNil(value string) any {
	if value == "" {
		return nil
	}
	return value
}
