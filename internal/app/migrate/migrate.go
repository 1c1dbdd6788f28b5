package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Runner applies the workspace and record schema with goose.
type Runner struct {
	db       *sql.DB
	provider *goose.Provider
	dir      string
	log      *slog.Logger
}

// MigrationState is one row of Status output.
type MigrationState struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// New opens a database handle for dsn and loads migrations from dir.
func New(dsn, migrationsDir string, log *slog.Logger) (*Runner, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}
	if migrationsDir == "" {
		return nil, errors.New("empty migrations directory")
	}
	if _, err := os.Stat(migrationsDir); err != nil {
		return nil, fmt.Errorf("locate migrations dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(migrationsDir))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("configure goose: %w", err)
	}
	return &Runner{db: db, provider: provider, dir: migrationsDir, log: log.With("component", "migrate")}, nil
}

// Ensure applies pending migrations.
func (r *Runner) Ensure(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	r.log.Info("applying migrations", "dir", r.dir)
	results, err := r.provider.Up(runCtx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		r.log.Info("migration applied", "version", res.Source.Version, "duration", res.Duration)
	}
	return nil
}

// Status reports applied and pending migrations.
func (r *Runner) Status(ctx context.Context) ([]MigrationState, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]MigrationState, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, MigrationState{
			Version:   st.Source.Version,
			Path:      st.Source.Path,
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return out, nil
}

// Down rolls back the latest migration, or down to targetVersion when it is
// positive.
func (r *Runner) Down(ctx context.Context, targetVersion int64) error {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if targetVersion > 0 {
		r.log.Info("rolling back migrations", "target", targetVersion)
		if _, err := r.provider.DownTo(runCtx, targetVersion); err != nil {
			return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
		}
		return nil
	}
	r.log.Info("rolling back latest migration")
	if _, err := r.provider.Down(runCtx); err != nil {
		return fmt.Errorf("rollback latest migration: %w", err)
	}
	return nil
}

// Ping ensures the database connection is alive.
func (r *Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases underlying connections.
func (r *Runner) Close() error {
	return r.db.Close()
}
