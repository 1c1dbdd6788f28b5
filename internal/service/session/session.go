// Package session owns a user's view of workspace records: it selects the
// active workspace, reconciles every table against the remote store, and
// applies optimistic local mutations.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/merge"
	"github.com/splax/deskpulse/internal/repository"
	"github.com/splax/deskpulse/pkg/clock"
)

var (
	// ErrNoActiveWorkspace is returned by writes made before a workspace
	// is selected or without a signed-in user.
	ErrNoActiveWorkspace = errors.New("session: no active workspace")
	// ErrWorkspaceMismatch is returned when a mutation targets a workspace
	// other than the active one.
	ErrWorkspaceMismatch = errors.New("session: entity belongs to another workspace")
)

// State is the session lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// SnapshotStore persists table snapshots between runs.
type SnapshotStore interface {
	Save(ctx context.Context, workspaceID string, table domain.Table, records []domain.Record) error
	Load(ctx context.Context, workspaceID string, table domain.Table) ([]domain.Record, error)
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	Clock        clock.Clock
	Cache        SnapshotStore
	Metrics      *Metrics
	Logger       *slog.Logger
	FetchTimeout time.Duration
	WriteTimeout time.Duration
}

// LoadReport describes one full reload.
type LoadReport struct {
	WorkspaceID string
	Merged      map[domain.Table]merge.Report
	Failed      map[domain.Table]error

	// Superseded is set when another SelectWorkspace started before this
	// load finished; its results still landed in WorkspaceID's collections.
	Superseded bool
}

// Status is a point-in-time view of the session.
type Status struct {
	State       State
	WorkspaceID string
	Generation  uint64
	Failed      []domain.Table
}

// Session is the explicit per-user sync context. Only a Session mutates its
// collections; readers get immutable snapshots.
type Session struct {
	userID       string
	clock        clock.Clock
	cache        SnapshotStore
	metrics      *Metrics
	logger       *slog.Logger
	fetchTimeout time.Duration
	writeTimeout time.Duration

	mu         sync.Mutex
	state      State
	active     string
	generation uint64
	cancelLoad context.CancelFunc
	failed     map[domain.Table]error

	clients        *Table[domain.Client]
	tasks          *Table[domain.Task]
	financeEntries *Table[domain.FinanceEntry]
	notes          *Table[domain.Note]
	tables         []syncer
}

// syncer is the table-independent face of a Table.
type syncer interface {
	table() domain.Table
	load(ctx context.Context, workspaceID string) (merge.Report, error)
	warm(ctx context.Context, workspaceID string)
}

// New creates a session for userID backed by stores. An empty userID yields
// an inert session: loads are no-ops and writes fail.
func New(userID string, stores repository.Stores, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Session{
		userID:       userID,
		clock:        opts.Clock,
		cache:        opts.Cache,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("component", "session", "user_id", userID),
		fetchTimeout: opts.FetchTimeout,
		writeTimeout: opts.WriteTimeout,
	}
	s.clients = newTable(s, stores.Clients)
	s.tasks = newTable(s, stores.Tasks)
	s.financeEntries = newTable(s, stores.FinanceEntries)
	s.notes = newTable(s, stores.Notes)
	s.tables = []syncer{s.clients, s.tasks, s.financeEntries, s.notes}
	return s
}

func (s *Session) Clients() *Table[domain.Client] { return s.clients }
func (s *Session) Tasks() *Table[domain.Task] { return s.tasks }
func (s *Session) FinanceEntries() *Table[domain.FinanceEntry] { return s.financeEntries }
func (s *Session) Notes() *Table[domain.Note] { return s.notes }

// UserID returns the signed-in user, empty for an inert session.
func (s *Session) UserID() string { return s.userID }

// ActiveWorkspace returns the selected workspace id, or "".
func (s *Session) ActiveWorkspace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Status reports the lifecycle state and the tables whose last fetch failed.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, WorkspaceID: s.active, Generation: s.generation}
	for t := range s.failed {
		st.Failed = append(st.Failed, t)
	}
	sort.Slice(st.Failed, func(i, j int) bool { return st.Failed[i] < st.Failed[j] })
	return st
}

// SelectWorkspace makes workspaceID active and reloads every table. It may
// be called again before a previous call returns: the earlier load is
// cancelled and only the latest selection moves the session to Ready.
// Collections are kept per workspace, so a superseded load can never leak
// records into another workspace.
func (s *Session) SelectWorkspace(ctx context.Context, workspaceID string) LoadReport {
	if s.userID == "" || workspaceID == "" {
		return LoadReport{WorkspaceID: workspaceID}
	}

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.generation++
	gen := s.generation
	s.active = workspaceID
	s.state = StateLoading
	s.cancelLoad = cancel
	s.failed = nil
	s.mu.Unlock()

	s.logger.Info("workspace selected", "workspace_id", workspaceID, "generation", gen)
	for _, t := range s.tables {
		t.warm(loadCtx, workspaceID)
	}

	report := s.LoadAll(loadCtx, workspaceID)

	s.mu.Lock()
	if s.generation == gen {
		s.state = StateReady
		s.failed = report.Failed
		s.cancelLoad = nil
	} else {
		report.Superseded = true
	}
	s.mu.Unlock()

	if report.Superseded {
		s.logger.Debug("workspace load superseded", "workspace_id", workspaceID, "generation", gen)
	}
	return report
}

// LoadAll fetches every table of workspaceID concurrently and merges each
// result into that workspace's collections as it arrives. A failed fetch is
// logged and leaves its table unchanged; other tables are unaffected.
func (s *Session) LoadAll(ctx context.Context, workspaceID string) LoadReport {
	report := LoadReport{
		WorkspaceID: workspaceID,
		Merged:      make(map[domain.Table]merge.Report),
		Failed:      make(map[domain.Table]error),
	}
	if s.userID == "" || workspaceID == "" {
		return report
	}

	started := s.clock.Now()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, t := range s.tables {
		g.Go(func() error {
			fetchCtx := ctx
			if s.fetchTimeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
				defer cancel()
			}
			r, err := t.load(fetchCtx, workspaceID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[t.table()] = err
				return nil
			}
			report.Merged[t.table()] = r
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.observeLoad(s.clock.Now().Sub(started).Seconds())
	s.logger.Info("workspace loaded", "workspace_id", workspaceID, "tables", len(report.Merged), "failed", len(report.Failed))
	return report
}

// Close cancels an in-flight load. Outstanding writes run to completion.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
}
