package repository

import (
	"context"

	"github.com/splax/deskpulse/internal/domain"
)

// RecordStore is the remote store gateway for business records. FetchTable
// returns only live records of the workspace; soft-deleted rows are excluded.
type RecordStore interface {
	FetchTable(ctx context.Context, table domain.Table, workspaceID string) ([]domain.Record, error)
	Upsert(ctx context.Context, table domain.Table, record domain.Record) error
	DeleteEntity(ctx context.Context, table domain.Table, workspaceID, id string) error
}

// WorkspaceRepository manages workspaces, memberships and invites.
type WorkspaceRepository interface {
	CreateWorkspace(ctx context.Context, workspace *domain.Workspace) error
	GetWorkspaceByID(ctx context.Context, workspaceID string) (*domain.Workspace, error)
	ListWorkspacesByUser(ctx context.Context, userID string) ([]domain.Workspace, error)
	CountOwnedWorkspaces(ctx context.Context, userID string) (int, error)
	DeleteWorkspace(ctx context.Context, workspaceID string) error
	UpsertMember(ctx context.Context, member *domain.Member) error
	GetMember(ctx context.Context, workspaceID, userID string) (*domain.Member, error)
	ListMembers(ctx context.Context, workspaceID string) ([]domain.Member, error)
	ListInvites(ctx context.Context, workspaceID string) ([]domain.Invite, error)
	CreateInvite(ctx context.Context, invite *domain.Invite) error
	DeleteInvite(ctx context.Context, inviteID string) error
}

// HealthChecker reports store reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
