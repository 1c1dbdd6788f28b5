package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// CreateWorkspace inserts a workspace.
func (r *Repository) CreateWorkspace(ctx context.Context, ws *domain.Workspace) error {
	const query = `INSERT INTO workspaces (id, name, owner_id, color, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, ws.ID, ws.Name, ws.OwnerID, emptyToNil(ws.Color), ws.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrConflict
	}
	return err
}

// GetWorkspaceByID returns a workspace by identifier.
func (r *Repository) GetWorkspaceByID(ctx context.Context, workspaceID string) (*domain.Workspace, error) {
	const query = `SELECT id, name, owner_id, COALESCE(color, ''), created_at FROM workspaces WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, workspaceID)
	var ws domain.Workspace
	if err := row.Scan(&ws.ID, &ws.Name, &ws.OwnerID, &ws.Color, &ws.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

// ListWorkspacesByUser returns workspaces the user belongs to.
func (r *Repository) ListWorkspacesByUser(ctx context.Context, userID string) ([]domain.Workspace, error) {
	const query = `SELECT w.id, w.name, w.owner_id, COALESCE(w.color, ''), w.created_at
		FROM workspaces w
		INNER JOIN workspace_members wm ON wm.workspace_id = w.id
		WHERE wm.user_id = $1
		ORDER BY w.created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workspaces := make([]domain.Workspace, 0)
	for rows.Next() {
		var ws domain.Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.OwnerID, &ws.Color, &ws.CreatedAt); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

// CountOwnedWorkspaces counts workspaces owned by the user.
func (r *Repository) CountOwnedWorkspaces(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(1) FROM workspaces WHERE owner_id = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteWorkspace removes a workspace; members, invites and records cascade.
func (r *Repository) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpsertMember adds a member to a workspace or updates their role.
func (r *Repository) UpsertMember(ctx context.Context, member *domain.Member) error {
	const query = `INSERT INTO workspace_members (workspace_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := r.pool.Exec(ctx, query, member.WorkspaceID, member.UserID, string(member.Role), member.JoinedAt)
	return err
}

// GetMember returns a single membership.
func (r *Repository) GetMember(ctx context.Context, workspaceID, userID string) (*domain.Member, error) {
	const query = `SELECT workspace_id, user_id, role, joined_at FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`
	var (
		m    domain.Member
		role string
	)
	if err := r.pool.QueryRow(ctx, query, workspaceID, userID).Scan(&m.WorkspaceID, &m.UserID, &role, &m.JoinedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	m.Role = domain.Role(role)
	return &m, nil
}

// ListMembers returns the members of a workspace in join order.
func (r *Repository) ListMembers(ctx context.Context, workspaceID string) ([]domain.Member, error) {
	const query = `SELECT workspace_id, user_id, role, joined_at FROM workspace_members
		WHERE workspace_id = $1 ORDER BY joined_at ASC`
	rows, err := r.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.Member, 0)
	for rows.Next() {
		var (
			m    domain.Member
			role string
		)
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &role, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListInvites returns pending invites of a workspace.
func (r *Repository) ListInvites(ctx context.Context, workspaceID string) ([]domain.Invite, error) {
	const query = `SELECT id, workspace_id, token_hash, role, created_by, expires_at FROM workspace_invites
		WHERE workspace_id = $1 ORDER BY expires_at ASC`
	rows, err := r.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invites := make([]domain.Invite, 0)
	for rows.Next() {
		var (
			inv  domain.Invite
			role string
		)
		if err := rows.Scan(&inv.ID, &inv.WorkspaceID, &inv.TokenHash, &role, &inv.CreatedBy, &inv.ExpiresAt); err != nil {
			return nil, err
		}
		inv.Role = domain.Role(role)
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// CreateInvite stores an invite with its hashed token.
func (r *Repository) CreateInvite(ctx context.Context, invite *domain.Invite) error {
	const query = `INSERT INTO workspace_invites (id, workspace_id, token_hash, role, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, invite.ID, invite.WorkspaceID, invite.TokenHash, string(invite.Role), invite.CreatedBy, invite.ExpiresAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return repository.ErrConflict
		case foreignKeyViolation:
			return repository.ErrNotFound
		}
	}
	return err
}

// DeleteInvite removes a consumed or revoked invite.
func (r *Repository) DeleteInvite(ctx context.Context, inviteID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workspace_invites WHERE id = $1`, inviteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
