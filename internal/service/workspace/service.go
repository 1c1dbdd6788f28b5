package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository"
	"github.com/splax/deskpulse/pkg/crypto"
)

const (
	defaultName      = "My workspace"
	defaultInviteTTL = 7 * 24 * time.Hour
)

var (
	// ErrForbidden is returned when the user lacks access to a workspace.
	ErrForbidden = errors.New("workspace access denied")

	// ErrInvalidArgument wraps rejected names and roles.
	ErrInvalidArgument = errors.New("invalid workspace argument")

	errInvalidName = fmt.Errorf("%w: name is required", ErrInvalidArgument)
	errInvalidRole = fmt.Errorf("%w: unknown role", ErrInvalidArgument)
)

// Service handles workspace lifecycle and membership.
type Service struct {
	repo   repository.WorkspaceRepository
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Service.
func New(repo repository.WorkspaceRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, logger: logger.With("component", "workspace"), now: time.Now}
}

// Create registers a workspace and makes the owner its first member.
func (s Service) Create(ctx context.Context, ownerID, name, color string) (*domain.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidName
	}
	now := s.now().UTC()
	ws := &domain.Workspace{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		Color:     strings.TrimSpace(color),
	}
	if err := s.repo.CreateWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	member := &domain.Member{
		WorkspaceID: ws.ID,
		UserID:      ownerID,
		Role:        domain.RoleOwner,
		JoinedAt:    now,
	}
	if err := s.repo.UpsertMember(ctx, member); err != nil {
		return nil, err
	}
	s.logger.Info("workspace created", "workspace_id", ws.ID, "owner_id", ownerID)
	return ws, nil
}

// EnsureDefault creates a personal workspace for a user who owns none. It
// reports whether a workspace was created.
func (s Service) EnsureDefault(ctx context.Context, userID string) (bool, error) {
	owned, err := s.repo.CountOwnedWorkspaces(ctx, userID)
	if err != nil {
		return false, err
	}
	if owned > 0 {
		return false, nil
	}
	if _, err := s.Create(ctx, userID, defaultName, ""); err != nil {
		return false, fmt.Errorf("create default workspace: %w", err)
	}
	return true, nil
}

// List returns the user's workspaces, creating the default one on first login.
func (s Service) List(ctx context.Context, userID string) ([]domain.Workspace, error) {
	if _, err := s.EnsureDefault(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListWorkspacesByUser(ctx, userID)
}

// Authorize returns the user's membership or ErrForbidden.
func (s Service) Authorize(ctx context.Context, userID, workspaceID string) (*domain.Member, error) {
	member, err := s.repo.GetMember(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	return member, nil
}

// AuthorizeWrite is Authorize limited to roles that may change records.
func (s Service) AuthorizeWrite(ctx context.Context, userID, workspaceID string) (*domain.Member, error) {
	member, err := s.Authorize(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}
	if member.Role == domain.RoleViewer {
		return nil, ErrForbidden
	}
	return member, nil
}

// Members lists the workspace members; the caller must be one of them.
func (s Service) Members(ctx context.Context, userID, workspaceID string) ([]domain.Member, error) {
	if _, err := s.Authorize(ctx, userID, workspaceID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, workspaceID)
}

// PendingInvites lists invites that have not expired.
func (s Service) PendingInvites(ctx context.Context, userID, workspaceID string) ([]domain.Invite, error) {
	if _, err := s.Authorize(ctx, userID, workspaceID); err != nil {
		return nil, err
	}
	invites, err := s.repo.ListInvites(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	pending := invites[:0]
	for _, inv := range invites {
		if !inv.Expired(now) {
			pending = append(pending, inv)
		}
	}
	return pending, nil
}

// UpsertMember adds or updates a membership. Only the owner may do so.
func (s Service) UpsertMember(ctx context.Context, actorID, workspaceID, userID string, role domain.Role) error {
	switch role {
	case domain.RoleEditor, domain.RoleViewer:
	default:
		return errInvalidRole
	}
	if err := s.requireOwner(ctx, actorID, workspaceID); err != nil {
		return err
	}
	return s.repo.UpsertMember(ctx, &domain.Member{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		JoinedAt:    s.now().UTC(),
	})
}

// CreateInvite issues an invite for role. The returned token is only
// available here; the repository keeps a bcrypt hash of it.
func (s Service) CreateInvite(ctx context.Context, actorID, workspaceID string, role domain.Role, ttl time.Duration) (*domain.Invite, string, error) {
	switch role {
	case domain.RoleEditor, domain.RoleViewer:
	default:
		return nil, "", errInvalidRole
	}
	if err := s.requireOwner(ctx, actorID, workspaceID); err != nil {
		return nil, "", err
	}
	if ttl <= 0 {
		ttl = defaultInviteTTL
	}
	token := crypto.NewToken()
	hash, err := crypto.HashToken(token)
	if err != nil {
		return nil, "", fmt.Errorf("hash invite token: %w", err)
	}
	invite := &domain.Invite{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		TokenHash:   hash,
		Role:        role,
		CreatedBy:   actorID,
		ExpiresAt:   s.now().UTC().Add(ttl),
	}
	if err := s.repo.CreateInvite(ctx, invite); err != nil {
		return nil, "", err
	}
	s.logger.Info("invite created", "workspace_id", workspaceID, "invite_id", invite.ID, "role", role)
	return invite, token, nil
}

// AcceptInvite redeems token for userID. Existing members keep their role.
func (s Service) AcceptInvite(ctx context.Context, userID, workspaceID, token string) (*domain.Member, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrForbidden
	}
	invites, err := s.repo.ListInvites(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var match *domain.Invite
	for i := range invites {
		if invites[i].Expired(now) {
			continue
		}
		if crypto.CompareToken(invites[i].TokenHash, token) == nil {
			match = &invites[i]
			break
		}
	}
	if match == nil {
		return nil, ErrForbidden
	}

	member, err := s.repo.GetMember(ctx, workspaceID, userID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		member = &domain.Member{
			WorkspaceID: workspaceID,
			UserID:      userID,
			Role:        match.Role,
			JoinedAt:    now.UTC(),
		}
		if err := s.repo.UpsertMember(ctx, member); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	if err := s.repo.DeleteInvite(ctx, match.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	s.logger.Info("invite accepted", "workspace_id", workspaceID, "invite_id", match.ID, "user_id", userID)
	return member, nil
}

// Delete removes a workspace. Only the owner may delete it.
func (s Service) Delete(ctx context.Context, actorID, workspaceID string) error {
	if err := s.requireOwner(ctx, actorID, workspaceID); err != nil {
		return err
	}
	if err := s.repo.DeleteWorkspace(ctx, workspaceID); err != nil {
		return err
	}
	s.logger.Info("workspace deleted", "workspace_id", workspaceID, "actor_id", actorID)
	return nil
}

func (s Service) requireOwner(ctx context.Context, actorID, workspaceID string) error {
	ws, err := s.repo.GetWorkspaceByID(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	if ws.OwnerID != actorID {
		return ErrForbidden
	}
	return nil
}
