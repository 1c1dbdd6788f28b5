package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository"
)

type memberKey struct {
	workspaceID string
	userID      string
}

// WorkspaceRepository is a thread-safe in-memory WorkspaceRepository.
type WorkspaceRepository struct {
	mu         sync.RWMutex
	workspaces map[string]domain.Workspace
	members    map[memberKey]domain.Member
	invites    map[string]domain.Invite
}

var _ repository.WorkspaceRepository = (*WorkspaceRepository)(nil)

func NewWorkspaceRepository() *WorkspaceRepository {
	return &WorkspaceRepository{
		workspaces: make(map[string]domain.Workspace),
		members:    make(map[memberKey]domain.Member),
		invites:    make(map[string]domain.Invite),
	}
}

func (r *WorkspaceRepository) CreateWorkspace(_ context.Context, ws *domain.Workspace) error {
	if ws == nil || ws.ID == "" {
		return repository.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workspaces[ws.ID]; ok {
		return repository.ErrConflict
	}
	r.workspaces[ws.ID] = *ws
	return nil
}

func (r *WorkspaceRepository) GetWorkspaceByID(_ context.Context, workspaceID string) (*domain.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[workspaceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ws, nil
}

func (r *WorkspaceRepository) ListWorkspacesByUser(_ context.Context, userID string) ([]domain.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Workspace, 0)
	for key := range r.members {
		if key.userID != userID {
			continue
		}
		if ws, ok := r.workspaces[key.workspaceID]; ok {
			out = append(out, ws)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *WorkspaceRepository) CountOwnedWorkspaces(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ws := range r.workspaces {
		if ws.OwnerID == userID {
			n++
		}
	}
	return n, nil
}

func (r *WorkspaceRepository) DeleteWorkspace(_ context.Context, workspaceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workspaces[workspaceID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.workspaces, workspaceID)
	for key := range r.members {
		if key.workspaceID == workspaceID {
			delete(r.members, key)
		}
	}
	for id, inv := range r.invites {
		if inv.WorkspaceID == workspaceID {
			delete(r.invites, id)
		}
	}
	return nil
}

func (r *WorkspaceRepository) UpsertMember(_ context.Context, member *domain.Member) error {
	if member == nil || member.WorkspaceID == "" || member.UserID == "" {
		return repository.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workspaces[member.WorkspaceID]; !ok {
		return repository.ErrNotFound
	}
	key := memberKey{workspaceID: member.WorkspaceID, userID: member.UserID}
	if prev, ok := r.members[key]; ok {
		prev.Role = member.Role
		r.members[key] = prev
		return nil
	}
	r.members[key] = *member
	return nil
}

func (r *WorkspaceRepository) GetMember(_ context.Context, workspaceID, userID string) (*domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[memberKey{workspaceID: workspaceID, userID: userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *WorkspaceRepository) ListMembers(_ context.Context, workspaceID string) ([]domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Member, 0)
	for key, m := range r.members {
		if key.workspaceID == workspaceID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (r *WorkspaceRepository) ListInvites(_ context.Context, workspaceID string) ([]domain.Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Invite, 0)
	for _, inv := range r.invites {
		if inv.WorkspaceID == workspaceID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (r *WorkspaceRepository) CreateInvite(_ context.Context, invite *domain.Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workspaces[invite.WorkspaceID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.invites[invite.ID]; ok {
		return repository.ErrConflict
	}
	inv := *invite
	inv.TokenHash = append([]byte(nil), invite.TokenHash...)
	r.invites[inv.ID] = inv
	return nil
}

func (r *WorkspaceRepository) DeleteInvite(_ context.Context, inviteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invites[inviteID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.invites, inviteID)
	return nil
}
