package workspace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository/memory"
)

func newTestService() (Service, *memory.WorkspaceRepository) {
	repo := memory.NewWorkspaceRepository()
	return New(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func TestListCreatesDefaultWorkspaceOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	first, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != 1 || first[0].Name != defaultName || first[0].OwnerID != "u1" {
		t.Fatalf("expected a default workspace, got %+v", first)
	}

	second, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if len(second) != 1 || second[0].ID != first[0].ID {
		t.Fatalf("default workspace created twice: %+v", second)
	}
}

func TestEnsureDefaultSkipsOwners(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	if _, err := svc.Create(ctx, "u1", "Agency", "#ff0000"); err != nil {
		t.Fatalf("create: %v", err)
	}
	created, err := svc.EnsureDefault(ctx, "u1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if created {
		t.Fatalf("owner of a workspace should not get a default one")
	}
}

func TestMembersRequireMembership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	ws, err := svc.Create(ctx, "owner", "Agency", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Members(ctx, "stranger", ws.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.UpsertMember(ctx, "owner", ws.ID, "editor", domain.RoleEditor); err != nil {
		t.Fatalf("add member: %v", err)
	}
	members, err := svc.Members(ctx, "editor", ws.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected two members, got %+v", members)
	}
	if err := svc.UpsertMember(ctx, "editor", ws.ID, "other", domain.RoleViewer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner added a member: %v", err)
	}
}

func TestDeleteOwnerOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	ws, _ := svc.Create(ctx, "owner", "Agency", "")

	if err := svc.Delete(ctx, "intruder", ws.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.Delete(ctx, "owner", ws.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Authorize(ctx, "owner", ws.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("membership should be gone, got %v", err)
	}
}

func TestPendingInvitesFiltersExpired(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ws, _ := svc.Create(ctx, "owner", "Agency", "")

	for _, inv := range []domain.Invite{
		{ID: "i1", WorkspaceID: ws.ID, Role: domain.RoleEditor, ExpiresAt: now.Add(time.Hour)},
		{ID: "i2", WorkspaceID: ws.ID, Role: domain.RoleViewer, ExpiresAt: now.Add(-time.Hour)},
	} {
		if err := repo.CreateInvite(ctx, &inv); err != nil {
			t.Fatalf("seed invite: %v", err)
		}
	}

	invites, err := svc.PendingInvites(ctx, "owner", ws.ID)
	if err != nil {
		t.Fatalf("invites: %v", err)
	}
	if len(invites) != 1 || invites[0].ID != "i1" {
		t.Fatalf("expected only i1, got %+v", invites)
	}
}

func TestAuthorizeWriteRejectsViewers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	ws, err := svc.Create(ctx, "owner", "Agency", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.UpsertMember(ctx, "owner", ws.ID, "viewer", domain.RoleViewer); err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	if err := svc.UpsertMember(ctx, "owner", ws.ID, "editor", domain.RoleEditor); err != nil {
		t.Fatalf("add editor: %v", err)
	}

	if _, err := svc.AuthorizeWrite(ctx, "viewer", ws.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("viewer write: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.AuthorizeWrite(ctx, "editor", ws.ID); err != nil {
		t.Fatalf("editor write: %v", err)
	}
	if _, err := svc.Authorize(ctx, "viewer", ws.ID); err != nil {
		t.Fatalf("viewer read: %v", err)
	}
}

func TestInviteRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	ws, err := svc.Create(ctx, "owner", "Agency", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := svc.CreateInvite(ctx, "stranger", ws.ID, domain.RoleEditor, time.Hour); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner invite: expected ErrForbidden, got %v", err)
	}
	if _, _, err := svc.CreateInvite(ctx, "owner", ws.ID, domain.RoleOwner, time.Hour); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("owner role invite: expected ErrInvalidArgument, got %v", err)
	}

	invite, token, err := svc.CreateInvite(ctx, "owner", ws.ID, domain.RoleViewer, 0)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if token == "" || len(invite.TokenHash) == 0 || string(invite.TokenHash) == token {
		t.Fatalf("token must be returned once and stored hashed")
	}

	if _, err := svc.AcceptInvite(ctx, "guest", ws.ID, "wrong"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("bad token: expected ErrForbidden, got %v", err)
	}
	member, err := svc.AcceptInvite(ctx, "guest", ws.ID, token)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if member.Role != domain.RoleViewer || member.UserID != "guest" {
		t.Fatalf("unexpected member %+v", member)
	}
	if _, err := svc.AcceptInvite(ctx, "other", ws.ID, token); !errors.Is(err, ErrForbidden) {
		t.Fatalf("invite reused: %v", err)
	}
}

func TestAcceptInviteRejectsExpired(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ws, _ := svc.Create(ctx, "owner", "Agency", "")

	_, token, err := svc.CreateInvite(ctx, "owner", ws.ID, domain.RoleEditor, time.Minute)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := svc.AcceptInvite(ctx, "guest", ws.ID, token); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expired invite: expected ErrForbidden, got %v", err)
	}
}
