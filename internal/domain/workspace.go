package domain

import "time"

// Role grants a member's level of access to a workspace.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Workspace is the tenant boundary for records and presence.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	Color     string    `json:"color,omitempty"`
}

// Member links a user to a workspace with a role.
type Member struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Invite is a pending workspace invitation. Only a hash of its one-time
// token is kept.
type Invite struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	TokenHash   []byte    `json:"-"`
	Role        Role      `json:"role"`
	CreatedBy   string    `json:"createdBy"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the invite can no longer be accepted at now.
func (i Invite) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}
