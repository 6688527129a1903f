package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Permission is a named capability that can be checked, e.g. "server.create".
// Category only groups permissions for display and has no effect on checks.
type Permission struct {
	Name        string    `json:"name" validate:"required,max=64,identifier"`
	Description string    `json:"description" validate:"max=255"`
	Category    string    `json:"category" validate:"required,max=32,identifier"`
	CreatedAt   time.Time `json:"created_at"`
}

// GroupByCategory buckets permissions by category, keeping their order
// within each bucket.
func GroupByCategory(perms []Permission) map[string][]Permission {
	groups := make(map[string][]Permission)
	for _, p := range perms {
		groups[p.Category] = append(groups[p.Category], p)
	}
	return groups
}

// Role is a named bundle of permissions that can be assigned to users.
// System roles are shipped with the panel and cannot be deleted.
type Role struct {
	Name        string    `json:"name" validate:"required,max=64,trimmed"`
	Description string    `json:"description" validate:"max=255"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Assignment binds a user to a role. A nil ExpiresAt never expires.
type Assignment struct {
	ID         uuid.UUID  `json:"id"`
	UserID     string     `json:"user_id"`
	Role       string     `json:"role"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the assignment is in effect at t.
func (a Assignment) ActiveAt(t time.Time) bool {
	return activeAt(a.ExpiresAt, t)
}

// Override grants or denies a single permission to a single user,
// taking precedence over anything the user's roles provide.
type Override struct {
	ID         uuid.UUID  `json:"id"`
	UserID     string     `json:"user_id"`
	Permission string     `json:"permission"`
	Granted    bool       `json:"granted"`
	Reason     string     `json:"reason,omitempty"`
	GrantedBy  string     `json:"granted_by,omitempty"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the override is in effect at t.
func (o Override) ActiveAt(t time.Time) bool {
	return activeAt(o.ExpiresAt, t)
}

// An expiry equal to t is already expired.
func activeAt(expiresAt *time.Time, t time.Time) bool {
	return expiresAt == nil || expiresAt.After(t)
}
