package models

import "github.com/google/uuid"

// Roles carried in access tokens
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Actor is the authenticated caller of an operation, with the request
// metadata the audit trail records
type Actor struct {
	UserID    uuid.UUID
	Role      string
	IPAddress string
	UserAgent string
}

// IsAdmin reports whether the actor may bypass ownership and policy checks
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// IDPtr returns the actor id for nullable columns
func (a Actor) IDPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// SystemActor is used by background jobs
func SystemActor() Actor {
	return Actor{Role: "system"}
}
