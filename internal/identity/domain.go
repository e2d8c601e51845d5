// Package identity verifies bearer credentials and resolves the acting
// principal. Every other component receives an authz.Principal, never a
// raw token.
package identity

import "time"

// User represents a stored user account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	TeamID       string
	DepartmentID string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
