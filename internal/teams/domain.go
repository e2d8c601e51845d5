package teams

import (
	"time"

	"github.com/taskpulse/taskpulse/internal/authz"
)

// Team is a named group of members inside a department.
type Team struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DepartmentID string    `json:"departmentId,omitempty"`
	ManagerID    string    `json:"managerId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Member is the team-facing view of a user account.
type Member struct {
	UserID   string     `json:"userId"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     authz.Role `json:"-"`
	RoleName string     `json:"role"`
	TeamID   string     `json:"teamId,omitempty"`
	IsActive bool       `json:"isActive"`
}
