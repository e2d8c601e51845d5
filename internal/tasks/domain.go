// Package tasks implements the task resource: assignment, progress,
// blockers and notes, with room fan-out on every mutation.
package tasks

import "time"

// Task statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusOverdue    = "overdue"
	StatusBlocked    = "blocked"
	StatusCancelled  = "cancelled"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Task is a unit of assigned work.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	AssignedTo   string     `json:"assignedTo"`
	AssignedBy   string     `json:"assignedBy"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	Progress     int        `json:"progress"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	TeamID       string     `json:"teamId,omitempty"`
	DepartmentID string     `json:"departmentId,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Comments     []Comment  `json:"comments,omitempty"`
	Blockers     []Blocker  `json:"blockers,omitempty"`
	IsDeleted    bool       `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Comment is a note attached to a task.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Blocker records something preventing progress on a task.
type Blocker struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	ReportedBy  string     `json:"reportedBy"`
	ReportedAt  time.Time  `json:"reportedAt"`
	Resolved    bool       `json:"resolved"`
	ResolvedBy  string     `json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

func validStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverdue, StatusBlocked, StatusCancelled:
		return true
	}
	return false
}

func validPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
