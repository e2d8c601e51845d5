package notifications

import "time"

// Notification types understood by clients.
const (
	TypeTaskAssigned = "task_assigned"
	TypeTaskUpdated  = "task_updated"
	TypeMention      = "mention"
	TypeSystem       = "system"
	TypeReportReady  = "report_ready"
)

// Notification is a per-user message. All queries are scoped to the
// owning user; a notification id from another user behaves as if it
// does not exist.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

func validType(t string) bool {
	switch t {
	case TypeTaskAssigned, TypeTaskUpdated, TypeMention, TypeSystem, TypeReportReady:
		return true
	}
	return false
}
