// Package realtime implements the room-based event fan-out layer: a
// registry of live sessions joined to named rooms, and a dispatcher that
// delivers events to every current member of a room without blocking the
// request that triggered them.
package realtime

// Event is a named payload destined for one room. Events are transient and
// never persisted.
type Event struct {
	Name    string `json:"name"`
	Room    string `json:"room"`
	Payload any    `json:"payload,omitempty"`
}

// Domain event names. Clients match on these strings, so they are part of
// the wire contract and must not be renamed.
const (
	EventTaskAssigned        = "task-assigned"
	EventTaskCreated         = "task-created"
	EventTaskUpdated         = "task-updated"
	EventTaskDeleted         = "task-deleted"
	EventTaskStatusUpdated   = "task-status-updated"
	EventTaskProgressUpdated = "task-progress-updated"
	EventTaskBlockerAdded    = "task-blocker-added"
	EventTaskBlockerUpdated  = "task-blocker-updated"
	EventTaskNoteAdded       = "task-note-added"
	EventTaskReassigned      = "task-reassigned"
	EventTaskRemoved         = "task-removed"

	EventNewMessage      = "new-message"
	EventMessageUpdated  = "message-updated"
	EventMessageDeleted  = "message-deleted"
	EventMessageReaction = "message-reaction"

	EventNewNotification       = "new-notification"
	EventNotificationRead      = "notification-read"
	EventNotificationDeleted   = "notification-deleted"
	EventNotificationsBulkRead = "notifications-bulk-read"

	EventMemberAdded     = "member-added"
	EventMemberUpdated   = "member-updated"
	EventMemberRemoved   = "member-removed"
	EventProfileUpdated  = "profile-updated"
	EventRemovedFromTeam = "removed-from-team"

	EventReportGenerated     = "report-generated"
	EventProductivityUpdated = "productivity-updated"
	EventEfficiencyUpdated   = "efficiency-updated"
	EventQualityUpdated      = "quality-updated"
)

// Room key builders. Keys are opaque strings namespaced by kind and scope
// id; rooms are created implicitly on first join.
func UserRoom(userID string) string                 { return "user:" + userID }
func TeamRoom(teamID string) string                 { return "team:" + teamID }
func DepartmentRoom(deptID string) string           { return "department:" + deptID }
func ConversationRoom(conversationID string) string { return "conversation:" + conversationID }
func NotificationsRoom(userID string) string        { return "notifications:" + userID }
func TasksRoom(userID string) string                { return "tasks:" + userID }
func AnalyticsRoom(userID string) string            { return "analytics:" + userID }
