package reports

import "time"

// Report statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Report types.
const (
	TypeTeamSummary  = "team_summary"
	TypeUserActivity = "user_activity"
)

// Report is an asynchronously generated summary. The request row is
// written synchronously; a worker fills in the result later and the
// requesting team hears about it through the report-generated event.
type Report struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Period      string         `json:"period"`
	TeamID      string         `json:"teamId"`
	RequestedBy string         `json:"requestedBy"`
	Status      string         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

func validType(t string) bool {
	return t == TypeTeamSummary || t == TypeUserActivity
}
