package kpis

import "time"

// Metrics tracked per user.
const (
	MetricProductivity = "productivity"
	MetricEfficiency   = "efficiency"
	MetricQuality      = "quality"
)

// KPI is one measured value for a user over a period.
type KPI struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TeamID    string    `json:"teamId,omitempty"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Target    float64   `json:"target"`
	Period    string    `json:"period"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func validMetric(m string) bool {
	switch m {
	case MetricProductivity, MetricEfficiency, MetricQuality:
		return true
	}
	return false
}
