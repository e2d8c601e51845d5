package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportGenerate is the task type for building a report.
	TaskReportGenerate = "report:generate"
	// TaskKPIRollup is the task type for the nightly KPI refresh.
	TaskKPIRollup = "kpi:rollup"
)

// ReportPayload identifies the report a worker should build.
type ReportPayload struct {
	ReportID string `json:"reportId"`
}

// NewReportGenerateTask constructs an Asynq task for one report.
func NewReportGenerateTask(payload ReportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportGenerate, data), nil
}

// KPIRollupPayload scopes the nightly rollup to one team, or every team
// when empty.
type KPIRollupPayload struct {
	TeamID string `json:"teamId,omitempty"`
}

// NewKPIRollupTask constructs an Asynq task for the rollup.
func NewKPIRollupTask(payload KPIRollupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskKPIRollup, data), nil
}
