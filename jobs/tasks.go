package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFilingStatusNotify tells a client their filing moved to a new status.
	TaskFilingStatusNotify = "filing:status-notify"
	// TaskFilingsMetricsSnapshot refreshes the filing gauges.
	TaskFilingsMetricsSnapshot = "filings:metrics-snapshot"
)

// FilingStatusPayload describes one applied status transition.
type FilingStatusPayload struct {
	FilingID        int64     `json:"filing_id"`
	ClientID        string    `json:"client_id"`
	TaxYear         int       `json:"tax_year"`
	Status          string    `json:"status"`
	Note            string    `json:"note,omitempty"`
	ChangedAt       time.Time `json:"changed_at"`
	EstimatedRefund string    `json:"estimated_refund,omitempty"`
	ActualRefund    string    `json:"actual_refund,omitempty"`
}

// NewFilingStatusTask constructs an Asynq task.
func NewFilingStatusTask(payload FilingStatusPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFilingStatusNotify, data), nil
}

// MetricsSnapshotPayload lists the tax years to snapshot. Empty means the
// current and previous calendar year.
type MetricsSnapshotPayload struct {
	Years []int `json:"years,omitempty"`
}

// NewMetricsSnapshotTask constructs an Asynq task.
func NewMetricsSnapshotTask(years ...int) (*asynq.Task, error) {
	data, err := json.Marshal(MetricsSnapshotPayload{Years: years})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFilingsMetricsSnapshot, data), nil
}
