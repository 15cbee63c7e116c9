package domain

import "time"

// JobStatus represents the status of a tracked dispatch
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// JobReport is optional structured output attached to a job by the worker
// or the caller. Fields merge shallowly; a later attach wins per field.
type JobReport struct {
	Summary string   `json:"summary,omitempty"`
	Details string   `json:"details,omitempty"`
	Issues  []string `json:"issues,omitempty"`
	Notes   []string `json:"notes,omitempty"`
}

// WorkerJob is the trackable record of one asynchronous worker dispatch.
// A job transitions exactly once from running to a terminal status and is
// never mutated again after that.
type WorkerJob struct {
	ID           string     `json:"id"`
	WorkerID     string     `json:"worker_id"`
	Message      string     `json:"message"`
	SessionID    string     `json:"session_id,omitempty"`
	RequestedBy  string     `json:"requested_by,omitempty"`
	Status       JobStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	ResponseText string     `json:"response_text,omitempty"`
	Error        string     `json:"error,omitempty"`
	Report       *JobReport `json:"report,omitempty"`
}
