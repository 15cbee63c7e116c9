package domain

import "time"

// EventType identifies a lifecycle or job event
type EventType string

const (
	EventTypeWorkerSpawned EventType = "worker.spawned"
	EventTypeWorkerReady   EventType = "worker.ready"
	EventTypeWorkerBusy    EventType = "worker.busy"
	EventTypeWorkerError   EventType = "worker.error"
	EventTypeWorkerStopped EventType = "worker.stopped"

	EventTypeJobCreated   EventType = "job.created"
	EventTypeJobSucceeded EventType = "job.succeeded"
	EventTypeJobFailed    EventType = "job.failed"
)

// Event is a single lifecycle or job notification published to the
// optional event sink. The core never depends on delivery for correctness.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	WorkerID  string                 `json:"worker_id,omitempty"`
	JobID     string                 `json:"job_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
