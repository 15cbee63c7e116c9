package domain

import "time"

// WorkflowStepDefinition is one ordered step in a workflow. The prompt
// template may contain {task} and {carry} placeholders; substitution is a
// naive replace-all with no escaping and no recursive expansion.
type WorkflowStepDefinition struct {
	ID       string `yaml:"id" json:"id"`
	Title    string `yaml:"title" json:"title"`
	WorkerID string `yaml:"worker_id" json:"worker_id"`
	Prompt   string `yaml:"prompt" json:"prompt"`
	Carry    bool   `yaml:"carry" json:"carry"`
}

// WorkflowDefinition is a named, ordered pipeline of worker steps.
type WorkflowDefinition struct {
	ID          string                   `yaml:"id" json:"id"`
	Name        string                   `yaml:"name" json:"name"`
	Description string                   `yaml:"description" json:"description"`
	Steps       []WorkflowStepDefinition `yaml:"steps" json:"steps"`
}

// StepStatus is the outcome of a single executed workflow step
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusError   StepStatus = "error"
)

// WorkflowStepResult records the outcome of one executed step.
type WorkflowStepResult struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	WorkerID   string     `json:"worker_id"`
	Status     StepStatus `json:"status"`
	Response   string     `json:"response,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	DurationMs int64      `json:"duration_ms"`
}

// WorkflowRunResult is produced fresh per run and never persisted.
// Steps contains every step attempted, in order, up to and including a
// failing step; steps after a failure are never present.
type WorkflowRunResult struct {
	WorkflowID string               `json:"workflow_id"`
	Name       string               `json:"name"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Steps      []WorkflowStepResult `json:"steps"`
}

// Succeeded reports whether every recorded step completed successfully.
func (r *WorkflowRunResult) Succeeded() bool {
	for _, s := range r.Steps {
		if s.Status != StepStatusSuccess {
			return false
		}
	}
	return true
}
