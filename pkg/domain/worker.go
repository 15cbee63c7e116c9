package domain

import "time"

// WorkerStatus represents the lifecycle state of a worker instance
type WorkerStatus string

const (
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusReady    WorkerStatus = "ready"
	WorkerStatusBusy     WorkerStatus = "busy"
	WorkerStatusError    WorkerStatus = "error"
	WorkerStatusStopped  WorkerStatus = "stopped"
)

// Permissions describes what a worker is allowed to do.
// The core does not interpret these; they are translated into a tool
// configuration and an identity-prompt summary by the permission adapter.
type Permissions struct {
	AllowedTools  []string `yaml:"allowed_tools" json:"allowed_tools,omitempty"`
	DeniedTools   []string `yaml:"denied_tools" json:"denied_tools,omitempty"`
	ReadOnly      bool     `yaml:"read_only" json:"read_only,omitempty"`
	NetworkAccess bool     `yaml:"network_access" json:"network_access,omitempty"`
}

// WorkerProfile is the static configuration for a worker.
// Profiles are externally sourced and immutable once loaded.
type WorkerProfile struct {
	ID           string      `yaml:"id" json:"id"`
	Name         string      `yaml:"name" json:"name"`
	Model        string      `yaml:"model" json:"model"` // "provider/model" or an auto-tag
	Purpose      string      `yaml:"purpose" json:"purpose"`
	SystemPrompt string      `yaml:"system_prompt" json:"system_prompt,omitempty"`
	Port         int         `yaml:"port" json:"port,omitempty"` // 0 = ephemeral
	Vision       bool        `yaml:"vision" json:"vision,omitempty"`
	Web          bool        `yaml:"web" json:"web,omitempty"`
	Permissions  Permissions `yaml:"permissions" json:"permissions"`
	Temperature  float64     `yaml:"temperature" json:"temperature,omitempty"`
}

// ProfileOverrides are per-worker adjustments fetched from the external
// override store and merged over the static profile at spawn time.
type ProfileOverrides struct {
	Model       string       `json:"model,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

// Apply merges the overrides over a copy of the profile.
func (o *ProfileOverrides) Apply(p WorkerProfile) WorkerProfile {
	if o == nil {
		return p
	}
	if o.Model != "" {
		p.Model = o.Model
	}
	if o.Temperature != nil {
		p.Temperature = *o.Temperature
	}
	if o.Permissions != nil {
		p.Permissions = *o.Permissions
	}
	return p
}

// LastResult is a summary of the most recent completed dispatch on a worker.
type LastResult struct {
	Response   string    `json:"response"`
	DurationMs int64     `json:"duration_ms"`
	JobID      string    `json:"job_id,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// WorkerInstance is the runtime record of a live worker.
// At most one instance exists per worker id at any time.
type WorkerInstance struct {
	Profile       WorkerProfile `json:"profile"`
	Status        WorkerStatus  `json:"status"`
	Port          int           `json:"port"`
	ServerURL     string        `json:"server_url"`
	SessionID     string        `json:"session_id"`
	ResolvedModel string        `json:"resolved_model"`
	StartedAt     time.Time     `json:"started_at"`
	LastActivity  time.Time     `json:"last_activity"`
	LastError     string        `json:"last_error,omitempty"`
	LastWarning   string        `json:"last_warning,omitempty"`
	LastResult    *LastResult   `json:"last_result,omitempty"`
}

// ID returns the worker id of the instance.
func (w *WorkerInstance) ID() string {
	return w.Profile.ID
}

// SendOptions configure a single dispatch to a worker.
type SendOptions struct {
	Attachments []string
	TimeoutMs   int64
	JobID       string
	From        string
}

// SendResult is the typed outcome of a dispatch. Expected failures
// (missing worker, timeout, transport error) are reported here rather
// than as errors so callers can branch without unwrapping.
type SendResult struct {
	Success    bool   `json:"success"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	JobID      string `json:"job_id,omitempty"`
}
