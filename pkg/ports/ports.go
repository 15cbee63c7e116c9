package ports

import (
	"context"
	"time"

	"github.com/crewd/crewd/pkg/domain"
)

// EventHandler processes a single event delivered by an EventBus.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus is the optional external event sink. Publishing is
// fire-and-forget from the core's point of view; a nil bus is tolerated
// everywhere via the nil-safe publish helpers in the application layer.
//
// Subscribe returns an unsubscribe handle so callers can detach without
// leaking handlers.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) (func(), error)
	Close() error
}

// ServerConfig describes how to start a worker server.
type ServerConfig struct {
	Hostname     string
	Port         int // 0 = ephemeral
	Timeout      time.Duration
	Model        string
	SystemPrompt string
	Temperature  float64
	ToolConfig   ToolConfig
}

// SessionClient is the session-capable client returned by a Transport.
type SessionClient interface {
	// CreateSession opens a conversation session and returns its id.
	CreateSession(ctx context.Context) (string, error)
	// Prompt sends a message on a session and returns the worker's reply.
	Prompt(ctx context.Context, sessionID, message string, attachments []string) (string, error)
	// PromptNoReply injects context into a session without requesting a
	// completion (identity/system injection at spawn time).
	PromptNoReply(ctx context.Context, sessionID, message string) error
}

// ServerHandle is the process/server handle returned by a Transport.
type ServerHandle interface {
	URL() string
	Close() error
}

// Transport starts worker servers. It is a black box to the core.
type Transport interface {
	CreateServer(ctx context.Context, cfg ServerConfig) (SessionClient, ServerHandle, error)
}

// Resolution is the outcome of resolving a model spec.
type Resolution struct {
	Full         string // "provider/model"
	ProviderID   string
	ModelID      string
	Capabilities []string
}

// ResolveContext carries hints for model resolution.
type ResolveContext struct {
	WorkerID string
	Vision   bool
	Web      bool
}

// ModelResolver turns symbolic model tags (auto:fast, auto:smart, ...)
// into concrete provider/model ids. Explicit "provider/model" specs do not
// reach the resolver.
type ModelResolver interface {
	Resolve(spec string, rc ResolveContext) (*Resolution, error)
}

// ToolConfig is the tool surface handed to a worker's server.
type ToolConfig map[string]bool

// PermissionTranslator shapes a worker's tool surface and the permission
// summary used in its identity prompt. The core does not interpret
// permission semantics itself.
type PermissionTranslator interface {
	BuildToolConfig(p domain.Permissions) ToolConfig
	Summarize(p domain.Permissions) string
}

// OverrideStore is the external preference/override collaborator. A miss
// returns (nil, nil).
type OverrideStore interface {
	GetOverrides(ctx context.Context, workerID string) (*domain.ProfileOverrides, error)
	SaveOverrides(ctx context.Context, workerID string, o *domain.ProfileOverrides) error
}

// MetricsCollector records orchestration metrics.
type MetricsCollector interface {
	RecordSpawn(status string)
	RecordSend(status string, duration time.Duration)
	RecordJob(status string)
	RecordWorkflowRun(status string, duration time.Duration)
	RecordWorkflowStep(status string, duration time.Duration)
	RecordWorkerStatuses(counts map[domain.WorkerStatus]int)
	RecordJobTableSize(size int)
}
