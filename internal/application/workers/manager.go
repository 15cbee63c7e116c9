package workers

import (
	"context"
	"fmt"

	"github.com/crewd/crewd/internal/application/jobs"
	"github.com/crewd/crewd/internal/application/workflow"
	"github.com/crewd/crewd/pkg/domain"
	"go.uber.org/zap"
)

// Manager composes the registry, spawner, dispatcher and job registry
// behind the single surface used by tools, the workflow engine and the
// API layer.
type Manager struct {
	registry   *Registry
	spawner    *Spawner
	dispatcher *Dispatcher
	jobs       *jobs.Registry
	profiles   map[string]domain.WorkerProfile
	logger     *zap.Logger
}

// ManagerConfig holds the manager's collaborators.
type ManagerConfig struct {
	Registry   *Registry
	Spawner    *Spawner
	Dispatcher *Dispatcher
	Jobs       *jobs.Registry
	// Profiles is the static profile catalog, keyed by worker id.
	Profiles []domain.WorkerProfile
	Logger   *zap.Logger
}

// NewManager creates the worker manager façade.
func NewManager(cfg ManagerConfig) *Manager {
	profiles := make(map[string]domain.WorkerProfile, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profiles[p.ID] = p
	}
	return &Manager{
		registry:   cfg.Registry,
		spawner:    cfg.Spawner,
		dispatcher: cfg.Dispatcher,
		jobs:       cfg.Jobs,
		profiles:   profiles,
		logger:     cfg.Logger,
	}
}

// Spawn starts (or reuses) a worker for the given profile.
func (m *Manager) Spawn(ctx context.Context, profile domain.WorkerProfile) (domain.WorkerInstance, error) {
	return m.spawner.Spawn(ctx, profile)
}

// SpawnByID starts (or reuses) a worker from the static profile catalog.
func (m *Manager) SpawnByID(ctx context.Context, id string) (domain.WorkerInstance, error) {
	profile, ok := m.profiles[id]
	if !ok {
		return domain.WorkerInstance{}, fmt.Errorf("%w: %s", domain.ErrProfileNotFound, id)
	}
	return m.spawner.Spawn(ctx, profile)
}

// StopWorker shuts a worker down and removes it from the registry. It
// returns false when no instance exists, which is not an error. The
// instance is removed even if the shutdown hook fails.
func (m *Manager) StopWorker(id string) bool {
	server, ok := m.registry.remove(id)
	if !ok {
		return false
	}

	if server != nil {
		if err := server.Close(); err != nil {
			m.logger.Warn("worker shutdown hook failed",
				zap.String("worker_id", id),
				zap.Error(err))
		}
	}

	m.registry.publishLifecycle(id, domain.WorkerStatusStopped)
	m.logger.Info("worker stopped", zap.String("worker_id", id))
	return true
}

// StopAll stops every registered worker. Used at shutdown.
func (m *Manager) StopAll() {
	for _, inst := range m.registry.List() {
		m.StopWorker(inst.Profile.ID)
	}
}

// Send dispatches a message to a running worker.
func (m *Manager) Send(ctx context.Context, workerID, message string, opts domain.SendOptions) domain.SendResult {
	return m.dispatcher.Send(ctx, workerID, message, opts)
}

// SendTracked dispatches a message wrapped in a job: the job is created
// before the send and completed from its result, so callers holding the
// job id can await it independently of this call.
func (m *Manager) SendTracked(ctx context.Context, workerID, message string, opts domain.SendOptions) domain.SendResult {
	job := m.jobs.Create(jobs.CreateInput{
		WorkerID:    workerID,
		Message:     message,
		RequestedBy: opts.From,
	})
	opts.JobID = job.ID

	result := m.dispatcher.Send(ctx, workerID, message, opts)
	if result.Success {
		m.jobs.SetResult(job.ID, result.Response, nil)
	} else {
		m.jobs.SetError(job.ID, result.Error, nil)
	}
	return result
}

// GetWorker returns a snapshot of a worker instance.
func (m *Manager) GetWorker(id string) (domain.WorkerInstance, bool) {
	return m.registry.Get(id)
}

// ListWorkers returns snapshots of all registered instances.
func (m *Manager) ListWorkers() []domain.WorkerInstance {
	return m.registry.List()
}

// ListProfiles returns the static profile catalog.
func (m *Manager) ListProfiles() []domain.WorkerProfile {
	out := make([]domain.WorkerProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out
}

// Jobs exposes the job registry.
func (m *Manager) Jobs() *jobs.Registry {
	return m.jobs
}

// WorkflowDeps builds the resolver/sender callbacks the workflow engine
// runs against. Workflow sends are tracked as jobs.
func (m *Manager) WorkflowDeps() workflow.RunDeps {
	return workflow.RunDeps{
		ResolveWorker: func(ctx context.Context, workerID string, autoSpawn bool) (string, error) {
			if _, ok := m.registry.Get(workerID); ok {
				return workerID, nil
			}
			if !autoSpawn {
				return "", fmt.Errorf("%w: %s", domain.ErrWorkerNotFound, workerID)
			}
			inst, err := m.SpawnByID(ctx, workerID)
			if err != nil {
				return "", err
			}
			return inst.Profile.ID, nil
		},
		SendToWorker: func(ctx context.Context, workerID, prompt string, opts domain.SendOptions) domain.SendResult {
			opts.From = "workflow"
			return m.SendTracked(ctx, workerID, prompt, opts)
		},
	}
}
