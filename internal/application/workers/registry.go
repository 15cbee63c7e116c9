package workers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/crewd/crewd/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry is the in-memory directory of running worker instances, keyed
// by worker id. At most one instance exists per id. All reads return
// snapshots; live instances never cross the API boundary.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*instanceEntry

	eventBus ports.EventBus
	logger   *zap.Logger
}

// instanceEntry pairs the instance record with its runtime handles, which
// are not part of the externally visible snapshot.
type instanceEntry struct {
	instance *domain.WorkerInstance
	client   ports.SessionClient
	server   ports.ServerHandle
}

// NewRegistry creates a worker registry. The event bus may be nil.
func NewRegistry(eventBus ports.EventBus, logger *zap.Logger) *Registry {
	return &Registry{
		instances: make(map[string]*instanceEntry),
		eventBus:  eventBus,
		logger:    logger,
	}
}

// Get returns a snapshot of the instance for a worker id.
func (r *Registry) Get(id string) (domain.WorkerInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.instances[id]
	if !ok {
		return domain.WorkerInstance{}, false
	}
	return cloneInstance(entry.instance), true
}

// List returns snapshots of all registered instances sorted by worker id.
func (r *Registry) List() []domain.WorkerInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WorkerInstance, 0, len(r.instances))
	for _, entry := range r.instances {
		out = append(out, cloneInstance(entry.instance))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Profile.ID < out[j].Profile.ID })
	return out
}

// StatusCounts returns the number of instances per status.
func (r *Registry) StatusCounts() map[domain.WorkerStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.WorkerStatus]int)
	for _, entry := range r.instances {
		counts[entry.instance.Status]++
	}
	return counts
}

// register inserts a new entry for the instance's worker id.
func (r *Registry) register(inst *domain.WorkerInstance, client ports.SessionClient, server ports.ServerHandle) {
	r.mu.Lock()
	r.instances[inst.Profile.ID] = &instanceEntry{instance: inst, client: client, server: server}
	r.mu.Unlock()
}

// remove deletes the entry for a worker id and returns its server handle
// for shutdown, if any.
func (r *Registry) remove(id string) (ports.ServerHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.instances[id]
	if !ok {
		return nil, false
	}
	delete(r.instances, id)
	return entry.server, true
}

// session snapshots a worker's dispatch handles under the registry lock,
// so a send racing an in-flight spawn never observes a torn write of the
// client or session id.
func (r *Registry) session(id string) (ports.SessionClient, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.instances[id]
	if !ok {
		return nil, "", false
	}
	return entry.client, entry.instance.SessionID, true
}

// mutate applies fn to the live instance under the registry lock.
func (r *Registry) mutate(id string, fn func(*domain.WorkerInstance)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.instances[id]
	if !ok {
		return false
	}
	fn(entry.instance)
	return true
}

// setStatus transitions a worker's status and publishes the matching
// lifecycle event.
func (r *Registry) setStatus(id string, status domain.WorkerStatus) {
	if !r.mutate(id, func(inst *domain.WorkerInstance) {
		inst.Status = status
	}) {
		return
	}
	r.publishLifecycle(id, status)
}

// publishLifecycle emits a worker lifecycle event. Fire-and-forget: the
// registry functions identically with no event sink attached.
func (r *Registry) publishLifecycle(id string, status domain.WorkerStatus) {
	if r.eventBus == nil {
		return
	}

	var eventType domain.EventType
	switch status {
	case domain.WorkerStatusStarting:
		eventType = domain.EventTypeWorkerSpawned
	case domain.WorkerStatusReady:
		eventType = domain.EventTypeWorkerReady
	case domain.WorkerStatusBusy:
		eventType = domain.EventTypeWorkerBusy
	case domain.WorkerStatusError:
		eventType = domain.EventTypeWorkerError
	case domain.WorkerStatusStopped:
		eventType = domain.EventTypeWorkerStopped
	default:
		return
	}

	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		WorkerID:  id,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"status": string(status)},
	}
	if err := r.eventBus.Publish(context.Background(), "worker.events", event); err != nil {
		r.logger.Warn("failed to publish worker event",
			zap.String("worker_id", id),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func cloneInstance(inst *domain.WorkerInstance) domain.WorkerInstance {
	out := *inst
	if inst.LastResult != nil {
		lr := *inst.LastResult
		out.LastResult = &lr
	}
	return out
}
