package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/crewd/crewd/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultAwaitTimeout bounds Await when the caller passes no timeout.
	DefaultAwaitTimeout = 10 * time.Minute

	defaultRetention = 24 * time.Hour
	defaultMaxJobs   = 200
)

// Registry tracks asynchronous worker dispatches as awaitable jobs.
//
// Jobs transition exactly once from running to a terminal status; terminal
// transitions on an already-terminal job are deliberate no-ops so
// duplicate completion signals are tolerated. Terminal jobs are retained
// for a bounded window and count, except that a job with at least one
// pending waiter is never pruned.
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*domain.WorkerJob
	order   []string // insertion order, for deterministic eviction
	waiters map[string][]chan domain.WorkerJob

	retention time.Duration
	maxJobs   int

	eventBus ports.EventBus
	metrics  ports.MetricsCollector
	logger   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetention overrides the terminal-job retention window.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) { r.retention = d }
}

// WithMaxJobs overrides the job table size cap.
func WithMaxJobs(n int) Option {
	return func(r *Registry) { r.maxJobs = n }
}

// NewRegistry creates a job registry. The event bus and metrics collector
// may be nil.
func NewRegistry(eventBus ports.EventBus, metrics ports.MetricsCollector, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		jobs:      make(map[string]*domain.WorkerJob),
		waiters:   make(map[string][]chan domain.WorkerJob),
		retention: defaultRetention,
		maxJobs:   defaultMaxJobs,
		eventBus:  eventBus,
		metrics:   metrics,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateInput describes a new job.
type CreateInput struct {
	WorkerID    string
	Message     string
	SessionID   string
	RequestedBy string
}

// Create allocates a new running job and returns a snapshot of it.
func (r *Registry) Create(in CreateInput) domain.WorkerJob {
	job := &domain.WorkerJob{
		ID:          uuid.New().String(),
		WorkerID:    in.WorkerID,
		Message:     in.Message,
		SessionID:   in.SessionID,
		RequestedBy: in.RequestedBy,
		Status:      domain.JobStatusRunning,
		StartedAt:   time.Now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	r.pruneLocked()
	size := len(r.jobs)
	snapshot := *job
	r.mu.Unlock()

	r.logger.Debug("job created",
		zap.String("job_id", job.ID),
		zap.String("worker_id", job.WorkerID))

	if r.metrics != nil {
		r.metrics.RecordJob(string(domain.JobStatusRunning))
		r.metrics.RecordJobTableSize(size)
	}
	r.publish(domain.EventTypeJobCreated, snapshot)

	return snapshot
}

// Get returns a snapshot of a job, or ErrJobNotFound.
func (r *Registry) Get(id string) (domain.WorkerJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.WorkerJob{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return cloneJob(job), nil
}

// ListFilter constrains List.
type ListFilter struct {
	WorkerID string
	Limit    int
}

// List returns jobs newest-first by StartedAt, optionally filtered by
// worker id, capped at Limit (default 50).
func (r *Registry) List(f ListFilter) []domain.WorkerJob {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	r.mu.Lock()
	out := make([]domain.WorkerJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if f.WorkerID != "" && job.WorkerID != f.WorkerID {
			continue
		}
		out = append(out, cloneJob(job))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SetResult marks a running job succeeded. It is a no-op if the job is
// unknown or already terminal.
func (r *Registry) SetResult(id, responseText string, report *domain.JobReport) {
	r.complete(id, domain.JobStatusSucceeded, responseText, "", report)
}

// SetError marks a running job failed. It is a no-op if the job is
// unknown or already terminal.
func (r *Registry) SetError(id, errText string, report *domain.JobReport) {
	r.complete(id, domain.JobStatusFailed, "", errText, report)
}

// Cancel marks a running job canceled. It is a no-op if the job is
// unknown or already terminal.
func (r *Registry) Cancel(id string) {
	r.complete(id, domain.JobStatusCanceled, "", "canceled", nil)
}

func (r *Registry) complete(id string, status domain.JobStatus, responseText, errText string, report *domain.JobReport) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok || job.Status != domain.JobStatusRunning {
		r.mu.Unlock()
		return
	}

	now := time.Now()
	job.Status = status
	job.FinishedAt = &now
	job.DurationMs = now.Sub(job.StartedAt).Milliseconds()
	job.ResponseText = responseText
	job.Error = errText
	if report != nil {
		mergeReport(job, report)
	}

	// One-shot fan-out: every registered waiter fires exactly once, then
	// the waiter set for this id is cleared.
	waiters := r.waiters[id]
	delete(r.waiters, id)

	snapshot := cloneJob(job)
	r.pruneLocked()
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- snapshot
	}

	r.logger.Debug("job completed",
		zap.String("job_id", id),
		zap.String("status", string(status)),
		zap.Int64("duration_ms", snapshot.DurationMs))

	if r.metrics != nil {
		r.metrics.RecordJob(string(status))
	}
	if status == domain.JobStatusSucceeded {
		r.publish(domain.EventTypeJobSucceeded, snapshot)
	} else {
		r.publish(domain.EventTypeJobFailed, snapshot)
	}
}

// AttachReport shallow-merges report fields into a job regardless of its
// status. It never changes status or timing.
func (r *Registry) AttachReport(id string, report *domain.JobReport) error {
	if report == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	mergeReport(job, report)
	return nil
}

// AwaitOptions configure Await.
type AwaitOptions struct {
	Timeout time.Duration
}

// Await blocks until the job reaches a terminal status or the timeout
// elapses. An unknown (never created or already pruned) id fails
// immediately with ErrJobNotFound; an already-terminal job resolves
// immediately. Multiple concurrent Await calls on the same id are all
// satisfied by the same completion.
func (r *Registry) Await(ctx context.Context, id string, opts AwaitOptions) (domain.WorkerJob, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}

	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return domain.WorkerJob{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if job.Status.Terminal() {
		snapshot := cloneJob(job)
		r.mu.Unlock()
		return snapshot, nil
	}

	// Buffered so the completion path never blocks on a waiter that has
	// already given up.
	ch := make(chan domain.WorkerJob, 1)
	r.waiters[id] = append(r.waiters[id], ch)
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case done := <-ch:
		return done, nil
	case <-timer.C:
		r.removeWaiter(id, ch)
		return domain.WorkerJob{}, fmt.Errorf("%w after %s: %s", domain.ErrAwaitTimeout, timeout, id)
	case <-ctx.Done():
		r.removeWaiter(id, ch)
		return domain.WorkerJob{}, ctx.Err()
	}
}

// removeWaiter deregisters a waiter channel after a timeout or
// cancellation so the job becomes prunable again.
func (r *Registry) removeWaiter(id string, ch chan domain.WorkerJob) {
	r.mu.Lock()
	defer r.mu.Unlock()

	waiters := r.waiters[id]
	for i, w := range waiters {
		if w == ch {
			r.waiters[id] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(r.waiters[id]) == 0 {
		delete(r.waiters, id)
	}
}

// Size returns the current number of retained jobs.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// pruneLocked enforces the retention window and the table size cap.
// Terminal jobs older than the retention window go first; if the table is
// still over the cap, the oldest terminal waiter-free jobs are evicted in
// insertion order. A job with a pending waiter is never pruned.
// Caller must hold r.mu.
func (r *Registry) pruneLocked() {
	cutoff := time.Now().Add(-r.retention)

	keep := r.order[:0]
	for _, id := range r.order {
		job, ok := r.jobs[id]
		if !ok {
			continue
		}
		if job.Status.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) && len(r.waiters[id]) == 0 {
			delete(r.jobs, id)
			continue
		}
		keep = append(keep, id)
	}
	r.order = keep

	if len(r.jobs) <= r.maxJobs {
		return
	}

	keep = r.order[:0]
	for _, id := range r.order {
		job := r.jobs[id]
		if len(r.jobs) > r.maxJobs && job.Status.Terminal() && len(r.waiters[id]) == 0 {
			delete(r.jobs, id)
			continue
		}
		keep = append(keep, id)
	}
	r.order = keep
}

func (r *Registry) publish(eventType domain.EventType, job domain.WorkerJob) {
	if r.eventBus == nil {
		return
	}
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		WorkerID:  job.WorkerID,
		JobID:     job.ID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"status":      string(job.Status),
			"duration_ms": job.DurationMs,
		},
	}
	if err := r.eventBus.Publish(context.Background(), "job.events", event); err != nil {
		r.logger.Warn("failed to publish job event",
			zap.String("job_id", job.ID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func mergeReport(job *domain.WorkerJob, report *domain.JobReport) {
	if job.Report == nil {
		job.Report = &domain.JobReport{}
	}
	if report.Summary != "" {
		job.Report.Summary = report.Summary
	}
	if report.Details != "" {
		job.Report.Details = report.Details
	}
	if len(report.Issues) > 0 {
		job.Report.Issues = append([]string(nil), report.Issues...)
	}
	if len(report.Notes) > 0 {
		job.Report.Notes = append([]string(nil), report.Notes...)
	}
}

func cloneJob(job *domain.WorkerJob) domain.WorkerJob {
	out := *job
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		out.FinishedAt = &t
	}
	if job.Report != nil {
		rep := *job.Report
		rep.Issues = append([]string(nil), job.Report.Issues...)
		rep.Notes = append([]string(nil), job.Report.Notes...)
		out.Report = &rep
	}
	return out
}
