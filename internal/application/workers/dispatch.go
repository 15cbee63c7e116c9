package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/crewd/crewd/pkg/ports"
	"go.uber.org/zap"
)

// DefaultSendTimeout bounds interactive sends when the caller passes no
// timeout. Workflow and job sends typically pass larger budgets.
const DefaultSendTimeout = 120 * time.Second

// Dispatcher forwards messages to running workers' sessions.
type Dispatcher struct {
	registry *Registry
	metrics  ports.MetricsCollector
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. Metrics may be nil.
func NewDispatcher(registry *Registry, metrics ports.MetricsCollector, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, metrics: metrics, logger: logger}
}

// Send forwards a message to the worker's active session and returns its
// reply. Expected failures (unknown worker, timeout, transport error) are
// reported in the result, never as a panic or error; callers branch on
// Success.
//
// The instance is marked busy for the call duration and flipped back to
// ready (or error on transport failure). A timed-out call resolves as a
// failure; the underlying session call is abandoned, not killed.
func (d *Dispatcher) Send(ctx context.Context, workerID, message string, opts domain.SendOptions) domain.SendResult {
	client, sessionID, ok := d.registry.session(workerID)
	if !ok {
		return domain.SendResult{
			Success: false,
			Error:   fmt.Sprintf("worker not found: %s", workerID),
			JobID:   opts.JobID,
		}
	}
	if client == nil {
		return domain.SendResult{
			Success: false,
			Error:   fmt.Sprintf("worker %s has no active session", workerID),
			JobID:   opts.JobID,
		}
	}

	timeout := DefaultSendTimeout
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}

	start := time.Now()

	d.registry.setStatus(workerID, domain.WorkerStatusBusy)
	d.registry.mutate(workerID, func(inst *domain.WorkerInstance) {
		inst.LastActivity = start
	})

	d.logger.Debug("dispatching message",
		zap.String("worker_id", workerID),
		zap.String("from", opts.From),
		zap.Duration("timeout", timeout))

	response, err := d.promptWithTimeout(ctx, client, sessionID, message, opts.Attachments, timeout)
	duration := time.Since(start)

	if err != nil {
		d.registry.mutate(workerID, func(inst *domain.WorkerInstance) {
			inst.LastActivity = time.Now()
			if isTimeout(err) {
				// A timeout is a caller-side budget, not a worker fault.
				inst.Status = domain.WorkerStatusReady
				inst.LastWarning = err.Error()
			} else {
				inst.Status = domain.WorkerStatusError
				inst.LastError = err.Error()
			}
		})
		if isTimeout(err) {
			d.registry.publishLifecycle(workerID, domain.WorkerStatusReady)
		} else {
			d.registry.publishLifecycle(workerID, domain.WorkerStatusError)
		}
		if d.metrics != nil {
			d.metrics.RecordSend("error", duration)
		}
		d.logger.Warn("dispatch failed",
			zap.String("worker_id", workerID),
			zap.Duration("duration", duration),
			zap.Error(err))
		return domain.SendResult{
			Success:    false,
			Error:      err.Error(),
			DurationMs: duration.Milliseconds(),
			JobID:      opts.JobID,
		}
	}

	now := time.Now()
	d.registry.mutate(workerID, func(inst *domain.WorkerInstance) {
		inst.Status = domain.WorkerStatusReady
		inst.LastActivity = now
		inst.LastResult = &domain.LastResult{
			Response:   response,
			DurationMs: duration.Milliseconds(),
			JobID:      opts.JobID,
			FinishedAt: now,
		}
	})
	d.registry.publishLifecycle(workerID, domain.WorkerStatusReady)

	if d.metrics != nil {
		d.metrics.RecordSend("success", duration)
	}
	d.logger.Debug("dispatch completed",
		zap.String("worker_id", workerID),
		zap.Duration("duration", duration))

	return domain.SendResult{
		Success:    true,
		Response:   response,
		DurationMs: duration.Milliseconds(),
		JobID:      opts.JobID,
	}
}

// promptWithTimeout runs the session call in a goroutine and races it
// against the timeout. On timeout the goroutine is abandoned; a late
// completion is discarded through the buffered channel.
func (d *Dispatcher) promptWithTimeout(ctx context.Context, client ports.SessionClient, sessionID, message string, attachments []string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type promptResult struct {
		response string
		err      error
	}
	ch := make(chan promptResult, 1)
	go func() {
		response, err := client.Prompt(ctx, sessionID, message, attachments)
		ch <- promptResult{response: response, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("send timeout after %s", timeout)
			}
			return "", res.err
		}
		return res.response, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("send timeout after %s", timeout)
		}
		return "", ctx.Err()
	}
}

func isTimeout(err error) bool {
	return err != nil && (errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout"))
}
