package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/crewd/crewd/pkg/ports"
	"go.uber.org/zap"
)

// Default run limits, overridable per run.
const (
	DefaultMaxSteps      = 12
	DefaultMaxTaskChars  = 20000
	DefaultMaxCarryChars = 24000
	DefaultStepTimeout   = 5 * time.Minute
)

// ResolveWorkerFunc resolves a step's declared worker id to a live worker
// id, optionally spawning it. Injected so the engine stays decoupled from
// the concrete worker manager.
type ResolveWorkerFunc func(ctx context.Context, workerID string, autoSpawn bool) (string, error)

// SendToWorkerFunc dispatches a prompt to a worker.
type SendToWorkerFunc func(ctx context.Context, workerID, prompt string, opts domain.SendOptions) domain.SendResult

// RunDeps are the injected collaborators for one run.
type RunDeps struct {
	ResolveWorker ResolveWorkerFunc
	SendToWorker  SendToWorkerFunc
}

// Limits bound a single workflow run. Zero values fall back to defaults.
type Limits struct {
	MaxSteps       int
	MaxTaskChars   int
	MaxCarryChars  int
	PerStepTimeout time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxSteps <= 0 {
		l.MaxSteps = DefaultMaxSteps
	}
	if l.MaxTaskChars <= 0 {
		l.MaxTaskChars = DefaultMaxTaskChars
	}
	if l.MaxCarryChars <= 0 {
		l.MaxCarryChars = DefaultMaxCarryChars
	}
	if l.PerStepTimeout <= 0 {
		l.PerStepTimeout = DefaultStepTimeout
	}
	return l
}

// RunInput describes one workflow run.
type RunInput struct {
	WorkflowID  string
	Task        string
	Limits      Limits
	Attachments []string
	AutoSpawn   bool
}

// Engine holds named workflow definitions and executes them step by step,
// carrying accumulated output between steps.
type Engine struct {
	mu      sync.RWMutex
	defs    map[string]*domain.WorkflowDefinition
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// NewEngine creates a workflow engine. The metrics collector may be nil.
func NewEngine(metrics ports.MetricsCollector, logger *zap.Logger) *Engine {
	return &Engine{
		defs:    make(map[string]*domain.WorkflowDefinition),
		metrics: metrics,
		logger:  logger,
	}
}

// Register adds or replaces a workflow definition.
func (e *Engine) Register(def domain.WorkflowDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", def.ID)
	}
	for i, step := range def.Steps {
		if step.WorkerID == "" {
			return fmt.Errorf("workflow %s step %d has no worker id", def.ID, i)
		}
		if step.Prompt == "" {
			return fmt.Errorf("workflow %s step %d has no prompt", def.ID, i)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	copied := def
	copied.Steps = append([]domain.WorkflowStepDefinition(nil), def.Steps...)
	e.defs[def.ID] = &copied
	return nil
}

// Get returns a workflow definition by id.
func (e *Engine) Get(id string) (domain.WorkflowDefinition, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	def, ok := e.defs[id]
	if !ok {
		return domain.WorkflowDefinition{}, fmt.Errorf("%w: %s", domain.ErrUnknownWorkflow, id)
	}
	out := *def
	out.Steps = append([]domain.WorkflowStepDefinition(nil), def.Steps...)
	return out, nil
}

// List returns all definitions sorted by id for determinism.
func (e *Engine) List() []domain.WorkflowDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.WorkflowDefinition, 0, len(e.defs))
	for _, def := range e.defs {
		copied := *def
		copied.Steps = append([]domain.WorkflowStepDefinition(nil), def.Steps...)
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run executes a workflow. Pre-flight validation failures (unknown
// workflow, oversized task, too many steps) return an error before any
// step runs. A failing step is recorded in the result and halts the run;
// it is not returned as an error.
func (e *Engine) Run(ctx context.Context, in RunInput, deps RunDeps) (*domain.WorkflowRunResult, error) {
	def, err := e.Get(in.WorkflowID)
	if err != nil {
		return nil, err
	}
	limits := in.Limits.withDefaults()

	if len(in.Task) > limits.MaxTaskChars {
		return nil, fmt.Errorf("task length %d exceeds limit %d", len(in.Task), limits.MaxTaskChars)
	}
	if len(def.Steps) > limits.MaxSteps {
		return nil, fmt.Errorf("workflow %s has %d steps, limit is %d", def.ID, len(def.Steps), limits.MaxSteps)
	}

	e.logger.Info("workflow run started",
		zap.String("workflow_id", def.ID),
		zap.Int("steps", len(def.Steps)))

	result := &domain.WorkflowRunResult{
		WorkflowID: def.ID,
		Name:       def.Name,
		StartedAt:  time.Now(),
	}

	carry := ""
	for i, step := range def.Steps {
		stepStart := time.Now()

		workerID, err := deps.ResolveWorker(ctx, step.WorkerID, in.AutoSpawn)
		if err != nil {
			result.Steps = append(result.Steps, failedStep(step, stepStart,
				fmt.Sprintf("resolve worker %s: %v", step.WorkerID, err)))
			e.recordStep(domain.StepStatusError, stepStart)
			break
		}

		prompt := expandTemplate(step.Prompt, in.Task, carry)

		opts := domain.SendOptions{TimeoutMs: limits.PerStepTimeout.Milliseconds()}
		if i == 0 {
			opts.Attachments = in.Attachments
		}
		sendResult := deps.SendToWorker(ctx, workerID, prompt, opts)
		finished := time.Now()

		if !sendResult.Success {
			result.Steps = append(result.Steps, domain.WorkflowStepResult{
				ID:         step.ID,
				Title:      step.Title,
				WorkerID:   workerID,
				Status:     domain.StepStatusError,
				Error:      sendResult.Error,
				StartedAt:  stepStart,
				FinishedAt: finished,
				DurationMs: finished.Sub(stepStart).Milliseconds(),
			})
			e.recordStep(domain.StepStatusError, stepStart)
			e.logger.Warn("workflow step failed, halting run",
				zap.String("workflow_id", def.ID),
				zap.String("step_id", step.ID),
				zap.String("error", sendResult.Error))
			break
		}

		result.Steps = append(result.Steps, domain.WorkflowStepResult{
			ID:         step.ID,
			Title:      step.Title,
			WorkerID:   workerID,
			Status:     domain.StepStatusSuccess,
			Response:   sendResult.Response,
			StartedAt:  stepStart,
			FinishedAt: finished,
			DurationMs: finished.Sub(stepStart).Milliseconds(),
		})
		e.recordStep(domain.StepStatusSuccess, stepStart)

		if step.Carry {
			carry = appendCarry(carry, step.Title, sendResult.Response, limits.MaxCarryChars)
		}
	}

	result.FinishedAt = time.Now()

	status := "succeeded"
	if !result.Succeeded() {
		status = "failed"
	}
	if e.metrics != nil {
		e.metrics.RecordWorkflowRun(status, result.FinishedAt.Sub(result.StartedAt))
	}
	e.logger.Info("workflow run finished",
		zap.String("workflow_id", def.ID),
		zap.String("status", status),
		zap.Int("steps_executed", len(result.Steps)))

	return result, nil
}

func (e *Engine) recordStep(status domain.StepStatus, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordWorkflowStep(string(status), time.Since(start))
	}
}

func failedStep(step domain.WorkflowStepDefinition, start time.Time, msg string) domain.WorkflowStepResult {
	finished := time.Now()
	return domain.WorkflowStepResult{
		ID:         step.ID,
		Title:      step.Title,
		WorkerID:   step.WorkerID,
		Status:     domain.StepStatusError,
		Error:      msg,
		StartedAt:  start,
		FinishedAt: finished,
		DurationMs: finished.Sub(start).Milliseconds(),
	}
}

// expandTemplate substitutes {task} and {carry} with a naive replace-all.
// No escaping, no recursive expansion. {carry} is left as literal text
// when the carry buffer is empty for that step.
func expandTemplate(template, task, carry string) string {
	out := strings.ReplaceAll(template, "{task}", task)
	if carry != "" {
		out = strings.ReplaceAll(out, "{carry}", carry)
	}
	return out
}

// appendCarry appends a labeled block for a completed step and truncates
// the buffer to its last maxChars characters, keeping the most recent
// content.
func appendCarry(carry, title, response string, maxChars int) string {
	block := fmt.Sprintf("### %s\n%s", title, response)
	if carry == "" {
		carry = block
	} else {
		carry = carry + "\n\n" + block
	}
	if len(carry) > maxChars {
		carry = carry[len(carry)-maxChars:]
	}
	return carry
}
