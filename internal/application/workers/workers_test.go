package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crewd/crewd/internal/application/jobs"
	"github.com/crewd/crewd/pkg/domain"
	"github.com/crewd/crewd/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTransport counts server creations and hands out configurable fakes.
type fakeTransport struct {
	createCalls atomic.Int64
	createDelay time.Duration
	createErr   error
	client      *fakeClient
}

func (t *fakeTransport) CreateServer(ctx context.Context, cfg ports.ServerConfig) (ports.SessionClient, ports.ServerHandle, error) {
	t.createCalls.Add(1)
	if t.createDelay > 0 {
		select {
		case <-time.After(t.createDelay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if t.createErr != nil {
		return nil, nil, t.createErr
	}
	client := t.client
	if client == nil {
		client = &fakeClient{response: "ok"}
	}
	return client, &fakeServer{url: "fake://" + cfg.Model}, nil
}

type fakeClient struct {
	mu          sync.Mutex
	response    string
	promptErr   error
	promptDelay time.Duration
	prompts     []string
}

func (c *fakeClient) CreateSession(ctx context.Context) (string, error) {
	return "session-1", nil
}

func (c *fakeClient) Prompt(ctx context.Context, sessionID, message string, attachments []string) (string, error) {
	if c.promptDelay > 0 {
		select {
		case <-time.After(c.promptDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.mu.Lock()
	c.prompts = append(c.prompts, message)
	c.mu.Unlock()
	if c.promptErr != nil {
		return "", c.promptErr
	}
	return c.response, nil
}

func (c *fakeClient) PromptNoReply(ctx context.Context, sessionID, message string) error {
	return nil
}

type fakeServer struct {
	url    string
	closed atomic.Bool
}

func (s *fakeServer) URL() string { return s.url }

func (s *fakeServer) Close() error {
	s.closed.Store(true)
	return nil
}

func testProfile(id string) domain.WorkerProfile {
	return domain.WorkerProfile{
		ID:      id,
		Name:    "Test " + id,
		Model:   "anthropic/claude-3-5-sonnet-20241022",
		Purpose: "testing",
	}
}

func newTestStack(transport ports.Transport) (*Registry, *Spawner, *Dispatcher) {
	logger := zap.NewNop()
	registry := NewRegistry(nil, logger)
	spawner := NewSpawner(SpawnerConfig{
		Registry:  registry,
		Transport: transport,
		Logger:    logger,
	})
	dispatcher := NewDispatcher(registry, nil, logger)
	return registry, spawner, dispatcher
}

func newTestManager(transport ports.Transport, profiles ...domain.WorkerProfile) *Manager {
	logger := zap.NewNop()
	registry, spawner, dispatcher := newTestStack(transport)
	return NewManager(ManagerConfig{
		Registry:   registry,
		Spawner:    spawner,
		Dispatcher: dispatcher,
		Jobs:       jobs.NewRegistry(nil, nil, logger),
		Profiles:   profiles,
		Logger:     logger,
	})
}

func TestSpawnRegistersReadyWorker(t *testing.T) {
	transport := &fakeTransport{}
	registry, spawner, _ := newTestStack(transport)

	inst, err := spawner.Spawn(context.Background(), testProfile("backend"))
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerStatusReady, inst.Status)
	assert.Equal(t, "anthropic/claude-3-5-sonnet-20241022", inst.ResolvedModel)
	assert.Equal(t, "session-1", inst.SessionID)
	assert.NotEmpty(t, inst.ServerURL)

	got, ok := registry.Get("backend")
	require.True(t, ok)
	assert.Equal(t, domain.WorkerStatusReady, got.Status)
}

func TestSpawnReusesExistingInstance(t *testing.T) {
	transport := &fakeTransport{}
	_, spawner, _ := newTestStack(transport)

	first, err := spawner.Spawn(context.Background(), testProfile("backend"))
	require.NoError(t, err)

	second, err := spawner.Spawn(context.Background(), testProfile("backend"))
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, int64(1), transport.createCalls.Load(), "an existing worker must be reused, not restarted")
}

func TestConcurrentSpawnStartsOneServer(t *testing.T) {
	transport := &fakeTransport{createDelay: 30 * time.Millisecond}
	_, spawner, _ := newTestStack(transport)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = spawner.Spawn(context.Background(), testProfile("backend"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, int64(1), transport.createCalls.Load(), "concurrent spawns for one id must share a single attempt")
}

func TestSendDuringSpawnIsSafe(t *testing.T) {
	transport := &fakeTransport{createDelay: 30 * time.Millisecond}
	_, spawner, dispatcher := newTestStack(transport)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := spawner.Spawn(context.Background(), testProfile("backend"))
		assert.NoError(t, err)
	}()

	// Hammer the dispatch path while the spawn is completing. Before the
	// worker is ready the sends fail typed; none of them may observe a
	// half-written session.
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		result := dispatcher.Send(context.Background(), "backend", "ping", domain.SendOptions{TimeoutMs: 10})
		if !result.Success {
			assert.NotEmpty(t, result.Error)
		}
	}
	<-done

	result := dispatcher.Send(context.Background(), "backend", "ping", domain.SendOptions{})
	assert.True(t, result.Success)
}

func TestSpawnFailureLeavesErrorInstance(t *testing.T) {
	transport := &fakeTransport{createErr: fmt.Errorf("bind: address already in use")}
	registry, spawner, _ := newTestStack(transport)

	_, err := spawner.Spawn(context.Background(), testProfile("backend"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")

	// The failed instance stays visible for inspection.
	got, ok := registry.Get("backend")
	require.True(t, ok)
	assert.Equal(t, domain.WorkerStatusError, got.Status)
	assert.Contains(t, got.LastError, "address already in use")
}

func TestSpawnAfterFailureRequiresStop(t *testing.T) {
	transport := &fakeTransport{createErr: fmt.Errorf("bind: address already in use")}
	registry, spawner, _ := newTestStack(transport)

	_, err := spawner.Spawn(context.Background(), testProfile("backend"))
	require.Error(t, err)

	// The error-state instance is reused as-is, not retried.
	inst, err := spawner.Spawn(context.Background(), testProfile("backend"))
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerStatusError, inst.Status)
	assert.Equal(t, int64(1), transport.createCalls.Load())

	// Stopping the failed worker frees the id for a fresh attempt.
	_, ok := registry.remove("backend")
	require.True(t, ok)
	transport.createErr = nil

	inst, err = spawner.Spawn(context.Background(), testProfile("backend"))
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerStatusReady, inst.Status)
	assert.Equal(t, int64(2), transport.createCalls.Load())
}

func TestSpawnSymbolicModelWithoutResolver(t *testing.T) {
	transport := &fakeTransport{}
	registry, spawner, _ := newTestStack(transport)

	profile := testProfile("backend")
	profile.Model = "auto:smart"

	_, err := spawner.Spawn(context.Background(), profile)
	require.ErrorIs(t, err, domain.ErrModelUnresolved)
	assert.Equal(t, int64(0), transport.createCalls.Load())

	got, ok := registry.Get("backend")
	require.True(t, ok)
	assert.Equal(t, domain.WorkerStatusError, got.Status)
}

func TestSendReturnsResponse(t *testing.T) {
	client := &fakeClient{response: "the answer"}
	transport := &fakeTransport{client: client}
	registry, spawner, dispatcher := newTestStack(transport)

	_, err := spawner.Spawn(context.Background(), testProfile("backend"))
	require.NoError(t, err)

	result := dispatcher.Send(context.Background(), "backend", "question", domain.SendOptions{})
	assert.True(t, result.Success)
	assert.Equal(t, "the answer", result.Response)
	assert.Empty(t, result.Error)

	got, _ := registry.Get("backend")
	assert.Equal(t, domain.WorkerStatusReady, got.Status)
	require.NotNil(t, got.LastResult)
	assert.Equal(t, "the answer", got.LastResult.Response)
}

func TestSendToMissingWorker(t *testing.T) {
	_, _, dispatcher := newTestStack(&fakeTransport{})

	result := dispatcher.Send(context.Background(), "ghost", "hello", domain.SendOptions{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "worker not found: ghost")
}

func TestSendTimeoutFlipsWorkerBackToReady(t *testing.T) {
	client := &fakeClient{response: "late", promptDelay: 500 * time.Millisecond}
	transport := &fakeTransport{client: client}
	registry, spawner, dispatcher := newTestStack(transport)

	_, err := spawner.Spawn(context.Background(), testProfile("backend"))
	require.NoError(t, err)

	result := dispatcher.Send(context.Background(), "backend", "slow question", domain.SendOptions{TimeoutMs: 50})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout")

	// A timed-out send is a budget problem, not a broken worker.
	got, _ := registry.Get("backend")
	assert.Equal(t, domain.WorkerStatusReady, got.Status)
	assert.Contains(t, got.LastWarning, "timeout")
}

func TestSendTransportErrorMarksWorkerError(t *testing.T) {
	client := &fakeClient{promptErr: fmt.Errorf("connection reset by peer")}
	transport := &fakeTransport{client: client}
	registry, spawner, dispatcher := newTestStack(transport)

	_, err := spawner.Spawn(context.Background(), testProfile("backend"))
	require.NoError(t, err)

	result := dispatcher.Send(context.Background(), "backend", "question", domain.SendOptions{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "connection reset")

	got, _ := registry.Get("backend")
	assert.Equal(t, domain.WorkerStatusError, got.Status)
}

func TestStopWorkerRemovesInstance(t *testing.T) {
	transport := &fakeTransport{}
	manager := newTestManager(transport)

	_, err := manager.Spawn(context.Background(), testProfile("backend"))
	require.NoError(t, err)

	assert.True(t, manager.StopWorker("backend"))

	_, ok := manager.GetWorker("backend")
	assert.False(t, ok)

	// Stopping again, or stopping an unknown id, is not an error.
	assert.False(t, manager.StopWorker("backend"))
	assert.False(t, manager.StopWorker("never-existed"))
}

func TestSpawnByIDUsesCatalog(t *testing.T) {
	manager := newTestManager(&fakeTransport{}, testProfile("backend"))

	inst, err := manager.SpawnByID(context.Background(), "backend")
	require.NoError(t, err)
	assert.Equal(t, "backend", inst.Profile.ID)

	_, err = manager.SpawnByID(context.Background(), "unknown")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestSendTrackedCompletesJob(t *testing.T) {
	client := &fakeClient{response: "done"}
	manager := newTestManager(&fakeTransport{client: client})

	_, err := manager.Spawn(context.Background(), testProfile("backend"))
	require.NoError(t, err)

	result := manager.SendTracked(context.Background(), "backend", "do it", domain.SendOptions{From: "cli"})
	require.True(t, result.Success)
	require.NotEmpty(t, result.JobID)

	job, err := manager.Jobs().Get(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Equal(t, "done", job.ResponseText)
	assert.Equal(t, "cli", job.RequestedBy)
}

func TestSendTrackedRecordsFailure(t *testing.T) {
	manager := newTestManager(&fakeTransport{})

	result := manager.SendTracked(context.Background(), "ghost", "hello", domain.SendOptions{})
	require.False(t, result.Success)
	require.NotEmpty(t, result.JobID)

	job, err := manager.Jobs().Get(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "worker not found")
}

func TestWorkflowDepsResolveWorker(t *testing.T) {
	manager := newTestManager(&fakeTransport{}, testProfile("backend"))
	deps := manager.WorkflowDeps()

	// Not registered, no auto-spawn.
	_, err := deps.ResolveWorker(context.Background(), "backend", false)
	assert.ErrorIs(t, err, domain.ErrWorkerNotFound)

	// Auto-spawn from the catalog.
	id, err := deps.ResolveWorker(context.Background(), "backend", true)
	require.NoError(t, err)
	assert.Equal(t, "backend", id)

	// Already registered, no spawn needed.
	id, err = deps.ResolveWorker(context.Background(), "backend", false)
	require.NoError(t, err)
	assert.Equal(t, "backend", id)

	// Unknown profile cannot auto-spawn.
	_, err = deps.ResolveWorker(context.Background(), "ghost", true)
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestWorkerLifecycleEndToEnd(t *testing.T) {
	client := &fakeClient{response: "reviewed"}
	manager := newTestManager(&fakeTransport{client: client}, testProfile("reviewer"))

	inst, err := manager.SpawnByID(context.Background(), "reviewer")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerStatusReady, inst.Status)

	result := manager.Send(context.Background(), "reviewer", "review this", domain.SendOptions{})
	require.True(t, result.Success)
	assert.Equal(t, "reviewed", result.Response)

	require.True(t, manager.StopWorker("reviewer"))
	_, ok := manager.GetWorker("reviewer")
	assert.False(t, ok)

	// A send after stop fails typed, it does not panic.
	result = manager.Send(context.Background(), "reviewer", "still there?", domain.SendOptions{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "worker not found")
}
