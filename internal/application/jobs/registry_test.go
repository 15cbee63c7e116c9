package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(opts ...Option) *Registry {
	return NewRegistry(nil, nil, zap.NewNop(), opts...)
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry()

	job := r.Create(CreateInput{WorkerID: "backend", Message: "review the diff", RequestedBy: "cli"})
	require.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusRunning, job.Status)
	assert.Equal(t, "backend", job.WorkerID)

	got, err := r.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Nil(t, got.FinishedAt)
}

func TestGetUnknownJob(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestSetResultIsTerminalOnce(t *testing.T) {
	r := newTestRegistry()
	job := r.Create(CreateInput{WorkerID: "backend", Message: "task"})

	r.SetResult(job.ID, "done", nil)

	got, err := r.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, got.Status)
	assert.Equal(t, "done", got.ResponseText)
	require.NotNil(t, got.FinishedAt)

	// Later completion signals must not flip a terminal job.
	r.SetError(job.ID, "boom", nil)
	r.Cancel(job.ID)

	got, err = r.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, got.Status)
	assert.Equal(t, "done", got.ResponseText)
	assert.Empty(t, got.Error)
}

func TestSetErrorRecordsFailure(t *testing.T) {
	r := newTestRegistry()
	job := r.Create(CreateInput{WorkerID: "backend", Message: "task"})

	r.SetError(job.ID, "send timeout after 2m0s", nil)

	got, err := r.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "send timeout after 2m0s", got.Error)
	assert.Empty(t, got.ResponseText)
}

func TestCompleteOnUnknownJobIsNoop(t *testing.T) {
	r := newTestRegistry()

	// Must not panic or create an entry.
	r.SetResult("missing", "ok", nil)
	r.SetError("missing", "err", nil)
	r.Cancel("missing")
	assert.Equal(t, 0, r.Size())
}

func TestAwaitResolvesOnCompletion(t *testing.T) {
	r := newTestRegistry()
	job := r.Create(CreateInput{WorkerID: "backend", Message: "task"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.SetResult(job.ID, "finished", nil)
	}()

	got, err := r.Await(context.Background(), job.ID, AwaitOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, got.Status)
	assert.Equal(t, "finished", got.ResponseText)
}

func TestAwaitTerminalJobResolvesImmediately(t *testing.T) {
	r := newTestRegistry()
	job := r.Create(CreateInput{WorkerID: "backend", Message: "task"})
	r.SetError(job.ID, "failed", nil)

	start := time.Now()
	got, err := r.Await(context.Background(), job.ID, AwaitOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAwaitUnknownJobFailsImmediately(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Await(context.Background(), "missing", AwaitOptions{Timeout: time.Second})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestAwaitTimeoutLeavesJobRunning(t *testing.T) {
	r := newTestRegistry()
	job := r.Create(CreateInput{WorkerID: "backend", Message: "task"})

	_, err := r.Await(context.Background(), job.ID, AwaitOptions{Timeout: 30 * time.Millisecond})
	require.ErrorIs(t, err, domain.ErrAwaitTimeout)
	assert.Contains(t, err.Error(), "timeout")

	// The await deadline is independent of the job itself.
	got, err := r.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)

	// A later completion still works and resolves fresh waiters.
	r.SetResult(job.ID, "late but fine", nil)
	got, err = r.Await(context.Background(), job.ID, AwaitOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "late but fine", got.ResponseText)
}

func TestAwaitContextCancellation(t *testing.T) {
	r := newTestRegistry()
	job := r.Create(CreateInput{WorkerID: "backend", Message: "task"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.Await(ctx, job.ID, AwaitOptions{Timeout: time.Second})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwaitFanOut(t *testing.T) {
	r := newTestRegistry()
	job := r.Create(CreateInput{WorkerID: "backend", Message: "task"})

	const waiters = 5
	var wg sync.WaitGroup
	results := make([]domain.WorkerJob, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Await(context.Background(), job.ID, AwaitOptions{Timeout: time.Second})
		}(i)
	}

	time.Sleep(30 * time.Millisecond)
	r.SetResult(job.ID, "broadcast", nil)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "broadcast", results[i].ResponseText)
	}
}

func TestListFilterAndOrder(t *testing.T) {
	r := newTestRegistry()

	a := r.Create(CreateInput{WorkerID: "backend", Message: "first"})
	time.Sleep(2 * time.Millisecond)
	b := r.Create(CreateInput{WorkerID: "frontend", Message: "second"})
	time.Sleep(2 * time.Millisecond)
	c := r.Create(CreateInput{WorkerID: "backend", Message: "third"})

	all := r.List(ListFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, c.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)
	assert.Equal(t, a.ID, all[2].ID)

	backend := r.List(ListFilter{WorkerID: "backend"})
	require.Len(t, backend, 2)
	assert.Equal(t, c.ID, backend[0].ID)
	assert.Equal(t, a.ID, backend[1].ID)

	limited := r.List(ListFilter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, c.ID, limited[0].ID)
}

func TestPruneEnforcesCap(t *testing.T) {
	r := newTestRegistry(WithMaxJobs(5))

	var oldest domain.WorkerJob
	for i := 0; i < 8; i++ {
		job := r.Create(CreateInput{WorkerID: "backend", Message: fmt.Sprintf("job %d", i)})
		if i == 0 {
			oldest = job
		}
		r.SetResult(job.ID, "ok", nil)
	}

	assert.Equal(t, 5, r.Size())

	// The oldest terminal jobs are evicted first.
	_, err := r.Get(oldest.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestPruneSkipsRunningJobs(t *testing.T) {
	r := newTestRegistry(WithMaxJobs(3))

	running := make([]domain.WorkerJob, 0, 5)
	for i := 0; i < 5; i++ {
		running = append(running, r.Create(CreateInput{WorkerID: "backend", Message: "busy"}))
	}

	// Over cap, but nothing is terminal so nothing is evicted.
	assert.Equal(t, 5, r.Size())
	for _, job := range running {
		_, err := r.Get(job.ID)
		assert.NoError(t, err)
	}
}

func TestPruneNeverEvictsAwaitedJob(t *testing.T) {
	r := newTestRegistry(WithRetention(time.Nanosecond), WithMaxJobs(1))

	awaited := r.Create(CreateInput{WorkerID: "backend", Message: "watched"})
	done := make(chan struct{})
	go func() {
		defer close(done)
		got, err := r.Await(context.Background(), awaited.ID, AwaitOptions{Timeout: 2 * time.Second})
		assert.NoError(t, err)
		assert.Equal(t, "still here", got.ResponseText)
	}()

	// Let the waiter register before generating prune pressure.
	time.Sleep(20 * time.Millisecond)

	r.SetResult(awaited.ID, "still here", nil)
	<-done
}

func TestRetentionPrunesOldTerminalJobs(t *testing.T) {
	r := newTestRegistry(WithRetention(time.Nanosecond))

	job := r.Create(CreateInput{WorkerID: "backend", Message: "ephemeral"})
	r.SetResult(job.ID, "ok", nil)
	time.Sleep(time.Millisecond)

	// Any insertion triggers a prune pass.
	r.Create(CreateInput{WorkerID: "backend", Message: "trigger"})

	_, err := r.Get(job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestAttachReport(t *testing.T) {
	r := newTestRegistry()
	job := r.Create(CreateInput{WorkerID: "backend", Message: "task"})
	r.SetResult(job.ID, "ok", nil)

	err := r.AttachReport(job.ID, &domain.JobReport{
		Summary: "all checks green",
		Issues:  []string{"flaky test in ci"},
	})
	require.NoError(t, err)

	got, err := r.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Report)
	assert.Equal(t, "all checks green", got.Report.Summary)
	assert.Equal(t, []string{"flaky test in ci"}, got.Report.Issues)

	// Merge keeps existing fields the new report leaves empty.
	err = r.AttachReport(job.ID, &domain.JobReport{Details: "took two passes"})
	require.NoError(t, err)

	got, err = r.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "all checks green", got.Report.Summary)
	assert.Equal(t, "took two passes", got.Report.Details)

	err = r.AttachReport("missing", &domain.JobReport{Summary: "x"})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
