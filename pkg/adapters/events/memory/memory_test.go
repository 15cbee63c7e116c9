package memory

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewEventBus()
	received := make(chan domain.Event, 1)

	_, err := bus.Subscribe(context.Background(), "worker.events", func(_ context.Context, event domain.Event) error {
		received <- event
		return nil
	})
	require.NoError(t, err)

	err = bus.Publish(context.Background(), "worker.events", domain.Event{
		ID:       "e1",
		Type:     domain.EventTypeWorkerReady,
		WorkerID: "backend",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "e1", event.ID)
		assert.Equal(t, "backend", event.WorkerID)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestPublishIsScopedToTopic(t *testing.T) {
	bus := NewEventBus()
	received := make(chan domain.Event, 1)

	_, err := bus.Subscribe(context.Background(), "job.events", func(_ context.Context, event domain.Event) error {
		received <- event
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "worker.events", domain.Event{ID: "e1"}))

	select {
	case <-received:
		t.Fatal("event leaked across topics")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeDetachesHandler(t *testing.T) {
	bus := NewEventBus()
	received := make(chan domain.Event, 1)

	unsubscribe, err := bus.Subscribe(context.Background(), "worker.events", func(_ context.Context, event domain.Event) error {
		received <- event
		return nil
	})
	require.NoError(t, err)

	unsubscribe()
	unsubscribe() // idempotent

	require.NoError(t, bus.Publish(context.Background(), "worker.events", domain.Event{ID: "e1"}))

	select {
	case <-received:
		t.Fatal("handler fired after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeReleasesWatcher(t *testing.T) {
	bus := NewEventBus()
	baseline := runtime.NumGoroutine()

	// context.Background is never cancelled; the watcher goroutines must
	// still exit once the handles run.
	unsubscribes := make([]func(), 0, 50)
	for i := 0; i < 50; i++ {
		unsubscribe, err := bus.Subscribe(context.Background(), "worker.events", func(context.Context, domain.Event) error {
			return nil
		})
		require.NoError(t, err)
		unsubscribes = append(unsubscribes, unsubscribe)
	}

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline+5
	}, time.Second, 10*time.Millisecond)
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := NewEventBus()
	received := make(chan domain.Event, 1)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := bus.Subscribe(ctx, "worker.events", func(_ context.Context, event domain.Event) error {
		received <- event
		return nil
	})
	require.NoError(t, err)

	cancel()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "worker.events", domain.Event{ID: "e1"}))

	select {
	case <-received:
		t.Fatal("handler fired after its context ended")
	case <-time.After(50 * time.Millisecond):
	}
}
