package processing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/insight-api/internal/invoker"
)

func newTestScheduler(inv invoker.Invoker, cfg Config, clock Clock) (*Scheduler, *Queue) {
	logger := setupTestLogger()
	queue := NewQueue(cfg.MaxRetries, clock, logger)
	correlator := NewCorrelator(queue.lookupResult, cfg.AwaitTimeout, logger)
	dispatcher := NewDispatcher(queue, inv, correlator, nil, nil, cfg, clock, logger)
	return NewScheduler(queue, dispatcher, correlator, cfg, clock, logger), queue
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(succeedingInvoker, fastConfig(), nil)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerRunning)

	s.Stop()
	assert.False(t, s.Running())
	s.Stop()

	// Restart after stop is allowed
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestScheduler_DrainsEnqueuedWork(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	// A long tick proves enqueue wakes the loop
	cfg.TickInterval = time.Hour
	s, queue := newTestScheduler(succeedingInvoker, cfg, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	for i := 0; i < 12; i++ {
		queue.Enqueue(newRequest(PriorityMedium))
	}

	require.Eventually(t, func() bool {
		return queue.StatusSnapshot().Completed == 12
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_PicksUpWorkEnqueuedBeforeStart(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.TickInterval = time.Hour
	s, queue := newTestScheduler(succeedingInvoker, cfg, nil)
	id := queue.Enqueue(newRequest(PriorityMedium))
	<-queue.Wake()

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		item, _ := queue.Get(id)
		return item.Status == StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_RetriesAfterBackoff(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	inv := invoker.Func(func(ctx context.Context, in invoker.Invocation) (*invoker.InvocationResult, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("rate limited")
		}
		return okResult(), nil
	})
	cfg := fastConfig()
	cfg.TickInterval = time.Hour
	s, queue := newTestScheduler(inv, cfg, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	id := queue.Enqueue(newRequest(PriorityMedium))

	require.Eventually(t, func() bool {
		item, _ := queue.Get(id)
		return item.Status == StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	item, _ := queue.Get(id)
	assert.Equal(t, 2, item.RetryCount)
	assert.Equal(t, int32(3), calls.Load())
}

func TestScheduler_SurvivesPanickingInvoker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	inv := invoker.Func(func(ctx context.Context, in invoker.Invocation) (*invoker.InvocationResult, error) {
		if calls.Add(1) == 1 {
			panic("invoker bug")
		}
		return okResult(), nil
	})
	s, queue := newTestScheduler(inv, fastConfig(), nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	first := queue.Enqueue(newRequest(PriorityMedium))
	second := queue.Enqueue(newRequest(PriorityMedium))

	require.Eventually(t, func() bool {
		a, _ := queue.Get(first)
		b, _ := queue.Get(second)
		return a.Status == StatusCompleted && b.Status == StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Running())
}

func TestScheduler_PurgesAfterDrain(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cfg := fastConfig()
	cfg.Retention = 10 * time.Minute
	s, queue := newTestScheduler(succeedingInvoker, cfg, clock)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	old := queue.Enqueue(newRequest(PriorityMedium))
	require.Eventually(t, func() bool {
		item, _ := queue.Get(old)
		return item.Status == StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	clock.Advance(11 * time.Minute)

	require.Eventually(t, func() bool {
		return !queue.Contains(old)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_StopWaitsForInFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var finished atomic.Bool
	inv := invoker.Func(func(ctx context.Context, in invoker.Invocation) (*invoker.InvocationResult, error) {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return nil, ctx.Err()
	})
	s, queue := newTestScheduler(inv, fastConfig(), nil)
	require.NoError(t, s.Start(context.Background()))
	queue.Enqueue(newRequest(PriorityMedium))

	<-started
	s.Stop()
	assert.True(t, finished.Load())
}
