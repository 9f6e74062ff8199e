package processing

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// minRearm keeps the scheduler from spinning when a ready item could not be
// claimed on the last pass
const minRearm = 5 * time.Millisecond

// Scheduler is the single control loop that drains ready work into the
// dispatcher and runs maintenance after every drain cycle. It wakes on a
// ticker, on queue signals (enqueue, slot release) and when the earliest
// retry backoff expires.
type Scheduler struct {
	queue      *Queue
	dispatcher *Dispatcher
	correlator *Correlator
	clock      Clock
	logger     *slog.Logger

	tickInterval     time.Duration
	idlePollInterval time.Duration
	retention        time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a Scheduler. It does not start the loop.
func NewScheduler(
	queue *Queue,
	dispatcher *Dispatcher,
	correlator *Correlator,
	config Config,
	clock Clock,
	logger *slog.Logger,
) *Scheduler {
	config = config.withDefaults(logger)
	if clock == nil {
		clock = SystemClock()
	}

	return &Scheduler{
		queue:            queue,
		dispatcher:       dispatcher,
		correlator:       correlator,
		clock:            clock,
		logger:           logger.With("component", "scheduler"),
		tickInterval:     config.TickInterval,
		idlePollInterval: config.IdlePollInterval,
		retention:        config.Retention,
	}
}

// Start launches the loop. Invocations started by the loop receive a
// context derived from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("scheduler starting",
		"tick_interval", s.tickInterval,
		"idle_poll_interval", s.idlePollInterval,
		"retention", s.retention)

	go s.loop(ctx, s.done)
	return nil
}

// Stop cancels the loop and waits for it and all in-flight invocations to
// finish. Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.dispatcher.Wait()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	// Fire immediately so work enqueued before Start is picked up
	rearm := time.NewTimer(0)
	defer rearm.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.queue.Wake():
		case <-rearm.C:
		}

		s.drain(ctx)
		s.maintain()

		if d, ok := s.nextWait(); ok {
			rearm.Reset(d)
		} else {
			rearm.Stop()
		}
	}
}

// drain dispatches while ready items and free slots exist.
func (s *Scheduler) drain(ctx context.Context) {
	for ctx.Err() == nil && s.dispatcher.FreeSlots() > 0 && len(s.queue.SelectReady(1)) > 0 {
		n, err := s.runBatch(ctx)
		if err != nil {
			s.logger.Error("dispatch round failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
	}
}

// runBatch isolates the loop from panics in a dispatch round.
func (s *Scheduler) runBatch(ctx context.Context) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered from panic in dispatch round",
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("dispatch round panicked: %v", r)
		}
	}()
	return s.dispatcher.RunBatch(ctx)
}

// maintain purges expired terminal items and rejects their orphaned waiters.
func (s *Scheduler) maintain() int {
	return purgeExpired(s.queue, s.correlator, s.retention)
}

// nextWait reports how long to sleep before the next backoff expiry. The
// second return value is false when nothing is pending.
func (s *Scheduler) nextWait() (time.Duration, bool) {
	next, ok := s.queue.NextReadyAt()
	if !ok {
		return 0, false
	}
	if s.dispatcher.FreeSlots() <= 0 {
		// A finishing invocation signals the queue
		return s.idlePollInterval, true
	}

	d := next.Sub(s.clock.Now())
	return min(max(d, minRearm), s.idlePollInterval), true
}

func purgeExpired(queue *Queue, correlator *Correlator, retention time.Duration) int {
	purged := queue.PurgeTerminalOlderThan(retention)
	if purged > 0 && correlator != nil {
		correlator.DropOrphans(queue.Contains)
	}
	return purged
}
