package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/insight-api/internal/events"
	"github.com/phrazzld/insight-api/internal/invoker"
)

// Service is the public facade of the processing core. It owns one queue,
// dispatcher, scheduler and correlator.
type Service struct {
	config     Config
	queue      *Queue
	correlator *Correlator
	dispatcher *Dispatcher
	scheduler  *Scheduler
	emitter    events.EventEmitter
	async      *events.AsyncEmitter
	inst       *Instrumentation
	clock      Clock
	logger     *slog.Logger

	stopped atomic.Bool
}

// ServiceOption customises a Service
type ServiceOption func(*Service)

// WithClock replaces the system clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithInstrumentation replaces the instrumentation built from the global
// OTel providers.
func WithInstrumentation(inst *Instrumentation) ServiceOption {
	return func(s *Service) { s.inst = inst }
}

// NewService creates a processing service. emitter may be nil when no
// transition sinks are needed. Events reach emitter from a background
// goroutine, so callers and invocations never wait on sink I/O.
func NewService(
	inv invoker.Invoker,
	emitter events.EventEmitter,
	config Config,
	logger *slog.Logger,
	opts ...ServiceOption,
) (*Service, error) {
	if inv == nil {
		return nil, fmt.Errorf("invoker cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Service{
		config: config.withDefaults(logger),
		clock:  SystemClock(),
		logger: logger.With("component", "processing_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.inst == nil {
		s.inst = NewInstrumentation()
	}
	if emitter != nil {
		s.async = events.NewAsyncEmitter(emitter, s.config.EventBufferSize, s.config.EventTimeout, logger)
		s.emitter = s.async
	}

	s.queue = NewQueue(s.config.MaxRetries, s.clock, logger)
	s.correlator = NewCorrelator(s.queue.lookupResult, s.config.AwaitTimeout, logger)
	s.dispatcher = NewDispatcher(s.queue, inv, s.correlator, s.emitter, s.inst, s.config, s.clock, logger)
	s.scheduler = NewScheduler(s.queue, s.dispatcher, s.correlator, s.config, s.clock, logger)

	if err := s.inst.observeQueue(s.queue); err != nil {
		s.logger.Warn("failed to register queue depth gauge", "error", err)
	}
	return s, nil
}

// Start launches the scheduler loop.
func (s *Service) Start(ctx context.Context) error {
	if s.stopped.Load() {
		return ErrServiceStopped
	}
	return s.scheduler.Start(ctx)
}

// Stop rejects new work, stops the scheduler and waits for in-flight
// invocations. Invocations interrupted by the stop go back to pending
// without using a retry. Callers still waiting on a result get
// ErrServiceStopped, and buffered events are flushed to the sinks.
func (s *Service) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	s.scheduler.Stop()
	s.dispatcher.Wait()
	s.correlator.Close(ErrServiceStopped)
	if s.async != nil {
		_ = s.async.Close()
	}
}

// Submit validates and enqueues a request without waiting for it.
func (s *Service) Submit(ctx context.Context, req ProcessingRequest) (uuid.UUID, error) {
	req, err := s.admit(req)
	if err != nil {
		return uuid.Nil, err
	}
	return s.enqueue(ctx, req), nil
}

// AwaitResult waits for the terminal result of a submitted request. A
// non-positive timeout uses the configured default.
func (s *Service) AwaitResult(ctx context.Context, id uuid.UUID, timeout time.Duration) (*ProcessingResult, error) {
	return s.correlator.Await(ctx, id, timeout)
}

// Process submits a request and waits for its result using the default
// timeout. A failed request returns its result together with an error
// wrapping ErrProcessingFailed.
func (s *Service) Process(ctx context.Context, req ProcessingRequest) (*ProcessingResult, error) {
	id, err := s.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	res, err := s.AwaitResult(ctx, id, s.config.AwaitTimeout)
	if err != nil {
		return nil, err
	}
	if res.Status == StatusFailed {
		return res, failureError(res)
	}
	return res, nil
}

// BatchProcess validates every request before enqueuing any of them, then
// waits on all of them concurrently. The first failure is returned.
func (s *Service) BatchProcess(ctx context.Context, reqs []ProcessingRequest) ([]*ProcessingResult, error) {
	valid := make([]ProcessingRequest, len(reqs))
	var errs []error
	for i, req := range reqs {
		v, err := s.admit(req)
		if err != nil {
			if errors.Is(err, ErrServiceStopped) {
				return nil, err
			}
			errs = append(errs, fmt.Errorf("request %d: %w", i, err))
			continue
		}
		valid[i] = v
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	ids := make([]uuid.UUID, len(valid))
	for i, req := range valid {
		ids[i] = s.enqueue(ctx, req)
	}
	return s.correlator.BatchAwait(ctx, ids, s.config.AwaitTimeout)
}

// QueueStatus returns item counts by status.
func (s *Service) QueueStatus() StatusSnapshot {
	return s.queue.StatusSnapshot()
}

// GetItem returns a snapshot of a queue item.
func (s *Service) GetItem(id uuid.UUID) (QueueItem, error) {
	item, ok := s.queue.Get(id)
	if !ok {
		return QueueItem{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	return item, nil
}

// ClearCompleted runs the retention purge immediately and returns the
// number of items removed.
func (s *Service) ClearCompleted() int {
	return purgeExpired(s.queue, s.correlator, s.config.Retention)
}

func (s *Service) admit(req ProcessingRequest) (ProcessingRequest, error) {
	if s.stopped.Load() {
		return req, ErrServiceStopped
	}
	return ValidateRequest(req)
}

func (s *Service) enqueue(ctx context.Context, req ProcessingRequest) uuid.UUID {
	id := s.queue.Enqueue(req)
	s.inst.recordEnqueued(ctx, req.RequestType)

	if s.emitter != nil {
		event := events.NewEvent(events.TypeRequestEnqueued, id, s.clock.Now())
		event.OwnerID = req.OwnerID
		event.RequestType = string(req.RequestType)
		event.Status = string(StatusPending)
		if err := s.emitter.EmitEvent(context.WithoutCancel(ctx), event); err != nil {
			s.logger.Debug("event sink reported an error",
				"event_type", event.Type,
				"request_id", id,
				"error", err)
		}
	}
	return id
}
