package processing

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/phrazzld/insight-api/internal/events"
	"github.com/phrazzld/insight-api/internal/invoker"
)

// Dispatcher moves ready items through the invoker under a fixed
// concurrency budget. Each invocation runs in its own goroutine; a failure
// or panic in one never affects the others.
type Dispatcher struct {
	queue      *Queue
	invoker    invoker.Invoker
	correlator *Correlator
	emitter    events.EventEmitter
	inst       *Instrumentation
	clock      Clock
	logger     *slog.Logger

	backoff           LinearBackoff
	batchSize         int
	invocationTimeout time.Duration

	slots    int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. The emitter and instrumentation may be
// nil.
func NewDispatcher(
	queue *Queue,
	inv invoker.Invoker,
	correlator *Correlator,
	emitter events.EventEmitter,
	inst *Instrumentation,
	config Config,
	clock Clock,
	logger *slog.Logger,
) *Dispatcher {
	config = config.withDefaults(logger)
	if inst == nil {
		inst = NewInstrumentation()
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &Dispatcher{
		queue:      queue,
		invoker:    inv,
		correlator: correlator,
		emitter:    emitter,
		inst:       inst,
		clock:      clock,
		logger:     logger.With("component", "dispatcher"),
		backoff: LinearBackoff{
			Base: config.RetryDelayBase,
			Max:  config.RetryDelayMax,
		},
		batchSize:         config.BatchSize,
		invocationTimeout: config.InvocationTimeout,
		slots:             int64(config.MaxConcurrentRequests),
		sem:               semaphore.NewWeighted(int64(config.MaxConcurrentRequests)),
	}
}

// FreeSlots returns how many more invocations may start right now.
func (d *Dispatcher) FreeSlots() int {
	return int(d.slots - d.inFlight.Load())
}

// InFlight returns the number of running invocations.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// RunBatch starts invocations for the highest-priority ready items, up to
// the batch size and the free concurrency budget. It returns as soon as the
// invocations are launched; ctx is handed to each invocation and should only
// be cancelled on shutdown.
func (d *Dispatcher) RunBatch(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	free := d.FreeSlots()
	if free <= 0 {
		return 0, nil
	}

	dispatched := 0
	for _, candidate := range d.queue.SelectReady(min(d.batchSize, free)) {
		if !d.sem.TryAcquire(1) {
			break
		}
		item, ok := d.queue.markProcessing(candidate.ID)
		if !ok {
			// Claimed by a concurrent round or purged
			d.sem.Release(1)
			continue
		}
		d.inFlight.Add(1)
		d.wg.Add(1)
		dispatched++
		go d.run(ctx, item)
	}

	if dispatched > 0 {
		d.logger.Debug("dispatched batch",
			"dispatched_count", dispatched,
			"in_flight", d.inFlight.Load())
	}
	return dispatched, nil
}

// Wait blocks until every launched invocation has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// run performs one attempt for item and records its outcome.
func (d *Dispatcher) run(ctx context.Context, item QueueItem) {
	defer d.wg.Done()

	logger := d.logger.With(
		"request_id", item.ID,
		"request_type", item.Request.RequestType,
		"retry_count", item.RetryCount,
	)
	d.emit(ctx, d.transitionEvent(events.TypeRequestStarted, item))

	started := time.Now()
	spanCtx, span := d.inst.startInvocation(ctx, item)
	res, err := d.invoke(spanCtx, item, logger)
	elapsed := time.Since(started)
	d.inst.endInvocation(ctx, span, item.Request.RequestType, elapsed, err)

	elapsedMs := elapsed.Milliseconds()
	if err == nil && res.ProcessingTimeMs > 0 {
		elapsedMs = res.ProcessingTimeMs
	}

	if err != nil && ctx.Err() != nil {
		// Interrupted by shutdown: neither a retry nor a failure
		released := d.queue.release(item.ID)
		d.inFlight.Add(-1)
		d.sem.Release(1)
		logger.Info("invocation interrupted by shutdown", "released", released, "error", err)
		return
	}

	var (
		terminal *ProcessingResult
		event    *events.Event
	)
	if err == nil {
		result, ok := d.queue.complete(item.ID, res.Result, elapsedMs)
		if ok {
			terminal = result
			event = d.resultEvent(events.TypeRequestCompleted, result, item.RetryCount)
			d.inst.recordCompleted(ctx, item.Request.RequestType)
			logger.Info("request completed", "processing_time_ms", elapsedMs)
		}
	} else {
		outcome, ok := d.queue.fail(item.ID, err, invoker.IsPermanent(err), elapsedMs, d.backoff.Delay)
		switch {
		case !ok:
		case outcome.retry:
			event = d.transitionEvent(events.TypeRequestRetrying, outcome.item)
			event.Error = outcome.item.Error
			d.inst.recordRetried(ctx, item.Request.RequestType)
			logger.Warn("request attempt failed, retry scheduled",
				"error", err,
				"next_retry_count", outcome.item.RetryCount,
				"delay", outcome.delay)
		default:
			terminal = outcome.result
			event = d.resultEvent(events.TypeRequestFailed, outcome.result, outcome.item.RetryCount)
			d.inst.recordFailed(ctx, item.Request.RequestType)
			logger.Error("request failed",
				"error", err,
				"permanent", invoker.IsPermanent(err),
				"final_retry_count", outcome.item.RetryCount)
		}
	}

	d.inFlight.Add(-1)
	d.sem.Release(1)
	d.queue.signal()

	if terminal != nil && d.correlator != nil {
		d.correlator.Resolve(terminal)
	}
	if event != nil {
		d.emit(ctx, event)
	} else {
		logger.Warn("item left processing state during invocation")
	}
}

// invoke calls the invoker, converting panics into transient errors.
func (d *Dispatcher) invoke(ctx context.Context, item QueueItem, logger *slog.Logger) (res *invoker.InvocationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovered from invoker panic",
				"panic", r,
				"stack", string(debug.Stack()))
			res = nil
			err = fmt.Errorf("%w: invoker panicked: %v", invoker.ErrTransientFailure, r)
		}
	}()

	if d.invocationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.invocationTimeout)
		defer cancel()
	}

	res, err = d.invoker.Invoke(ctx, invoker.Invocation{
		RequestType: string(item.Request.RequestType),
		OwnerID:     item.Request.OwnerID,
		Payload:     item.Request.Payload,
		Metadata:    item.Request.Metadata,
	})
	if err == nil && res == nil {
		err = fmt.Errorf("%w: invoker returned no result", invoker.ErrInvalidResponse)
	}
	return res, err
}

func (d *Dispatcher) transitionEvent(eventType events.Type, item QueueItem) *events.Event {
	event := events.NewEvent(eventType, item.ID, d.clock.Now())
	event.OwnerID = item.Request.OwnerID
	event.RequestType = string(item.Request.RequestType)
	event.Status = string(item.Status)
	event.RetryCount = item.RetryCount
	return event
}

func (d *Dispatcher) resultEvent(eventType events.Type, res *ProcessingResult, retryCount int) *events.Event {
	event := events.NewEvent(eventType, res.RequestID, res.Timestamp)
	event.OwnerID = res.OwnerID
	event.RequestType = string(res.RequestType)
	event.Status = string(res.Status)
	event.RetryCount = retryCount
	event.Result = res.Result
	event.ProcessingTimeMs = res.ProcessingTimeMs
	if res.Error != nil {
		event.Error = *res.Error
	}
	return event
}

// emit publishes best-effort; sink failures are logged by the emitter.
func (d *Dispatcher) emit(ctx context.Context, event *events.Event) {
	if d.emitter == nil {
		return
	}
	if err := d.emitter.EmitEvent(context.WithoutCancel(ctx), event); err != nil {
		d.logger.Debug("event sink reported an error",
			"event_type", event.Type,
			"request_id", event.RequestID,
			"error", err)
	}
}
