package processing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the OTel scope name for the processing core
const InstrumentationName = "github.com/phrazzld/insight-api/internal/processing"

// Instrumentation records OTel metrics and spans for the processing core.
//
// Instruments:
//   - insight.requests.enqueued (Int64Counter), by request_type
//   - insight.requests.completed (Int64Counter), by request_type
//   - insight.requests.failed (Int64Counter), by request_type
//   - insight.requests.retried (Int64Counter), by request_type
//   - insight.invocation.duration (Float64Histogram, seconds), by request_type and outcome
//   - insight.queue.depth (Int64ObservableGauge), by status
type Instrumentation struct {
	meter  metric.Meter
	tracer trace.Tracer

	enqueued  metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewInstrumentation creates instruments from the global OTel providers.
// Without configured providers the instruments are no-ops.
func NewInstrumentation() *Instrumentation {
	return NewInstrumentationWith(otel.Meter(InstrumentationName), otel.Tracer(InstrumentationName))
}

// NewInstrumentationWith creates instruments from the given meter and tracer.
func NewInstrumentationWith(meter metric.Meter, tracer trace.Tracer) *Instrumentation {
	// The OTel API returns usable no-op instruments alongside any error.
	enqueued, _ := meter.Int64Counter("insight.requests.enqueued",
		metric.WithDescription("Requests accepted into the queue"),
		metric.WithUnit("{request}"))
	completed, _ := meter.Int64Counter("insight.requests.completed",
		metric.WithDescription("Requests that reached the completed state"),
		metric.WithUnit("{request}"))
	failed, _ := meter.Int64Counter("insight.requests.failed",
		metric.WithDescription("Requests that reached the failed state"),
		metric.WithUnit("{request}"))
	retried, _ := meter.Int64Counter("insight.requests.retried",
		metric.WithDescription("Failed attempts re-armed for retry"),
		metric.WithUnit("{attempt}"))
	duration, _ := meter.Float64Histogram("insight.invocation.duration",
		metric.WithDescription("Duration of invoker calls in seconds"),
		metric.WithUnit("s"))

	return &Instrumentation{
		meter:     meter,
		tracer:    tracer,
		enqueued:  enqueued,
		completed: completed,
		failed:    failed,
		retried:   retried,
		duration:  duration,
	}
}

// observeQueue registers the queue depth gauge for q.
func (i *Instrumentation) observeQueue(q *Queue) error {
	_, err := i.meter.Int64ObservableGauge("insight.queue.depth",
		metric.WithDescription("Queue items by status"),
		metric.WithUnit("{item}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			s := q.StatusSnapshot()
			o.Observe(int64(s.Pending), metric.WithAttributes(attribute.String("status", string(StatusPending))))
			o.Observe(int64(s.Processing), metric.WithAttributes(attribute.String("status", string(StatusProcessing))))
			o.Observe(int64(s.Completed), metric.WithAttributes(attribute.String("status", string(StatusCompleted))))
			o.Observe(int64(s.Failed), metric.WithAttributes(attribute.String("status", string(StatusFailed))))
			return nil
		}),
	)
	return err
}

func typeAttr(t RequestType) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("request_type", string(t)))
}

func (i *Instrumentation) recordEnqueued(ctx context.Context, t RequestType) {
	i.enqueued.Add(ctx, 1, typeAttr(t))
}

func (i *Instrumentation) recordCompleted(ctx context.Context, t RequestType) {
	i.completed.Add(ctx, 1, typeAttr(t))
}

func (i *Instrumentation) recordFailed(ctx context.Context, t RequestType) {
	i.failed.Add(ctx, 1, typeAttr(t))
}

func (i *Instrumentation) recordRetried(ctx context.Context, t RequestType) {
	i.retried.Add(ctx, 1, typeAttr(t))
}

// startInvocation opens a span around one invoker call.
func (i *Instrumentation) startInvocation(ctx context.Context, item QueueItem) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "insight.request.invoke",
		trace.WithAttributes(
			attribute.String("insight.request.id", item.ID.String()),
			attribute.String("insight.request.type", string(item.Request.RequestType)),
			attribute.String("insight.request.priority", string(item.Request.Priority)),
			attribute.Int("insight.retry_count", item.RetryCount),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// endInvocation records the call duration and closes the span.
func (i *Instrumentation) endInvocation(
	ctx context.Context,
	span trace.Span,
	t RequestType,
	elapsed time.Duration,
	err error,
) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	i.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("request_type", string(t)),
		attribute.String("outcome", outcome),
	))
}
