package processing

import "errors"

// Common errors returned by the processing core
var (
	// ErrInvalidRequest is returned synchronously when a request is missing
	// required fields. Invalid requests never enter the queue.
	ErrInvalidRequest = errors.New("invalid processing request")

	// ErrTimeout is returned to a waiting caller whose wait budget expired.
	// The underlying queue item is not affected.
	ErrTimeout = errors.New("timed out waiting for processing result")

	// ErrProcessingFailed is returned by Process when the request reached the
	// failed state. It wraps the invoker's message.
	ErrProcessingFailed = errors.New("processing failed")

	// ErrRequestNotFound is returned when a request id is not in the queue,
	// including waiters whose item was purged before it resolved.
	ErrRequestNotFound = errors.New("processing request not found")

	// ErrSchedulerRunning is returned when Start is called on a running scheduler.
	ErrSchedulerRunning = errors.New("scheduler is already running")

	// ErrServiceStopped is returned when work is submitted after Stop.
	ErrServiceStopped = errors.New("processing service is stopped")
)
