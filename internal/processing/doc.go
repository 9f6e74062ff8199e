// Package processing implements the asynchronous AI-request processing core.
// Callers submit analysis requests which are held in an in-memory priority
// queue, dispatched to an external invoker under a bounded concurrency budget,
// retried with linear backoff on transient failure, and correlated back to
// callers waiting on the result.
//
// Ordering is guaranteed within a single selection (priority, then FIFO).
// Across scheduler ticks, fairness only holds while BatchSize times the tick
// rate keeps pace with the enqueue rate; this is an admission-control trade-off
// and not a hard guarantee.
//
// In-flight invoker calls are never cancelled by a caller giving up. Only the
// waiter is cancelled on timeout; the queue item still runs to a terminal state.
package processing
