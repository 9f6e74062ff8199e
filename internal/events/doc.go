// Package events provides the event bridge between the processing core and
// out-of-process consumers.
//
// The processing core emits one Event per queue-item state transition. The
// InMemoryEventEmitter fans each event out to registered handlers (sinks):
// an audit log store, message brokers, the real-time Hub used by UI
// listeners, or a structured log. Delivery is best-effort: handler errors are
// logged and reported to the emitter's caller but never retried.
//
// The primary components are:
// - Event: a queue transition record
// - EventHandler: interface for sinks that consume events
// - EventEmitter: interface for components that publish events
// - Hub: per-owner fan-out of terminal events to live subscribers
package events
