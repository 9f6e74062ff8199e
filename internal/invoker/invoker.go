package invoker

import (
	"context"
	"encoding/json"
)

// Invocation is the typed payload handed to an invoker for one attempt.
type Invocation struct {
	RequestType string            `json:"request_type"`
	OwnerID     string            `json:"owner_id"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InvocationResult is what a successful invocation returns.
type InvocationResult struct {
	Result           json.RawMessage `json:"result"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
}

// Invoker defines the interface for running one analysis request against an
// inference service. This interface serves as a boundary between the
// application core and external AI/LLM services.
type Invoker interface {
	// Invoke runs a single attempt. Errors wrapping ErrPermanent will not be
	// retried by the caller; any other error is treated as transient.
	Invoke(ctx context.Context, inv Invocation) (*InvocationResult, error)
}

// Func adapts a plain function to the Invoker interface.
type Func func(ctx context.Context, inv Invocation) (*InvocationResult, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, inv Invocation) (*InvocationResult, error) {
	return f(ctx, inv)
}
