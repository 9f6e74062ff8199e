package processing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// future is a single waiter's slot. It is resolved at most once.
type future struct {
	once   sync.Once
	done   chan struct{}
	result *ProcessingResult
	err    error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

// resolve settles the future. Only the first call has any effect; it
// reports whether this call was the one that settled it.
func (f *future) resolve(res *ProcessingResult, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result = res
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// ResultLookup reports the terminal result for a request id. It returns a
// nil result while the request is in flight and exists=false for unknown ids.
type ResultLookup func(id uuid.UUID) (res *ProcessingResult, exists bool)

// Correlator maps request ids to callers waiting on their terminal result.
// Any number of waiters may wait on the same id.
type Correlator struct {
	mu       sync.Mutex
	waiters  map[uuid.UUID][]*future
	closeErr error

	lookup         ResultLookup
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewCorrelator creates a Correlator. lookup is consulted right after a
// waiter registers so results that landed before registration are not
// missed. A non-positive defaultTimeout falls back to 30s.
func NewCorrelator(lookup ResultLookup, defaultTimeout time.Duration, logger *slog.Logger) *Correlator {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultConfig().AwaitTimeout
	}
	return &Correlator{
		waiters:        make(map[uuid.UUID][]*future),
		lookup:         lookup,
		defaultTimeout: defaultTimeout,
		logger:         logger.With("component", "result_correlator"),
	}
}

// Await blocks until the request reaches a terminal state, the timeout
// elapses or ctx is done. A non-positive timeout uses the default. On
// timeout the waiter is removed and an error wrapping ErrTimeout is
// returned; the queue item itself is unaffected. A failed request is
// returned as a result, not as an error.
func (c *Correlator) Await(ctx context.Context, id uuid.UUID, timeout time.Duration) (*ProcessingResult, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	f := c.register(id)

	if c.lookup != nil {
		res, exists := c.lookup(id)
		switch {
		case !exists:
			c.unregister(id, f)
			f.resolve(nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id))
		case res != nil:
			c.unregister(id, f)
			f.resolve(res, nil)
		}
	}

	c.mu.Lock()
	closeErr := c.closeErr
	c.mu.Unlock()
	if closeErr != nil {
		c.unregister(id, f)
		f.resolve(nil, closeErr)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
	case <-timer.C:
		c.unregister(id, f)
		if f.resolve(nil, fmt.Errorf("%w: request %s after %s", ErrTimeout, id, timeout)) {
			c.logger.Debug("waiter timed out", "request_id", id, "timeout", timeout)
		}
	case <-ctx.Done():
		c.unregister(id, f)
		f.resolve(nil, ctx.Err())
	}

	return f.result, f.err
}

// BatchAwait waits on every id concurrently. The first error cancels the
// remaining waits and is returned; a failed request counts as an error
// wrapping ErrProcessingFailed. Results are in the order of ids.
func (c *Correlator) BatchAwait(ctx context.Context, ids []uuid.UUID, timeout time.Duration) ([]*ProcessingResult, error) {
	results := make([]*ProcessingResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)

	for i, id := range ids {
		g.Go(func() error {
			res, err := c.Await(gctx, id, timeout)
			if err != nil {
				return err
			}
			if res.Status == StatusFailed {
				return failureError(res)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Resolve delivers a terminal result to every waiter on its request id.
// Resolving an id with no waiters is a no-op. It returns the number of
// waiters notified.
func (c *Correlator) Resolve(res *ProcessingResult) int {
	c.mu.Lock()
	waiting := c.waiters[res.RequestID]
	delete(c.waiters, res.RequestID)
	c.mu.Unlock()

	n := 0
	for _, f := range waiting {
		if f.resolve(res, nil) {
			n++
		}
	}
	return n
}

// DropOrphans rejects waiters whose request id no longer exists in the
// queue with ErrRequestNotFound. It returns the number of waiters rejected.
func (c *Correlator) DropOrphans(exists func(id uuid.UUID) bool) int {
	c.mu.Lock()
	var orphaned []*future
	for id, waiting := range c.waiters {
		if exists(id) {
			continue
		}
		for _, f := range waiting {
			f.resolve(nil, fmt.Errorf("%w: %s was purged", ErrRequestNotFound, id))
		}
		orphaned = append(orphaned, waiting...)
		delete(c.waiters, id)
	}
	c.mu.Unlock()

	if len(orphaned) > 0 {
		c.logger.Warn("rejected orphaned waiters", "waiter_count", len(orphaned))
	}
	return len(orphaned)
}

// Close rejects every registered waiter with err, and any later Await on a
// request that is not yet terminal fails with err immediately. Only the
// first call has any effect. It returns the number of waiters rejected.
func (c *Correlator) Close(err error) int {
	c.mu.Lock()
	if c.closeErr != nil {
		c.mu.Unlock()
		return 0
	}
	c.closeErr = err
	waiting := c.waiters
	c.waiters = make(map[uuid.UUID][]*future)
	c.mu.Unlock()

	n := 0
	for _, futures := range waiting {
		for _, f := range futures {
			if f.resolve(nil, err) {
				n++
			}
		}
	}
	if n > 0 {
		c.logger.Info("rejected waiters on close", "waiter_count", n)
	}
	return n
}

// Pending returns the number of registered waiters.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, waiting := range c.waiters {
		n += len(waiting)
	}
	return n
}

func (c *Correlator) register(id uuid.UUID) *future {
	f := newFuture()
	c.mu.Lock()
	c.waiters[id] = append(c.waiters[id], f)
	c.mu.Unlock()
	return f
}

func (c *Correlator) unregister(id uuid.UUID, f *future) {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiting := c.waiters[id]
	for i, w := range waiting {
		if w == f {
			waiting = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(waiting) == 0 {
		delete(c.waiters, id)
	} else {
		c.waiters[id] = waiting
	}
}

// failureError converts a failed result into an error wrapping
// ErrProcessingFailed.
func failureError(res *ProcessingResult) error {
	msg := "unknown error"
	if res.Error != nil {
		msg = *res.Error
	}
	return fmt.Errorf("%w: request %s: %s", ErrProcessingFailed, res.RequestID, msg)
}
