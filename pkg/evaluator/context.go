package evaluator

import (
	"context"

	"github.com/buildtool/buildtool/pkg/berrors"
)

// Context is the environment a Function evaluates in. It is the only way a
// Function may read another node's value, and every read it performs is
// recorded as a dependency edge so the graph can decide, on the next build,
// whether this node needs to be recomputed at all.
type Context struct {
	eval *Evaluator
	self *node

	// path is the chain of qualified keys currently being evaluated on this
	// call stack, used to detect a dependency cycle the moment it would
	// close rather than by a separate post-hoc graph walk.
	path []string

	ctx context.Context
}

// Context returns the underlying standard context, carrying cancellation,
// deadlines, and telemetry.
func (c *Context) Context() context.Context { return c.ctx }

// Key returns the Key currently being evaluated. Functions registered for
// more than one Key type use this to recover the concrete type.
func (c *Context) Key() Key { return c.self.key }

// BuildID returns the identifier of the build this evaluation is part of,
// if one was set via WithBuildID on the Evaluator's root context.
func (c *Context) BuildID() string {
	if id, ok := c.ctx.Value(buildIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Request evaluates key, blocking until its value is available, and
// records a dependency edge from the requesting node to key's node. If key
// is already on the current call stack, Request returns a cycle error
// instead of deadlocking.
//
// The calling goroutine is itself running inside a Function, holding one
// of the evaluator's worker slots. Request gives that slot back for the
// duration of the nested evaluation and reclaims one before returning, so
// that a deep dependency chain can never exhaust the pool and deadlock
// against itself.
func (c *Context) Request(key Key) (Value, error) {
	<-c.eval.sem
	defer func() { c.eval.sem <- struct{}{} }()

	return c.requestRaw(key)
}

// requestRaw evaluates key without touching the worker semaphore. Callers
// must already have released any slot they hold before blocking on it.
func (c *Context) requestRaw(key Key) (Value, error) {
	return c.eval.requestFrom(c.ctx, c.self, c.path, key)
}

// RequestAll evaluates every key in keys concurrently (bounded by the
// Evaluator's worker pool) and records a dependency edge for each. Every
// key is attempted and waited for, whatever the Evaluator's keepGoing
// setting; a single failure is returned as is, and several are wrapped in
// one permanent error carrying the first and a failure_count detail.
//
// The calling goroutine's own worker slot is released once for the whole
// fan-out rather than once per key, since it is the single owner blocking
// on all of them together.
func (c *Context) RequestAll(keys []Key) ([]Value, error) {
	type result struct {
		index int
		value Value
		err   error
	}

	results := make([]Value, len(keys))
	resultCh := make(chan result, len(keys))

	<-c.eval.sem
	defer func() { c.eval.sem <- struct{}{} }()

	for i, k := range keys {
		i, k := i, k
		go func() {
			v, err := c.requestRaw(k)
			resultCh <- result{index: i, value: v, err: err}
		}()
	}

	var firstErr error
	var errs []error
	for range keys {
		r := <-resultCh
		if r.err != nil {
			errs = append(errs, r.err)
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		results[r.index] = r.value
	}

	if len(errs) == 0 {
		return results, nil
	}
	if len(errs) == 1 {
		return results, firstErr
	}
	return results, berrors.New(berrors.ClassPermanent, "multiple dependency requests failed", firstErr).
		WithDetail("failure_count", len(errs))
}
