package evaluator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/buildtool/buildtool/pkg/berrors"
	"github.com/buildtool/buildtool/pkg/telemetry"
)

// buildIDKey is the context key used to stash the current build's
// identifier, read back by Context.BuildID.
type buildIDKey struct{}

// WithBuildID returns a context carrying buildID, for use as the root
// context passed to Evaluate.
func WithBuildID(ctx context.Context, buildID string) context.Context {
	return context.WithValue(ctx, buildIDKey{}, buildID)
}

// Options configures an Evaluator.
type Options struct {
	// Workers bounds the number of Function bodies allowed to run
	// concurrently. Zero selects a default of 8.
	Workers int

	// KeepGoing, when true, evaluates as much of the graph as possible on
	// failure instead of aborting the whole build at the first error.
	KeepGoing bool

	// Telemetry, if non-nil, is used to record node-evaluation spans,
	// metrics, and events. Nil disables instrumentation.
	Telemetry *telemetry.Telemetry
}

// Evaluator is the incremental, memoizing, keyed evaluation engine. One
// Evaluator hosts every Key type registered against it; the filesystem
// view, package loader, configured-target resolver, and action graph
// builder are all sets of Functions registered on a shared Evaluator so
// that a single dependency graph spans the whole build.
type Evaluator struct {
	graph *graph

	mu       sync.RWMutex
	registry map[string]Function

	sem chan struct{}

	keepGoing bool
	tel       *telemetry.Telemetry

	evaluationCount int64
	cacheHitCount   int64
}

// New creates an Evaluator. Register Functions for every Key type you
// intend to evaluate before calling Evaluate.
func New(opts Options) *Evaluator {
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	return &Evaluator{
		graph:     newGraph(),
		registry:  make(map[string]Function),
		sem:       make(chan struct{}, workers),
		keepGoing: opts.KeepGoing,
		tel:       opts.Telemetry,
	}
}

// Register binds a Function to every Key of the given type. Registering the
// same keyType twice replaces the previous Function; existing memoized
// values of that type are not invalidated by re-registration, since that is
// expected only at process startup before any evaluation has happened.
func (e *Evaluator) Register(keyType string, fn Function) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry[keyType] = fn
}

func (e *Evaluator) functionFor(key Key) (Function, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.registry[key.Type()]
	if !ok {
		return nil, berrors.NewInternal(fmt.Sprintf("no function registered for key type %q", key.Type()), nil).
			WithResource(qualifiedKey(key))
	}
	return fn, nil
}

// Evaluate computes the values of keys, returning them in the same order.
// Dependencies already memoized and not dirty are returned without
// recomputation. Evaluate is safe to call concurrently and safe to call
// repeatedly against the same Evaluator as the underlying inputs change; a
// prior Evaluate's memoized nodes are reused wherever nothing they
// transitively read has changed since.
func (e *Evaluator) Evaluate(ctx context.Context, keys ...Key) ([]Value, error) {
	results := make([]Value, len(keys))
	errs := make([]error, len(keys))

	runCtx := ctx
	var cancel context.CancelFunc
	if !e.keepGoing {
		// Fail-fast: the first error cancels runCtx so that work not yet
		// started (or voluntarily checking ctx.Err()) stops rather than
		// continuing to explore sibling branches. Work already in flight
		// is not preempted, matching the documented contract.
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	var wg sync.WaitGroup
	wg.Add(len(keys))
	for i, k := range keys {
		i, k := i, k
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.requestFrom(runCtx, nil, nil, k)
			if errs[i] != nil && cancel != nil {
				cancel()
			}
		}()
	}
	wg.Wait()

	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) == 0 {
		return results, nil
	}
	if len(failures) == 1 {
		return results, failures[0]
	}
	return results, berrors.New(berrors.ClassPermanent, "evaluation failed", failures[0]).
		WithDetail("failure_count", len(failures))
}

// requestFrom evaluates key on behalf of requester (nil for a top-level
// Evaluate call), recording a dependency edge and checking for cycles
// against path.
func (e *Evaluator) requestFrom(ctx context.Context, requester *node, path []string, key Key) (Value, error) {
	qk := qualifiedKey(key)

	for _, seen := range path {
		if seen == qk {
			cyclePath := append(append([]string{}, path...), qk)
			return nil, berrors.NewCycle(fmt.Sprintf("dependency cycle detected: %s", formatCycle(cyclePath)), nil).
				WithResource(qk)
		}
	}

	n := e.graph.getOrCreate(key)

	if requester != nil {
		requester.mu.Lock()
		requester.deps = append(requester.deps, n.id)
		requester.mu.Unlock()

		n.mu.Lock()
		n.addRdep(requester.id)
		n.mu.Unlock()
	}

	value, err := e.evaluate(ctx, n, append(path, qk))
	return value, err
}

// evaluate implements the change-propagation algorithm: a node already
// confirmed current at the graph's present version is returned directly; a
// maybe-dirty node first tries to confirm itself clean by re-validating its
// recorded deps without rerunning its Function, and only reruns the
// Function if that fails or the node was explicitly marked dirty. It
// releases the caller's worker slot while blocked on another goroutine's
// in-progress evaluation or on this node's own dependency reads, so that a
// deep dependency chain never exhausts the pool and deadlocks.
func (e *Evaluator) evaluate(ctx context.Context, n *node, path []string) (Value, error) {
	currentVersion := e.graph.currentVersion()

	n.mu.Lock()
	if n.state == stateInProgress {
		done := n.done
		n.mu.Unlock()
		<-done
		n.mu.Lock()
		value, err := n.value, n.err
		n.mu.Unlock()
		return value, err
	}
	if !n.needsRevalidation(currentVersion) {
		value, err := n.value, n.err
		n.mu.Unlock()
		atomic.AddInt64(&e.cacheHitCount, 1)
		return value, err
	}

	onlyMaybeDirty := n.state == stateDone && n.maybeDirty && !n.dirty
	priorDeps := append([]int32(nil), n.deps...)
	priorValue := n.value
	hadPriorValue := n.state == stateDone

	n.state = stateInProgress
	n.done = make(chan struct{})
	n.mu.Unlock()

	if onlyMaybeDirty {
		if clean := e.revalidate(ctx, n, priorDeps, currentVersion, path); clean {
			n.mu.Lock()
			n.evaluatedAt = currentVersion
			n.dirty = false
			n.maybeDirty = false
			n.state = stateDone
			value, err := n.value, n.err
			close(n.done)
			n.mu.Unlock()
			atomic.AddInt64(&e.cacheHitCount, 1)
			return value, err
		}
	}

	e.sem <- struct{}{}
	n.mu.Lock()
	n.building = true
	n.deps = nil
	n.mu.Unlock()

	value, err := e.runFunction(ctx, n, path)

	<-e.sem

	n.mu.Lock()
	newDeps := append([]int32(nil), n.deps...)
	n.mu.Unlock()

	if hadPriorValue {
		e.dropStaleDeps(n.id, priorDeps, newDeps)
	}

	changed := err != nil || !hadPriorValue || !valuesEqual(priorValue, value)

	n.mu.Lock()
	if err != nil {
		n.state = stateError
	} else {
		n.state = stateDone
	}
	n.value = value
	n.err = err
	n.evaluatedAt = currentVersion
	if changed {
		n.changedAt = currentVersion
	}
	if ad, ok := value.(AlwaysDirty); ok && ad.AlwaysDirty() {
		n.dirty = true
	} else {
		n.dirty = false
	}
	n.maybeDirty = false
	n.building = false
	close(n.done)
	n.mu.Unlock()

	atomic.AddInt64(&e.evaluationCount, 1)

	return value, err
}

// revalidate re-evaluates each of n's previously recorded deps to the
// current version and reports whether all of them are unchanged since n
// was last confirmed current, meaning n itself can be reused without
// rerunning its Function.
func (e *Evaluator) revalidate(ctx context.Context, n *node, priorDeps []int32, currentVersion int64, path []string) bool {
	n.mu.Lock()
	evaluatedAt := n.evaluatedAt
	n.mu.Unlock()

	for _, depID := range priorDeps {
		dep := e.graph.nodeByID(depID)
		if _, err := e.evaluate(ctx, dep, path); err != nil {
			return false
		}
		dep.mu.Lock()
		depChangedAt := dep.changedAt
		dep.mu.Unlock()
		if depChangedAt > evaluatedAt {
			return false
		}
	}
	return true
}

// dropStaleDeps removes the rdep edge this node holds on any dependency it
// read last time but did not read this time.
func (e *Evaluator) dropStaleDeps(nodeID int32, priorDeps, newDeps []int32) {
	keep := make(map[int32]bool, len(newDeps))
	for _, id := range newDeps {
		keep[id] = true
	}
	for _, id := range priorDeps {
		if keep[id] {
			continue
		}
		dep := e.graph.nodeByID(id)
		dep.mu.Lock()
		dep.removeRdep(nodeID)
		dep.mu.Unlock()
	}
}

func (e *Evaluator) runFunction(ctx context.Context, n *node, path []string) (value Value, err error) {
	fn, ferr := e.functionFor(n.key)
	if ferr != nil {
		return nil, ferr
	}

	buildID, _ := ctx.Value(buildIDKey{}).(string)

	if e.tel != nil {
		ctx = telemetry.WithNodeContext(ctx, buildID, n.key.String(), n.key.Type())
	}

	env := &Context{eval: e, self: n, path: path, ctx: ctx}

	defer func() {
		if r := recover(); r != nil {
			err = berrors.NewInternal(fmt.Sprintf("panic evaluating %s: %v", qualifiedKey(n.key), r), nil).
				WithResource(qualifiedKey(n.key))
		}
		if e.tel != nil {
			telemetry.EndNodeContext(ctx, buildID, n.key.String(), n.key.Type(), err)
		}
	}()

	value, err = fn(env)
	return value, err
}

func formatCycle(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += " -> " + p
	}
	return out
}
