package evaluator

import "sync/atomic"

// Stats is a point-in-time snapshot of an Evaluator's graph and activity
// counters, suitable for the `buildtool info` command and for periodic
// export to metrics.
type Stats struct {
	// NodeCount is the number of nodes currently in the graph, including
	// dirty and in-progress ones; nodes dropped by DiscardAnalysisCache are
	// not counted.
	NodeCount int

	// DirtyCount is the number of nodes currently marked dirty.
	DirtyCount int

	// InProgressCount is the number of nodes currently being (re)computed.
	InProgressCount int

	// EvaluationCount is the cumulative number of times a Function has
	// actually run, across the Evaluator's lifetime.
	EvaluationCount int64

	// CacheHitCount is the cumulative number of Request/Evaluate calls
	// satisfied from a memoized, non-dirty value without running a
	// Function.
	CacheHitCount int64

	// ByType breaks NodeCount down per Key type.
	ByType map[string]int
}

// Stats computes a snapshot of the evaluator's current state. It walks the
// whole graph under read locks and so is not free; callers should not call
// it on every node evaluation, only periodically or on demand.
func (e *Evaluator) Stats() Stats {
	s := Stats{
		EvaluationCount: atomic.LoadInt64(&e.evaluationCount),
		CacheHitCount:   atomic.LoadInt64(&e.cacheHitCount),
		ByType:          make(map[string]int),
	}

	e.graph.visitAll(func(n *node) {
		s.NodeCount++
		n.mu.Lock()
		if n.dirty {
			s.DirtyCount++
		}
		if n.state == stateInProgress {
			s.InProgressCount++
		}
		n.mu.Unlock()
		s.ByType[n.key.Type()]++
	})

	return s
}

// Keys returns the Key of every node of the given type currently in the
// graph. Used by workspace scanners that need to invalidate every
// previously-observed source key at once (a full sweep) rather than a
// specific changed set from a watcher.
func (e *Evaluator) Keys(keyType string) []Key {
	var keys []Key
	e.graph.visitAll(func(n *node) {
		if n.key.Type() == keyType {
			keys = append(keys, n.key)
		}
	})
	return keys
}
