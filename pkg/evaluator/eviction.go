package evaluator

// DiscardAll drops every memoized node and starts a fresh graph generation.
// Used between unrelated builds (e.g. a different workspace root) where no
// incremental reuse is possible or desired.
func (e *Evaluator) DiscardAll() {
	e.graph.reset()
	e.graph.bumpVersion()
}

// DiscardAnalysisCache drops memoized nodes whose key type is in keyTypes,
// keeping everything else untouched. This implements the two-tier eviction
// split the engine needs between builds: the filesystem view and package
// loader results (cheap to recompute, large in number) can be discarded to
// bound memory, while the action graph and action cache results (expensive
// to recompute) are kept. Discarded nodes are fully removed from the arena's
// index so a subsequent request for the same key allocates a new node
// rather than resurrecting stale dependency edges; any surviving node that
// had a discarded node as a dependency is marked dirty so it is recomputed
// rather than trusting a dependency edge that no longer resolves.
func (e *Evaluator) DiscardAnalysisCache(keyTypes ...string) {
	discard := make(map[string]bool, len(keyTypes))
	for _, kt := range keyTypes {
		discard[kt] = true
	}

	var discarded []int32
	e.graph.visitAll(func(n *node) {
		if discard[n.key.Type()] {
			discarded = append(discarded, n.id)
		}
	})
	if len(discarded) == 0 {
		return
	}

	discardedSet := make(map[int32]bool, len(discarded))
	for _, id := range discarded {
		discardedSet[id] = true
	}

	e.graph.visitAll(func(n *node) {
		if discardedSet[n.id] {
			return
		}
		n.mu.Lock()
		for _, depID := range n.deps {
			if discardedSet[depID] {
				n.dirty = true
				break
			}
		}
		n.mu.Unlock()
	})

	e.graph.mu.Lock()
	for qk, id := range e.graph.index {
		if discardedSet[id] {
			delete(e.graph.index, qk)
		}
	}
	e.graph.mu.Unlock()
}
