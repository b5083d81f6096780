package evaluator

// Invalidate raises the graph's version and marks each of keys as dirty,
// meaning its underlying input is known to have changed (e.g. fsview
// detected a file modification via fsnotify) and it must be recomputed
// unconditionally on next request. It then propagates a maybe-dirty bit to
// every node that transitively depended on any of keys: those nodes will
// re-validate their own deps on next request rather than being recomputed
// outright, per the revalidate-or-recompute algorithm in evaluate.
func (e *Evaluator) Invalidate(keys ...Key) {
	if len(keys) == 0 {
		return
	}
	e.graph.bumpVersion()

	var toMark []*node
	for _, key := range keys {
		n, ok := e.graph.lookup(key)
		if !ok {
			continue
		}
		n.mu.Lock()
		n.dirty = true
		n.mu.Unlock()
		toMark = append(toMark, n)
	}

	visited := make(map[int32]bool, len(toMark))
	var queue []*node
	queue = append(queue, toMark...)
	for _, n := range toMark {
		visited[n.id] = true
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		n.mu.Lock()
		rdeps := make([]int32, 0, len(n.rdeps))
		for id := range n.rdeps {
			rdeps = append(rdeps, id)
		}
		n.mu.Unlock()

		for _, id := range rdeps {
			if visited[id] {
				continue
			}
			visited[id] = true
			rn := e.graph.nodeByID(id)
			rn.mu.Lock()
			if !rn.dirty {
				rn.maybeDirty = true
			}
			rn.mu.Unlock()
			queue = append(queue, rn)
		}
	}
}

// IsDirty reports whether key's node is currently marked dirty or
// maybe-dirty. It returns false for keys the evaluator has never seen.
func (e *Evaluator) IsDirty(key Key) bool {
	n, ok := e.graph.lookup(key)
	if !ok {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dirty || n.maybeDirty
}
