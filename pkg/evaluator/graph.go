package evaluator

import (
	"sort"
	"sync"
	"sync/atomic"
)

// graph is the arena of all nodes ever created by an Evaluator, plus the
// index from qualified key string to arena slot. Entries are never removed
// from the index by normal evaluation; only explicit eviction removes them.
// DiscardAll replaces the arena wholesale; DiscardAnalysisCache removes only
// index entries, leaving the discarded nodes in the arena (where visitAll no
// longer sees them) rather than compacting in place, since node IDs are
// referenced from other nodes' dep/rdep lists and must stay stable for the
// lifetime of a graph generation.
type graph struct {
	mu      sync.RWMutex
	nodes   []*node
	index   map[string]int32
	version int64 // bumped by atomic ops; also the graph's "generation" stamp
}

func newGraph() *graph {
	return &graph{
		index: make(map[string]int32),
	}
}

// getOrCreate returns the node for key, creating it if this is the first
// time the graph has seen it.
func (g *graph) getOrCreate(key Key) *node {
	qk := qualifiedKey(key)

	g.mu.RLock()
	if id, ok := g.index[qk]; ok {
		n := g.nodes[id]
		g.mu.RUnlock()
		return n
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.index[qk]; ok {
		return g.nodes[id]
	}

	id := int32(len(g.nodes))
	n := newNode(id, key)
	g.nodes = append(g.nodes, n)
	g.index[qk] = id
	return n
}

// lookup returns the node for key if it has ever been created, without
// creating it.
func (g *graph) lookup(key Key) (*node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.index[qualifiedKey(key)]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// nodeByID returns the node at id. id must have been returned by this
// graph's getOrCreate.
func (g *graph) nodeByID(id int32) *node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// currentVersion returns the graph's current generation stamp.
func (g *graph) currentVersion() int64 {
	return atomic.LoadInt64(&g.version)
}

// bumpVersion advances the graph's generation stamp, used whenever external
// inputs are invalidated (e.g. a file changed on disk).
func (g *graph) bumpVersion() int64 {
	return atomic.AddInt64(&g.version, 1)
}

// size returns the number of nodes ever created in the current generation.
func (g *graph) size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// reset discards every node, starting a fresh generation. Used by
// DiscardAll.
func (g *graph) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nil
	g.index = make(map[string]int32)
}

// visitAll calls fn, in creation order, for every node currently in the
// graph's index; nodes dropped by DiscardAnalysisCache are skipped. fn must
// not mutate the graph's node set.
func (g *graph) visitAll(fn func(*node)) {
	g.mu.RLock()
	nodes := make([]*node, 0, len(g.index))
	for _, id := range g.index {
		nodes = append(nodes, g.nodes[id])
	}
	g.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })

	for _, n := range nodes {
		fn(n)
	}
}
