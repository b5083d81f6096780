package actiongraph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
)

// Order selects the traversal discipline Items walks a NestedSet in. The
// same order must be used everywhere a set's flattened contents are
// observed, since switching orders mid-build would perturb any hash or
// display computed from Items without changing the set's actual content.
type Order int

const (
	// OrderStable lists a set's own direct items first, then recurses into
	// each transitive child in declaration order. Items may repeat when the
	// same child set is shared by more than one parent.
	OrderStable Order = iota
)

// LeafHasher extracts the (path, content-digest) pair a leaf item
// contributes to a NestedSet's hash, per the action cache key formula:
// leaves are sorted by path so insertion order never perturbs the hash.
type LeafHasher[T any] func(item T) (path string, digestHex string)

// NestedSet is a layered collection: direct items plus a list of
// transitive child sets, forming a DAG that is shared structurally across
// the action graph rather than flattened eagerly. Input sets on an Action
// are built this way so that two actions sharing a large common dependency
// set share its representation instead of copying it.
type NestedSet[T any] struct {
	Direct     []T
	Transitive []*NestedSet[T]

	hashOnce sync.Once
	hash     string
}

// NewNestedSet constructs a set from its own direct items plus zero or
// more already-built transitive child sets.
func NewNestedSet[T any](direct []T, transitive ...*NestedSet[T]) *NestedSet[T] {
	return &NestedSet[T]{Direct: direct, Transitive: transitive}
}

// Items flattens s in the given order. Callers needing only a hash should
// prefer Hash, which never materializes the flattened list.
func (s *NestedSet[T]) Items(order Order) []T {
	var out []T
	s.appendItems(&out)
	return out
}

func (s *NestedSet[T]) appendItems(out *[]T) {
	*out = append(*out, s.Direct...)
	for _, child := range s.Transitive {
		child.appendItems(out)
	}
}

// Hash computes H(s) per the action-cache key formula: the SHA-256 over
// direct leaves sorted by path paired with their digest, followed by the
// sorted hashes of each transitive child. The result is memoized on s
// since the same child set is commonly requested by many parents.
func (s *NestedSet[T]) Hash(leaf LeafHasher[T]) string {
	s.hashOnce.Do(func() {
		s.hash = s.computeHash(leaf)
	})
	return s.hash
}

func (s *NestedSet[T]) computeHash(leaf LeafHasher[T]) string {
	type pathDigest struct{ path, digest string }

	pairs := make([]pathDigest, 0, len(s.Direct))
	for _, item := range s.Direct {
		p, d := leaf(item)
		pairs = append(pairs, pathDigest{p, d})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].path < pairs[j].path })

	childHashes := make([]string, 0, len(s.Transitive))
	for _, child := range s.Transitive {
		childHashes = append(childHashes, child.Hash(leaf))
	}
	sort.Strings(childHashes)

	h := sha256.New()
	for _, pd := range pairs {
		fmt.Fprintf(h, "leaf\x00%s\x00%s\n", pd.path, pd.digest)
	}
	for _, ch := range childHashes {
		fmt.Fprintf(h, "child\x00%s\n", ch)
	}
	return hex.EncodeToString(h.Sum(nil))
}
