// Package evaluator implements the incremental, memoizing, keyed evaluation
// graph at the core of the build engine. Every other package in this module
// — the filesystem view, the package loader, the configured-target
// resolver, the action graph builder, and the action executor — is a set of
// Key/Function pairs hosted on top of a single Evaluator instance, so that
// dependency tracking, caching, and re-evaluation on change are implemented
// exactly once.
package evaluator

import "fmt"

// Key identifies a unit of memoized computation in the graph. Two keys that
// compare equal (by Type and String) must always evaluate to the same
// dependency set and, absent external changes, the same Value.
type Key interface {
	// Type names the kind of key, e.g. "FileKey", "ConfiguredTargetKey". It
	// is used for cache-key namespacing, metrics labels, and diagnostics.
	Type() string

	// String returns a stable, human-readable identity for the key within
	// its type, e.g. a file path or a target label.
	String() string
}

// Value is the memoized result of evaluating a Key. Implementations should
// be immutable once returned from a Function; the graph never mutates a
// stored Value in place.
type Value interface{}

// Function computes the Value for a Key, recording any dependencies it
// reads through env. A Function must be deterministic given the recorded
// dependency values: re-running it with the same dependency values must
// produce an equal Value, or the incremental engine's reuse decisions are
// unsound.
type Function func(ctx *Context) (Value, error)

// qualifiedKey is the canonical string form used for node identity and
// maps. It namespaces String() by Type() so keys of different types never
// collide.
func qualifiedKey(k Key) string {
	return fmt.Sprintf("%s:%s", k.Type(), k.String())
}

// SimpleKey is a convenience Key implementation for callers that don't need
// a dedicated type. Most packages define their own Key types instead, so
// that type assertions in Functions are exhaustive and type-safe.
type SimpleKey struct {
	KeyType string
	Name    string
}

// Type implements Key.
func (k SimpleKey) Type() string { return k.KeyType }

// String implements Key.
func (k SimpleKey) String() string { return k.Name }
