package evaluator

import "reflect"

// Equaler is implemented by Value types that have a cheaper-than-reflection
// equality check, e.g. comparing a content digest instead of deep-comparing
// a whole tree. Types that don't implement it fall back to
// reflect.DeepEqual, which is correct but can be costly for large values.
type Equaler interface {
	Equal(other Value) bool
}

// valuesEqual implements the "structural equality" comparison the
// evaluator uses to decide whether a recomputed value actually changed.
func valuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if eq, ok := a.(Equaler); ok {
		return eq.Equal(b)
	}
	return reflect.DeepEqual(a, b)
}

// AlwaysDirty may be implemented by a Value to report that its node should
// never be treated as confirmed-clean even though its own Function returned
// successfully, forcing a rerun on every subsequent request regardless of
// whether the dep set actually changed. Intended for values that are
// themselves data-carriers of a partial failure (e.g. a Package with
// recorded errors): the failure is a first-class part of the value rather
// than a Go error, but it must not be allowed to go stale.
type AlwaysDirty interface {
	AlwaysDirty() bool
}
