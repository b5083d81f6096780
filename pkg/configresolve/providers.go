package configresolve

import (
	"reflect"

	"github.com/buildtool/buildtool/pkg/evaluator"
)

// Providers is the set of typed values a rule implementation (or an
// aspect) attaches to a configured target, keyed by provider name.
type Providers map[string]interface{}

// Equal implements evaluator.Equaler: provider-set comparison for
// invalidation is by structural equality, since rule implementations are
// required to be pure functions of their inputs.
func (p Providers) Equal(other evaluator.Value) bool {
	o, ok := other.(Providers)
	if !ok {
		return false
	}
	return reflect.DeepEqual(map[string]interface{}(p), map[string]interface{}(o))
}

// Has reports whether p carries a provider named name.
func (p Providers) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Merge returns a new Providers set containing p's entries overlaid with
// extra's, leaving both inputs unmodified.
func (p Providers) Merge(extra Providers) Providers {
	merged := make(Providers, len(p)+len(extra))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
