package configresolve

import "github.com/buildtool/buildtool/pkg/evaluator"

// Aspect is a second-order computation: a function applied to an
// already-configured target that adds providers, independent of the rule
// implementation that produced the target's own providers.
type Aspect struct {
	Name string

	// Requires lists the provider names that must already be present on
	// the underlying configured target for this aspect to apply. A
	// missing provider silently drops the aspect rather than erroring,
	// since rules commonly over-approximate their provider declarations.
	Requires []string

	// RequiredAspects names other aspects that must be applied to the same
	// target first; Apply is responsible for requesting their AspectKeys
	// if it needs their output.
	RequiredAspects []string

	// Apply computes the providers this aspect adds. target is the
	// underlying configured target's resolved value.
	Apply func(ctx *evaluator.Context, target ConfiguredTarget) (Providers, error)
}

// AppliesTo reports whether every provider a requires is present on ct.
func (a Aspect) AppliesTo(ct ConfiguredTarget) bool {
	for _, name := range a.Requires {
		if !ct.Providers.Has(name) {
			return false
		}
	}
	return true
}
