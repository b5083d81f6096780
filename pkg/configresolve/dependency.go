package configresolve

import (
	"fmt"
	"sort"

	"github.com/buildtool/buildtool/pkg/buildconfig"
)

// DependencyKind discriminates a Dependency's variant.
type DependencyKind string

const (
	// DependencyNullConfig is a dependency on a source file or a visibility
	// reference: it carries no build configuration.
	DependencyNullConfig DependencyKind = "null_config"

	// DependencyExplicit is a direct build of a final edge under a fully
	// specified Configuration.
	DependencyExplicit DependencyKind = "explicit"

	// DependencyTransition computes the child configuration(s) by applying
	// a Transition to the parent configuration.
	DependencyTransition DependencyKind = "transition"
)

// Transition is a pure function from a parent configuration to one or more
// child configurations. A single-entry result models identity or patching;
// a multi-entry result, keyed by transition tag, models a split.
type Transition func(parent buildconfig.Configuration) (map[string]buildconfig.Configuration, error)

// Dependency is one edge in the configured-target graph: (label,
// configuration-or-transition, optional aspect set).
type Dependency struct {
	Kind DependencyKind

	Label string

	// Configuration is meaningful only for DependencyExplicit.
	Configuration buildconfig.Configuration

	// Transition is meaningful only for DependencyTransition.
	Transition Transition

	// Aspects names the aspects requested along this edge, applied to
	// whichever configured target(s) it resolves to.
	Aspects []string
}

// ResolvedDependency is one concrete (label, configuration) edge produced
// by resolving a Dependency. A DependencyTransition with a multi-entry
// split produces one ResolvedDependency per branch, tagged by
// TransitionKey.
type ResolvedDependency struct {
	Key ConfiguredTargetKey

	// TransitionKey is the split branch tag, or "" for a non-split
	// resolution.
	TransitionKey string

	Aspects []string
}

// Resolve computes the ConfiguredTargetKey(s) dep reaches given the
// requesting target's own parent configuration. Two edges that resolve to
// the same (label, configuration) converge on the identical
// ConfiguredTargetKey, since the key's identity is purely (label, config
// hash).
func (dep Dependency) Resolve(parent buildconfig.Configuration) ([]ResolvedDependency, error) {
	switch dep.Kind {
	case DependencyNullConfig:
		return []ResolvedDependency{{
			Key:     ConfiguredTargetKey{Label: dep.Label},
			Aspects: dep.Aspects,
		}}, nil

	case DependencyExplicit:
		return []ResolvedDependency{{
			Key:     ConfiguredTargetKey{Label: dep.Label, Configuration: dep.Configuration},
			Aspects: dep.Aspects,
		}}, nil

	case DependencyTransition:
		if dep.Transition == nil {
			return nil, fmt.Errorf("dependency %s: transition kind requires a Transition function", dep.Label)
		}
		children, err := dep.Transition(parent)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: transition: %w", dep.Label, err)
		}
		if len(children) == 0 {
			return nil, fmt.Errorf("dependency %s: transition returned no child configurations", dep.Label)
		}

		tags := make([]string, 0, len(children))
		for tag := range children {
			tags = append(tags, tag)
		}
		sort.Strings(tags)

		resolved := make([]ResolvedDependency, 0, len(tags))
		for _, tag := range tags {
			resolved = append(resolved, ResolvedDependency{
				Key:           ConfiguredTargetKey{Label: dep.Label, Configuration: children[tag]},
				TransitionKey: tag,
				Aspects:       dep.Aspects,
			})
		}
		return resolved, nil

	default:
		return nil, fmt.Errorf("dependency %s: unknown kind %q", dep.Label, dep.Kind)
	}
}

// IdentityTransition returns a Transition that passes the parent
// configuration through unchanged, the "identity" case of a
// DependencyTransition edge.
func IdentityTransition() Transition {
	return func(parent buildconfig.Configuration) (map[string]buildconfig.Configuration, error) {
		return map[string]buildconfig.Configuration{"": parent}, nil
	}
}
