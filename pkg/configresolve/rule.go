package configresolve

import (
	"github.com/buildtool/buildtool/pkg/buildconfig"
	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/pkgloader"
)

// ResolvedDeps maps a target's declared dependency label to the configured
// target(s) it resolved to — more than one when the edge carried a split
// transition.
type ResolvedDeps map[string][]ConfiguredTarget

// RuleImplementation computes a configured target's providers. It is a
// pure function of target's attributes, the configuration it is built
// under, and the providers of its already-configured dependencies; any
// observed non-determinism (map iteration order, clock) is a rule bug, per
// spec.md's determinism requirement for provider-set equality.
type RuleImplementation func(ctx *evaluator.Context, target *pkgloader.Target, config buildconfig.Configuration, deps ResolvedDeps) (Providers, error)
