package pkgloader

// Target is one entry in a Package's target map: a rule instance
// produced by calling a rule builtin. A source file that a rule's
// attribute names gets no Target of its own.
type Target struct {
	Name string

	// Label is the target's fully qualified "//dir:name" identity.
	Label string

	// Kind is the rule's registered name (e.g. "go_library").
	Kind string

	// Attrs holds the rule's keyword arguments converted to Go values:
	// nil, bool, int64, float64, string, []interface{}, or
	// map[string]interface{}.
	Attrs map[string]interface{}

	// Deps lists every label this target references through an attribute
	// RuleRegistry names as dependency-shaped for this target's Kind,
	// lexicographically sorted and deduplicated.
	Deps []string
}

// Package is the evaluated form of one package-definition file: the target
// map plus the bookkeeping the loader recorded while building it.
type Package struct {
	Dir string

	// Targets maps target name to its record. Present even for a malformed
	// package (partial target map), per the loader's error contract.
	Targets map[string]*Target

	// Subincludes lists every extension path load()ed while evaluating this
	// package, in load order, deduplicated.
	Subincludes []string

	// Globs records every glob() call observed, for diagnostics and for
	// tests asserting on observed dependency shape.
	Globs []GlobCall

	// Errors is non-nil if the package-definition file failed to parse or
	// execute, or if loading raised an error. The partial Targets/Subincludes/
	// Globs collected up to the point of failure are still populated.
	Errors []error
}

// GlobCall records one call to glob() and the paths it matched, in the
// order observed during evaluation.
type GlobCall struct {
	Include     []string
	Exclude     []string
	ExcludeDirs bool
	Matches     []string
}

func newPackage(dir string) *Package {
	return &Package{
		Dir:     dir,
		Targets: make(map[string]*Target),
	}
}

func (p *Package) addError(err error) {
	p.Errors = append(p.Errors, err)
}

// AlwaysDirty implements evaluator.AlwaysDirty: a package with recorded
// errors is never treated as confirmed-clean, so it is retried on every
// subsequent request rather than going stale once whatever produced the
// error might have gone away.
func (p *Package) AlwaysDirty() bool {
	return len(p.Errors) > 0
}
