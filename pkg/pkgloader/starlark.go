package pkgloader

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/buildtool/buildtool/pkg/evaluator"
)

// RuleRegistry names the rule kinds the loader recognizes, mapping a rule
// name (e.g. "go_library") to the attribute names that hold dependency
// labels (e.g. "deps", "srcs") for that rule. A rule name absent from the
// registry is still accepted; none of its attributes are treated as
// dependency-shaped.
type RuleRegistry map[string][]string

// MarkerFile is the name of the file that marks a directory as the root of
// a package, matching the package loader's and the glob engine's notion of
// package-subtree boundaries.
const MarkerFile = "BUILD.star"

// interp evaluates one package-definition file, recording globs and loads
// observed as it executes, for the duration of a single evalPackage call.
type interp struct {
	ctx     *evaluator.Context
	pkg     *Package
	rules   RuleRegistry
	globber *globber
}

// newInterp creates an interpreter for a package-definition (or extension)
// file rooted at relDir, a workspace-relative path used for target
// identity, with absDir the same directory resolved against the workspace
// root, used to actually walk the filesystem via fsview.
func newInterp(ctx *evaluator.Context, relDir, absDir string, rules RuleRegistry) *interp {
	return &interp{
		ctx:     ctx,
		pkg:     newPackage(relDir),
		rules:   rules,
		globber: newGlobber(ctx, absDir, MarkerFile),
	}
}

// predeclared builds the Starlark globals common to both package-definition
// and extension evaluation: struct(), glob(), every registered rule, and
// any host-supplied constants.
func (it *interp) predeclared(constants map[string]interface{}) (starlark.StringDict, error) {
	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
		"glob":   starlark.NewBuiltin("glob", it.builtinGlob),
	}
	for name := range it.rules {
		name := name
		predeclared[name] = starlark.NewBuiltin(name, it.builtinRule(name))
	}
	for name, v := range constants {
		sv, err := toStarlarkValue(v)
		if err != nil {
			return nil, fmt.Errorf("constant %s: %w", name, err)
		}
		predeclared[name] = sv
	}
	return predeclared, nil
}

func evalPackage(ctx *evaluator.Context, relDir, absDir, source string, rules RuleRegistry, constants map[string]interface{}) *Package {
	it := newInterp(ctx, relDir, absDir, rules)
	pkg := it.pkg

	predeclared, err := it.predeclared(constants)
	if err != nil {
		pkg.addError(err)
		return pkg
	}

	thread := &starlark.Thread{
		Name: "pkgloader",
		Print: func(_ *starlark.Thread, _ string) {
			// Package-definition files don't print to build output.
		},
		Load: it.load,
	}

	filename := fmt.Sprintf("%s/%s", relDir, MarkerFile)
	if _, err := starlark.ExecFile(thread, filename, source, predeclared); err != nil {
		pkg.addError(fmt.Errorf("evaluating %s: %w", filename, err))
	}

	return pkg
}

// builtinRule returns a Starlark builtin for one rule kind. Calling it adds
// a Target to the package; "name" is required and must be unique within the
// package.
func (it *interp) builtinRule(kind string) func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: only keyword arguments are accepted", kind)
		}

		attrs := make(map[string]interface{}, len(kwargs))
		for _, kv := range kwargs {
			key, ok := starlark.AsString(kv[0])
			if !ok {
				key = kv[0].String()
			}
			v, err := fromStarlarkValue(kv[1])
			if err != nil {
				return nil, fmt.Errorf("%s: attribute %s: %w", kind, key, err)
			}
			attrs[key] = v
		}

		name, _ := attrs["name"].(string)
		if name == "" {
			it.pkg.addError(fmt.Errorf("%s: missing required attribute \"name\"", kind))
			return starlark.None, nil
		}
		if _, exists := it.pkg.Targets[name]; exists {
			it.pkg.addError(fmt.Errorf("target %q defined more than once", name))
			return starlark.None, nil
		}

		depAttrs := it.rules[kind]
		target := &Target{Name: name, Label: qualifiedTarget(it.pkg.Dir, name), Kind: kind, Attrs: attrs}
		target.Deps = collectDeps(attrs, depAttrs)
		it.pkg.Targets[name] = target

		return starlark.None, nil
	}
}

// collectDeps extracts the labels named by depAttrs from attrs, in a
// deterministic order, deduplicated.
func collectDeps(attrs map[string]interface{}, depAttrs []string) []string {
	seen := make(map[string]bool)
	var deps []string
	for _, attrName := range depAttrs {
		v, ok := attrs[attrName]
		if !ok {
			continue
		}
		for _, label := range labelsIn(v) {
			if seen[label] {
				continue
			}
			seen[label] = true
			deps = append(deps, label)
		}
	}
	sort.Strings(deps)
	return deps
}

func labelsIn(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []interface{}:
		var out []string
		for _, item := range val {
			out = append(out, labelsIn(item)...)
		}
		return out
	default:
		return nil
	}
}

// builtinGlob implements glob(include, exclude=[], exclude_directories=True).
func (it *interp) builtinGlob(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var include *starlark.List
	var exclude *starlark.List
	excludeDirectories := true

	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"include", &include,
		"exclude?", &exclude,
		"exclude_directories?", &excludeDirectories,
	); err != nil {
		return nil, err
	}

	includePatterns, err := stringList(include)
	if err != nil {
		return nil, fmt.Errorf("glob: include: %w", err)
	}
	excludePatterns, err := stringList(exclude)
	if err != nil {
		return nil, fmt.Errorf("glob: exclude: %w", err)
	}

	matches, err := it.globber.glob(includePatterns, excludePatterns, excludeDirectories)
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}

	it.pkg.Globs = append(it.pkg.Globs, GlobCall{
		Include:     includePatterns,
		Exclude:     excludePatterns,
		ExcludeDirs: excludeDirectories,
		Matches:     matches,
	})

	list := make([]starlark.Value, len(matches))
	for i, m := range matches {
		list[i] = starlark.String(m)
	}
	return starlark.NewList(list), nil
}

func stringList(l *starlark.List) ([]string, error) {
	if l == nil {
		return nil, nil
	}
	out := make([]string, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		s, ok := starlark.AsString(l.Index(i))
		if !ok {
			return nil, fmt.Errorf("element %d is not a string", i)
		}
		out = append(out, s)
	}
	return out, nil
}

// load resolves a load() statement to another package-definition's exported
// environment, requesting an ExtensionKey so that the dependency is
// recorded in the graph and a circular load surfaces as the evaluator's
// ordinary cycle error.
func (it *interp) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	it.pkg.Subincludes = appendUnique(it.pkg.Subincludes, module)

	v, err := it.ctx.Request(ExtensionKey{Path: module})
	if err != nil {
		return nil, err
	}
	env, ok := v.(starlark.StringDict)
	if !ok {
		return nil, fmt.Errorf("load %q: extension did not evaluate to an environment", module)
	}
	return env, nil
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
