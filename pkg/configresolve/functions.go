package configresolve

import (
	"fmt"

	"github.com/buildtool/buildtool/pkg/artifact"
	"github.com/buildtool/buildtool/pkg/berrors"
	"github.com/buildtool/buildtool/pkg/buildconfig"
	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/pkgloader"
)

// Resolver registers the ConfiguredTargetKey and AspectKey Functions on an
// Evaluator that already has a pkgloader.Loader registered against it.
type Resolver struct {
	// Implementations maps a rule kind (e.g. "go_library") to the function
	// that computes its providers.
	Implementations map[string]RuleImplementation

	// Transitions maps a rule kind to the Transition applied to every
	// dependency edge declared by a target of that kind. A kind absent
	// from this map propagates the parent configuration unchanged.
	Transitions map[string]Transition

	// Aspects maps an aspect name to its definition, for edges that
	// request it.
	Aspects map[string]Aspect
}

// New creates a Resolver. Any of the three maps may be nil.
func New(implementations map[string]RuleImplementation, transitions map[string]Transition, aspects map[string]Aspect) *Resolver {
	if implementations == nil {
		implementations = map[string]RuleImplementation{}
	}
	if transitions == nil {
		transitions = map[string]Transition{}
	}
	if aspects == nil {
		aspects = map[string]Aspect{}
	}
	return &Resolver{Implementations: implementations, Transitions: transitions, Aspects: aspects}
}

// Register binds ConfiguredTargetKey and AspectKey functions on ev.
func (r *Resolver) Register(ev *evaluator.Evaluator) {
	ev.Register("ConfiguredTargetKey", r.evaluateConfiguredTarget)
	ev.Register("AspectKey", r.evaluateAspect)
}

func (r *Resolver) evaluateConfiguredTarget(ctx *evaluator.Context) (evaluator.Value, error) {
	key, ok := ctx.Key().(ConfiguredTargetKey)
	if !ok {
		return nil, fmt.Errorf("configresolve: unexpected key type %T", ctx.Key())
	}

	dir, name, err := ParseLabel(key.Label)
	if err != nil {
		return nil, berrors.NewPermanent("invalid label", err).WithResource(key.Label)
	}

	pkg, err := r.requestPackage(ctx, dir)
	if err != nil {
		return nil, err
	}
	if len(pkg.Errors) > 0 {
		return nil, berrors.NewPermanent("package has errors", pkg.Errors[0]).
			WithResource(key.Label).WithOperation("configure")
	}

	target, ok := pkg.Targets[name]
	if !ok {
		// No rule declares this name: it is a bare reference to a source
		// file, which carries no configuration of its own.
		return ConfiguredTarget{
			Label:      key.Label,
			ConfigHash: key.ConfigHash(),
			Providers: Providers{
				"DefaultInfo": artifact.NewSourceArtifact(sourcePath(dir, name)),
			},
		}, nil
	}

	impl, ok := r.Implementations[target.Kind]
	if !ok {
		return nil, berrors.NewPermanent(fmt.Sprintf("no rule implementation registered for kind %q", target.Kind), nil).
			WithResource(key.Label)
	}

	deps, err := r.resolveDeps(ctx, target, key.Configuration)
	if err != nil {
		return nil, err
	}

	providers, err := impl(ctx, target, key.Configuration, deps)
	if err != nil {
		return nil, fmt.Errorf("configuring %s: %w", key.Label, err)
	}

	return ConfiguredTarget{Label: key.Label, ConfigHash: key.ConfigHash(), Providers: providers}, nil
}

// resolveDeps resolves every label target declares as a dependency into
// its configured target(s), applying the requesting kind's registered
// transition (if any) and any aspects requested along the way.
func (r *Resolver) resolveDeps(ctx *evaluator.Context, target *pkgloader.Target, parent buildconfig.Configuration) (ResolvedDeps, error) {
	deps := make(ResolvedDeps, len(target.Deps))

	for _, depLabel := range target.Deps {
		dependency, err := r.classifyDependency(ctx, target.Kind, depLabel, parent)
		if err != nil {
			return nil, err
		}

		resolved, err := dependency.Resolve(parent)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", depLabel, err)
		}

		for _, rd := range resolved {
			depVal, err := ctx.Request(rd.Key)
			if err != nil {
				return nil, fmt.Errorf("requesting %s: %w", rd.Key, err)
			}
			depCT, ok := depVal.(ConfiguredTarget)
			if !ok {
				return nil, berrors.NewInternal(fmt.Sprintf("dependency %s did not resolve to a ConfiguredTarget", rd.Key), nil)
			}

			for _, aspectName := range rd.Aspects {
				depCT, err = r.applyAspect(ctx, aspectName, rd.Key, depCT)
				if err != nil {
					return nil, err
				}
			}

			deps[depLabel] = append(deps[depLabel], depCT)
		}
	}

	return deps, nil
}

// classifyDependency decides whether depLabel is a source-file reference
// (null configuration) or a rule target (explicit or transitioned
// configuration), by loading its owning package.
func (r *Resolver) classifyDependency(ctx *evaluator.Context, requestingKind, depLabel string, parent buildconfig.Configuration) (Dependency, error) {
	depDir, depName, err := ParseLabel(depLabel)
	if err != nil {
		return Dependency{}, berrors.NewPermanent("invalid dependency label", err).WithResource(depLabel)
	}

	pkg, err := r.requestPackage(ctx, depDir)
	if err != nil {
		return Dependency{}, err
	}

	if _, isRule := pkg.Targets[depName]; !isRule {
		return Dependency{Kind: DependencyNullConfig, Label: depLabel}, nil
	}

	if transition, ok := r.Transitions[requestingKind]; ok {
		return Dependency{Kind: DependencyTransition, Label: depLabel, Transition: transition}, nil
	}
	return Dependency{Kind: DependencyExplicit, Label: depLabel, Configuration: parent}, nil
}

func (r *Resolver) applyAspect(ctx *evaluator.Context, name string, target ConfiguredTargetKey, ct ConfiguredTarget) (ConfiguredTarget, error) {
	aspect, ok := r.Aspects[name]
	if !ok {
		return ct, nil
	}
	if !aspect.AppliesTo(ct) {
		// Missing providers silently drop the aspect: rules commonly
		// over-approximate their provider declarations.
		return ct, nil
	}

	v, err := ctx.Request(AspectKey{Name: name, Target: target})
	if err != nil {
		return ct, fmt.Errorf("applying aspect %s to %s: %w", name, target, err)
	}
	extra, ok := v.(Providers)
	if !ok {
		return ct, berrors.NewInternal(fmt.Sprintf("aspect %s did not resolve to Providers", name), nil)
	}

	ct.Providers = ct.Providers.Merge(extra)
	return ct, nil
}

func (r *Resolver) evaluateAspect(ctx *evaluator.Context) (evaluator.Value, error) {
	key, ok := ctx.Key().(AspectKey)
	if !ok {
		return nil, fmt.Errorf("configresolve: unexpected key type %T", ctx.Key())
	}

	aspect, ok := r.Aspects[key.Name]
	if !ok {
		return nil, berrors.NewPermanent(fmt.Sprintf("unknown aspect %q", key.Name), nil)
	}

	v, err := ctx.Request(key.Target)
	if err != nil {
		return nil, err
	}
	ct, ok := v.(ConfiguredTarget)
	if !ok {
		return nil, berrors.NewInternal("aspect target did not resolve to a ConfiguredTarget", nil)
	}

	if !aspect.AppliesTo(ct) {
		return Providers{}, nil
	}

	for _, required := range aspect.RequiredAspects {
		if _, err := ctx.Request(AspectKey{Name: required, Target: key.Target}); err != nil {
			return nil, fmt.Errorf("required aspect %s: %w", required, err)
		}
	}

	providers, err := aspect.Apply(ctx, ct)
	if err != nil {
		return nil, fmt.Errorf("aspect %s: %w", key.Name, err)
	}
	return providers, nil
}

func (r *Resolver) requestPackage(ctx *evaluator.Context, dir string) (*pkgloader.Package, error) {
	v, err := ctx.Request(pkgloader.PackageKey{Dir: dir})
	if err != nil {
		return nil, fmt.Errorf("loading package %s: %w", dir, err)
	}
	pkg, ok := v.(*pkgloader.Package)
	if !ok {
		return nil, berrors.NewInternal(fmt.Sprintf("PackageKey %s did not resolve to a *Package", dir), nil)
	}
	return pkg, nil
}
