// Package driver wires the evaluator, filesystem view, package loader,
// configured-target resolver, action graph builder, policy engine, and
// action executor into the single pipeline cmd/buildtool drives: label(s)
// in, executed action outputs out. It owns no domain rule set of its own
// (spec.md scopes the concrete rule set out) — callers supply the
// pkgloader.RuleRegistry and configresolve.RuleImplementations their
// workspace's package-definition files actually use.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/buildtool/buildtool/pkg/actionexec"
	"github.com/buildtool/buildtool/pkg/actionexec/cache"
	"github.com/buildtool/buildtool/pkg/actionexec/spawn"
	"github.com/buildtool/buildtool/pkg/buildconfig"
	"github.com/buildtool/buildtool/pkg/buildpolicy"
	"github.com/buildtool/buildtool/pkg/configresolve"
	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/fsview"
	"github.com/buildtool/buildtool/pkg/pkgloader"
	"github.com/buildtool/buildtool/pkg/telemetry"
)

// ActionsProvider is the provider name a rule implementation attaches its
// declared actions under, as a *actiongraph.NestedSet[*actiongraph.Action]
// whose Direct items are the target's own actions and whose Transitive
// children are the ActionsInfo sets of the dependencies it read out of
// its ResolvedDeps — the same direct-plus-transitive accumulation
// discipline actiongraph.NestedSet already gives input sets, reused here
// so the driver can recover a label's whole action closure by evaluating
// only that one top-level configured target, without re-walking the
// dependency graph itself. A rule that builds no actions (a pure metadata
// target) simply omits the provider.
const ActionsProvider = "ActionsInfo"

// Rules bundles the workspace-specific pieces a Driver has no opinion
// about: which attribute names each rule kind's dependencies live under,
// how each kind computes its providers, and any configuration transitions
// or aspects those rules request.
type Rules struct {
	Registry        pkgloader.RuleRegistry
	Implementations map[string]configresolve.RuleImplementation
	Transitions     map[string]configresolve.Transition
	Aspects         map[string]configresolve.Aspect
}

// Driver is a fully wired build pipeline rooted at one workspace directory.
type Driver struct {
	WorkspaceRoot string
	ExecRoot      string
	Options       buildconfig.BuildOptions

	evaluator   *evaluator.Evaluator
	resolver    *configresolve.Resolver
	policy      *buildpolicy.Engine
	executor    *actionexec.Executor
	actionCache cache.Cache
	artifacts   *artifactRegistry
	logger      *telemetry.Logger
}

// New constructs a Driver, opening the on-disk action cache at
// opts.DiskCachePath (or a default under workspaceRoot/.buildtool-cache
// when unset) and registering the evaluator functions every build needs.
func New(ctx context.Context, workspaceRoot string, opts buildconfig.BuildOptions, rules Rules, logger *telemetry.Logger) (*Driver, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}

	workers := opts.Jobs
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ev := evaluator.New(evaluator.Options{Workers: workers})
	fsview.New(nil).Register(ev)
	pkgloader.New(workspaceRoot, rules.Registry).Register(ev)

	resolver := configresolve.New(rules.Implementations, rules.Transitions, rules.Aspects)
	resolver.Register(ev)

	policyEngine, err := buildpolicy.NewEngine(logger)
	if err != nil {
		return nil, fmt.Errorf("driver: building policy engine: %w", err)
	}

	diskCachePath := opts.DiskCachePath
	if diskCachePath == "" {
		diskCachePath = filepath.Join(workspaceRoot, ".buildtool-cache", "actions.db")
	}
	if err := os.MkdirAll(filepath.Dir(diskCachePath), 0o755); err != nil {
		return nil, fmt.Errorf("driver: preparing action cache directory: %w", err)
	}
	actionCache, err := cache.Open(ctx, cache.Config{Path: diskCachePath})
	if err != nil {
		return nil, fmt.Errorf("driver: opening action cache: %w", err)
	}

	execRoot := filepath.Join(workspaceRoot, ".buildtool-cache", "execroot")
	if err := os.MkdirAll(execRoot, 0o755); err != nil {
		_ = actionCache.Close()
		return nil, fmt.Errorf("driver: preparing execution root: %w", err)
	}

	blobRoot := filepath.Join(workspaceRoot, ".buildtool-cache", "cas")
	blobs, err := cache.NewDirBlobStore(blobRoot)
	if err != nil {
		_ = actionCache.Close()
		return nil, fmt.Errorf("driver: preparing blob store: %w", err)
	}

	artifacts := newArtifactRegistry()

	executor := actionexec.New(actionexec.Config{
		Cache:    actionCache,
		Blobs:    blobs,
		Stager:   spawn.SymlinkStager{},
		Runner:   spawn.NewLocalRunner(),
		Resolve:  artifacts.resolver(workspaceRoot, blobs),
		Digest:   artifacts.digester(ev, workspaceRoot),
		ExecRoot: execRoot,
		Logger:   logger,
	})

	return &Driver{
		WorkspaceRoot: workspaceRoot,
		ExecRoot:      execRoot,
		Options:       opts,
		evaluator:     ev,
		resolver:      resolver,
		policy:        policyEngine,
		executor:      executor,
		actionCache:   actionCache,
		artifacts:     artifacts,
		logger:        logger.NewComponentLogger("driver"),
	}, nil
}

// Close releases the Driver's held resources (the action cache's database
// handle).
func (d *Driver) Close() error {
	return d.actionCache.Close()
}
