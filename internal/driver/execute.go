package driver

import (
	"context"
	"fmt"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/buildtool/buildtool/pkg/actionexec"
	"github.com/buildtool/buildtool/pkg/actiongraph"
	"github.com/buildtool/buildtool/pkg/artifact"
	"github.com/buildtool/buildtool/pkg/berrors"
	"github.com/buildtool/buildtool/pkg/buildconfig"
	"github.com/buildtool/buildtool/pkg/buildpolicy"
	"github.com/buildtool/buildtool/pkg/configresolve"
	"github.com/buildtool/buildtool/pkg/evaluator"
)

// BuildResult summarizes one Build call's outcome: every action executed
// (in the order its level completed) and the labels that were requested.
type BuildResult struct {
	Labels  []string
	Actions []*actionexec.ExecutionResult
}

// Build analyzes every label in labels under config, collects the actions
// their configured targets declare under ActionsProvider, and executes the
// resulting action graph level by level with bounded parallelism within a
// level — the same shape as the teacher's ParallelScheduler, generalized
// from plan units to actions and from a fixed worker count to
// BuildOptions.Jobs.
func (d *Driver) Build(ctx context.Context, labels []string, config buildconfig.Configuration) (*BuildResult, error) {
	builder := actiongraph.NewBuilder()

	if err := d.analyze(ctx, labels, config, builder); err != nil {
		return nil, err
	}

	graph, err := builder.Graph()
	if err != nil {
		return nil, fmt.Errorf("driver: building action graph: %w", err)
	}

	results, err := d.executeGraph(ctx, graph, builder)
	if err != nil {
		return nil, err
	}

	return &BuildResult{Labels: labels, Actions: results}, nil
}

// analyze evaluates every requested label's configured target (which
// transitively evaluates its dependencies) and registers every action its
// Providers declare with builder. Rule implementations run concurrently
// through the evaluator's own worker pool; this function only needs to
// wait for them and fan their declared actions into one shared Builder.
func (d *Driver) analyze(ctx context.Context, labels []string, config buildconfig.Configuration, builder *actiongraph.Builder) error {
	keys := make([]evaluator.Key, len(labels))
	for i, label := range labels {
		keys[i] = configresolve.ConfiguredTargetKey{Label: label, Configuration: config}
	}

	values, err := d.evaluator.Evaluate(ctx, keys...)
	if err != nil {
		return fmt.Errorf("driver: analyzing %v: %w", labels, err)
	}

	for _, v := range values {
		ct, ok := v.(configresolve.ConfiguredTarget)
		if !ok {
			continue
		}
		if err := registerActions(builder, ct); err != nil {
			return err
		}
	}
	return nil
}

// registerActions flattens the NestedSet a configured target's rule
// implementation declared under ActionsProvider (if any) and registers
// every action in its closure with builder. Since the same dependency's
// action set is reachable from more than one requested label, an action
// already known to builder (by label) is silently skipped rather than
// treated as a conflicting duplicate.
func registerActions(builder *actiongraph.Builder, ct configresolve.ConfiguredTarget) error {
	raw, ok := ct.Providers[ActionsProvider]
	if !ok {
		return nil
	}
	actions, ok := raw.(*actiongraph.NestedSet[*actiongraph.Action])
	if !ok {
		return berrors.NewInternal(fmt.Sprintf("%s: %s provider is not a *actiongraph.NestedSet[*actiongraph.Action]", ct.Label, ActionsProvider), nil)
	}

	// Items lists a set's own actions before its children's, but Builder.Add
	// needs every producing action registered before its consumers, so the
	// set is walked children-first instead.
	var ordered []*actiongraph.Action
	var walk func(s *actiongraph.NestedSet[*actiongraph.Action])
	walk = func(s *actiongraph.NestedSet[*actiongraph.Action]) {
		for _, child := range s.Transitive {
			walk(child)
		}
		ordered = append(ordered, s.Direct...)
	}
	walk(actions)

	for _, action := range ordered {
		if _, known := builder.Action(action.Label); known {
			continue
		}
		if err := builder.Add(action, outputPrefix(action.Outputs)); err != nil {
			return fmt.Errorf("driver: registering actions for %s: %w", ct.Label, err)
		}
	}
	return nil
}

// outputPrefix derives the exec-root-relative directory every one of an
// action's own declared outputs actually falls under, by narrowing a
// running directory down from the first output until every other output's
// directory is contained by it. A rule implementation is free to lay its
// outputs out under the owning package's directory (the conventional
// choice) or flat at the exec root; either way the prefix Builder.Add
// checks against is derived from what the action itself declared, never
// guessed from its label.
func outputPrefix(outputs []artifact.Artifact) string {
	if len(outputs) == 0 {
		return ""
	}

	dir := outputDir(outputs[0].ExecRootPath)
	for _, out := range outputs[1:] {
		dir = commonDir(dir, outputDir(out.ExecRootPath))
	}
	return dir
}

// outputDir returns execRootPath's directory component, normalized to ""
// (rather than path.Dir's ".") for a path with no directory component, so
// it composes directly with strings.HasPrefix.
func outputDir(execRootPath string) string {
	dir := path.Dir(execRootPath)
	if dir == "." {
		return ""
	}
	return dir
}

// commonDir returns the longest of a's ancestor directories (including a
// itself) that contains b as a subpath.
func commonDir(a, b string) string {
	for a != "" && !strings.HasPrefix(b+"/", a+"/") {
		a = outputDir(a)
	}
	return a
}

// executeGraph runs graph level by level. Within a level, up to
// d.Options.Jobs (or runtime-determined default baked into the evaluator's
// worker count when Jobs is unset) actions execute concurrently over a
// bounded worker pool, mirroring the teacher's executeLevelParallel:
// a closed, pre-loaded work channel drained by a fixed goroutine count,
// errors collected on a buffered channel and joined after the WaitGroup.
func (d *Driver) executeGraph(ctx context.Context, graph *actiongraph.Graph, builder *actiongraph.Builder) ([]*actionexec.ExecutionResult, error) {
	var all []*actionexec.ExecutionResult

	for level, labels := range graph.Levels {
		if len(labels) == 0 {
			continue
		}

		results, err := d.executeLevel(ctx, labels, builder)
		all = append(all, results...)
		if err != nil {
			if !d.Options.KeepGoing {
				return all, fmt.Errorf("driver: level %d failed: %w", level, err)
			}
			d.logger.WithError(err).Warnf("level %d had failures, continuing past them (--keep_going)", level)
		}

		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}
	}

	return all, nil
}

func (d *Driver) executeLevel(ctx context.Context, labels []string, builder *actiongraph.Builder) ([]*actionexec.ExecutionResult, error) {
	workers := d.Options.Jobs
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(labels) {
		workers = len(labels)
	}

	workQueue := make(chan string, len(labels))
	for _, label := range labels {
		workQueue <- label
	}
	close(workQueue)

	resultsCh := make(chan *actionexec.ExecutionResult, len(labels))
	errCh := make(chan error, len(labels))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for label := range workQueue {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}

				result, err := d.executeOne(ctx, label, builder)
				if err != nil {
					errCh <- fmt.Errorf("action %s: %w", label, err)
					continue
				}
				resultsCh <- result
			}
		}()
	}

	wg.Wait()
	close(resultsCh)
	close(errCh)

	var results []*actionexec.ExecutionResult
	for r := range resultsCh {
		results = append(results, r)
	}

	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}

	return results, firstErr
}

// executeOne runs the action registered under label through the policy
// engine and then the action executor, recording its outputs in the
// artifact registry so later levels can resolve them as inputs.
func (d *Driver) executeOne(ctx context.Context, label string, builder *actiongraph.Builder) (*actionexec.ExecutionResult, error) {
	action, ok := builder.Action(label)
	if !ok {
		return nil, berrors.NewInternal(fmt.Sprintf("action %s vanished from the builder between graph computation and execution", label), nil)
	}

	policyResult, err := d.policy.Evaluate(ctx, buildpolicy.ActionInput{
		Label:         action.Label,
		Mnemonic:      action.Mnemonic,
		EnvAllowlist:  action.EnvAllowlist,
		DiskCachePath: d.Options.DiskCachePath,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluating policy: %w", err)
	}
	if !policyResult.Allowed {
		return nil, berrors.New(berrors.ClassPermanent, fmt.Sprintf("action %s denied by policy: %v", label, policyResult.Violations), nil)
	}

	result, err := d.executor.Execute(ctx, action)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return result, berrors.New(berrors.ClassTransient, fmt.Sprintf("action %s exited %d", label, result.ExitCode), nil).
			WithResource(label).WithDetail("stderr", result.Stderr)
	}

	d.artifacts.record(result.Outputs)
	return result, nil
}
