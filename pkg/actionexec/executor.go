// Package actionexec turns an actiongraph.Action into a completed,
// digested set of output artifacts: looking it up in the action cache
// first, and only staging an execution root and spawning it when no cached
// record exists for its action_key.
package actionexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/buildtool/buildtool/pkg/actiongraph"
	"github.com/buildtool/buildtool/pkg/actionexec/cache"
	"github.com/buildtool/buildtool/pkg/actionexec/spawn"
	"github.com/buildtool/buildtool/pkg/artifact"
	"github.com/buildtool/buildtool/pkg/telemetry"
)

// ExecutionResult is a completed action's outcome, whether it came from the
// action cache or from a fresh run.
type ExecutionResult struct {
	ActionKey string
	Outputs   []artifact.Artifact
	CacheHit  bool
	ExitCode  int
	Stdout    string
	Stderr    string
}

// Config wires an Executor's collaborators.
type Config struct {
	Cache    cache.Cache
	Blobs    cache.BlobStore
	Stager   spawn.Stager
	Runner   spawn.Runner
	Resolve  spawn.InputResolver
	Digest   InputDigester
	ExecRoot string
	Logger   *telemetry.Logger
}

// Executor runs actions against a cache-first protocol. At most one
// execution is ever in flight for a given action_key at a time; concurrent
// callers requesting the same action_key share the one in-flight run's
// result rather than racing to spawn it twice.
type Executor struct {
	cache    cache.Cache
	blobs    cache.BlobStore
	stager   spawn.Stager
	runner   spawn.Runner
	resolve  spawn.InputResolver
	digest   InputDigester
	execRoot string
	logger   *telemetry.Logger

	group singleflight.Group
}

func New(cfg Config) *Executor {
	return &Executor{
		cache:    cfg.Cache,
		blobs:    cfg.Blobs,
		stager:   cfg.Stager,
		runner:   cfg.Runner,
		resolve:  cfg.Resolve,
		digest:   cfg.Digest,
		execRoot: cfg.ExecRoot,
		logger:   cfg.Logger.NewComponentLogger("actionexec"),
	}
}

// Execute runs action, or rehydrates its result from the action cache. Its
// cache key is computed from a copy of action whose input digests are
// freshly resolved (see resolveInputs); staging and spawning still use the
// original action, since those only need input paths, not digests.
func (e *Executor) Execute(ctx context.Context, action *actiongraph.Action) (*ExecutionResult, error) {
	keyAction := action
	if e.digest != nil && action.Inputs != nil {
		resolved, err := resolveInputs(ctx, action.Inputs, e.digest)
		if err != nil {
			return nil, fmt.Errorf("action executor: resolving inputs for %s: %w", action.Label, err)
		}
		keyAction = &actiongraph.Action{
			Label:        action.Label,
			Mnemonic:     action.Mnemonic,
			EnvAllowlist: action.EnvAllowlist,
			Argv:         action.Argv,
			SpawnSpec:    action.SpawnSpec,
			Inputs:       resolved,
			Outputs:      action.Outputs,
		}
	}

	key := ActionKey(keyAction)
	logger := e.logger.WithActionKey(key)

	v, err, shared := e.group.Do(key, func() (interface{}, error) {
		return e.executeUncached(ctx, action, key)
	})
	if err != nil {
		return nil, err
	}

	result := v.(*ExecutionResult)
	if shared {
		logger.Debugf("joined in-flight execution of %s", action.Label)
	}
	return result, nil
}

func (e *Executor) executeUncached(ctx context.Context, action *actiongraph.Action, key string) (*ExecutionResult, error) {
	logger := e.logger.WithActionKey(key)

	if record, hit, err := e.cache.Lookup(ctx, key); err != nil {
		logger.WithError(err).Warnf("action cache lookup failed for %s, treating as miss", action.Label)
	} else if hit {
		outputs, stale, err := e.rehydrate(ctx, action, record)
		if err != nil {
			return nil, err
		}
		if stale {
			logger.Debugf("cache record for %s references a blob no longer in the store, re-executing", action.Label)
		} else {
			logger.Debugf("cache hit for %s", action.Label)
			return &ExecutionResult{ActionKey: key, Outputs: outputs, CacheHit: true, ExitCode: 0}, nil
		}
	}

	logger.Debugf("cache miss for %s, executing", action.Label)
	return e.run(ctx, action, key)
}

// rehydrate resolves action's outputs from a cache record. It reports
// stale=true, with no error, when the record is structurally fine but one
// of its outputs' blobs is no longer present in the blob store (e.g.
// actions.db outlived cas/) — the caller should treat that the same as a
// cache miss rather than hand a consumer an output it can't materialize.
func (e *Executor) rehydrate(ctx context.Context, action *actiongraph.Action, record *cache.Record) ([]artifact.Artifact, bool, error) {
	byPath := make(map[string]artifact.Digest, len(record.Outputs))
	for _, out := range record.Outputs {
		byPath[out.Path] = out.Digest
	}

	resolved := make([]artifact.Artifact, 0, len(action.Outputs))
	for _, out := range action.Outputs {
		digest, ok := byPath[out.ExecRootPath]
		if !ok {
			return nil, false, fmt.Errorf("action cache: record for %s missing output %s", action.Label, out.ExecRootPath)
		}
		if e.blobs != nil {
			if _, present, err := e.blobs.Path(ctx, digest); err != nil {
				return nil, false, fmt.Errorf("action cache: checking blob store for %s: %w", out.ExecRootPath, err)
			} else if !present {
				return nil, true, nil
			}
		}
		resolved = append(resolved, out.WithDigest(digest))
	}
	return resolved, false, nil
}

func (e *Executor) run(ctx context.Context, action *actiongraph.Action, key string) (*ExecutionResult, error) {
	root := filepath.Join(e.execRoot, key)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("action executor: creating execution root for %s: %w", action.Label, err)
	}
	defer os.RemoveAll(root)

	var inputs []artifact.Artifact
	if action.Inputs != nil {
		inputs = action.Inputs.Items(actiongraph.OrderStable)
	}
	if err := e.stager.Stage(ctx, root, inputs, e.resolve); err != nil {
		return nil, fmt.Errorf("action executor: staging %s: %w", action.Label, err)
	}

	req := spawn.RunRequest{
		Root:    root,
		Argv:    action.Argv,
		Env:     allowlistedEnv(action.EnvAllowlist),
		Timeout: 0,
	}
	if action.SpawnSpec != nil {
		req.SpawnTool = action.SpawnSpec.Tool
		req.SpawnArgs = action.SpawnSpec.Args
	}

	result, err := e.runner.Run(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("action executor: running %s: %w", action.Label, err)
	}

	if result.ExitCode != 0 {
		return &ExecutionResult{
			ActionKey: key,
			ExitCode:  result.ExitCode,
			Stdout:    result.Stdout,
			Stderr:    result.Stderr,
		}, nil
	}

	harvested, err := e.stager.Harvest(ctx, root, action.Outputs)
	if err != nil {
		return nil, fmt.Errorf("action executor: harvesting outputs of %s: %w", action.Label, err)
	}

	if e.blobs != nil {
		if err := e.persistBlobs(ctx, root, harvested); err != nil {
			return nil, fmt.Errorf("action executor: persisting outputs of %s: %w", action.Label, err)
		}
	}

	record := &cache.Record{
		ActionKey: key,
		CreatedAt: time.Now().UTC(),
	}
	for _, out := range harvested {
		record.Outputs = append(record.Outputs, cache.OutputEntry{Path: out.ExecRootPath, Digest: out.Digest})
	}
	if err := e.cache.Store(ctx, record); err != nil {
		e.logger.WithActionKey(key).WithError(err).Warnf("failed to store action cache record for %s", action.Label)
	}

	return &ExecutionResult{
		ActionKey: key,
		Outputs:   harvested,
		ExitCode:  0,
		Stdout:    result.Stdout,
		Stderr:    result.Stderr,
	}, nil
}

// persistBlobs copies every harvested output into the content-addressed
// blob store before root is torn down, so a later action that consumes one
// of these outputs as an input can fetch it by digest rather than by a
// path that only existed for the lifetime of this action's execution root.
func (e *Executor) persistBlobs(ctx context.Context, root string, outputs []artifact.Artifact) error {
	for _, out := range outputs {
		abs := filepath.Join(root, out.ExecRootPath)
		if err := e.blobs.Put(ctx, out.Digest, abs); err != nil {
			return fmt.Errorf("output %s: %w", out.ExecRootPath, err)
		}
	}
	return nil
}

// allowlistedEnv resolves an action's EnvAllowlist against the ambient
// environment, so the runner only ever observes the variables an action
// declared it needs.
func allowlistedEnv(allowlist []string) map[string]string {
	env := make(map[string]string, len(allowlist))
	for _, name := range allowlist {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}
	return env
}
