package actionexec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildtool/buildtool/pkg/actiongraph"
	"github.com/buildtool/buildtool/pkg/actionexec/cache"
	"github.com/buildtool/buildtool/pkg/actionexec/spawn"
	"github.com/buildtool/buildtool/pkg/artifact"
	"github.com/buildtool/buildtool/pkg/telemetry"
)

type memCache struct {
	mu      sync.Mutex
	records map[string]*cache.Record
}

func newMemCache() *memCache { return &memCache{records: make(map[string]*cache.Record)} }

func (m *memCache) Lookup(ctx context.Context, actionKey string) (*cache.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[actionKey]
	return r, ok, nil
}

func (m *memCache) Store(ctx context.Context, record *cache.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ActionKey] = record
	return nil
}

func (m *memCache) Close() error { return nil }

// countingRunner wraps a Runner and counts how many times Run is invoked,
// to assert in-flight coalescing actually suppresses duplicate spawns.
type countingRunner struct {
	inner spawn.Runner
	calls int32
}

func (r *countingRunner) Run(ctx context.Context, req spawn.RunRequest) (*spawn.RunResult, error) {
	atomic.AddInt32(&r.calls, 1)
	return r.inner.Run(ctx, req)
}

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	l, err := telemetry.NewLogger(telemetry.LoggingConfig{Output: "stdout", Level: "error", Format: "json", TimeFormat: "rfc3339"})
	require.NoError(t, err)
	return l
}

func writeAction(t *testing.T, workspace string) (*actiongraph.Action, spawn.InputResolver) {
	t.Helper()

	srcPath := filepath.Join(workspace, "main.c")
	require.NoError(t, os.WriteFile(srcPath, []byte("int main() { return 0; }\n"), 0o644))

	src := artifact.NewSourceArtifact("main.c")
	out := artifact.NewDerivedArtifact("main.o", "//:compile")

	action := &actiongraph.Action{
		Label:        "//:compile",
		Mnemonic:     "CCompile",
		EnvAllowlist: []string{"PATH"},
		Argv:         []string{"/bin/cp", "main.c", "main.o"},
		Inputs:       actiongraph.NewNestedSet[artifact.Artifact]([]artifact.Artifact{src.WithDigest(artifact.Digest{HashFunc: "sha256", Hex: "abc", Size: 10})}),
		Outputs:      []artifact.Artifact{out},
	}

	resolve := func(a artifact.Artifact) (string, error) {
		if a.Kind == artifact.KindSource {
			return filepath.Join(workspace, a.WorkspacePath), nil
		}
		return "", fmt.Errorf("unexpected input %s", a.Identity())
	}

	return action, resolve
}

func TestExecuteRunsActionOnCacheMiss(t *testing.T) {
	workspace := t.TempDir()
	action, resolve := writeAction(t, workspace)

	runner := &countingRunner{inner: spawn.NewLocalRunner()}
	exec := New(Config{
		Cache:    newMemCache(),
		Stager:   spawn.CopyStager{},
		Runner:   runner,
		Resolve:  resolve,
		ExecRoot: t.TempDir(),
		Logger:   testLogger(t),
	})

	result, err := exec.Execute(context.Background(), action)
	require.NoError(t, err)
	require.False(t, result.CacheHit)
	require.Equal(t, 0, result.ExitCode)
	require.Len(t, result.Outputs, 1)
	require.False(t, result.Outputs[0].Digest.IsZero())
	require.EqualValues(t, 1, runner.calls)
}

func TestExecuteRehydratesFromCacheOnSecondCall(t *testing.T) {
	workspace := t.TempDir()
	action, resolve := writeAction(t, workspace)

	runner := &countingRunner{inner: spawn.NewLocalRunner()}
	exec := New(Config{
		Cache:    newMemCache(),
		Stager:   spawn.CopyStager{},
		Runner:   runner,
		Resolve:  resolve,
		ExecRoot: t.TempDir(),
		Logger:   testLogger(t),
	})

	first, err := exec.Execute(context.Background(), action)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := exec.Execute(context.Background(), action)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.Outputs[0].Digest, second.Outputs[0].Digest)
	require.EqualValues(t, 1, runner.calls, "second Execute should not re-invoke the runner")
}

func TestExecuteCoalescesConcurrentCallsForSameActionKey(t *testing.T) {
	workspace := t.TempDir()
	action, resolve := writeAction(t, workspace)

	runner := &countingRunner{inner: spawn.NewLocalRunner()}
	exec := New(Config{
		Cache:    newMemCache(),
		Stager:   spawn.CopyStager{},
		Runner:   runner,
		Resolve:  resolve,
		ExecRoot: t.TempDir(),
		Logger:   testLogger(t),
	})

	var wg sync.WaitGroup
	results := make([]*ExecutionResult, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = exec.Execute(context.Background(), action)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
	}
	require.EqualValues(t, 1, runner.calls, "concurrent calls for the same action should share one execution")
}

func TestExecutePersistsHarvestedOutputsToBlobStore(t *testing.T) {
	workspace := t.TempDir()
	action, resolve := writeAction(t, workspace)

	blobs, err := cache.NewDirBlobStore(t.TempDir())
	require.NoError(t, err)

	exec := New(Config{
		Cache:    newMemCache(),
		Blobs:    blobs,
		Stager:   spawn.CopyStager{},
		Runner:   &countingRunner{inner: spawn.NewLocalRunner()},
		Resolve:  resolve,
		ExecRoot: t.TempDir(),
		Logger:   testLogger(t),
	})

	result, err := exec.Execute(context.Background(), action)
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)

	path, ok, err := blobs.Path(context.Background(), result.Outputs[0].Digest)
	require.NoError(t, err)
	require.True(t, ok, "harvested output should be persisted under its digest")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "int main() { return 0; }\n", string(content))
}

// TestExecuteResolvesZeroInputDigestsBeforeComputingActionKey exercises a
// freshly analyzed action whose source input still carries the zero digest
// NewSourceArtifact leaves it with: the Digest collaborator must resolve
// its real content before the action key is computed, so a changed source
// misses the cache instead of reusing a stale record.
func TestExecuteResolvesZeroInputDigestsBeforeComputingActionKey(t *testing.T) {
	workspace := t.TempDir()
	srcPath := filepath.Join(workspace, "main.c")
	require.NoError(t, os.WriteFile(srcPath, []byte("int main() { return 0; }\n"), 0o644))

	src := artifact.NewSourceArtifact("main.c")
	out := artifact.NewDerivedArtifact("main.o", "//:compile")
	action := &actiongraph.Action{
		Label:        "//:compile",
		Mnemonic:     "CCompile",
		EnvAllowlist: []string{"PATH"},
		Argv:         []string{"/bin/cp", "main.c", "main.o"},
		Inputs:       actiongraph.NewNestedSet[artifact.Artifact]([]artifact.Artifact{src}),
		Outputs:      []artifact.Artifact{out},
	}

	resolve := func(a artifact.Artifact) (string, error) {
		return filepath.Join(workspace, a.WorkspacePath), nil
	}
	digester := func(ctx context.Context, a artifact.Artifact) (artifact.Digest, error) {
		content, err := os.ReadFile(filepath.Join(workspace, a.WorkspacePath))
		if err != nil {
			return artifact.Digest{}, err
		}
		sum := sha256.Sum256(content)
		return artifact.Digest{HashFunc: "sha256", Hex: hex.EncodeToString(sum[:]), Size: int64(len(content))}, nil
	}

	runner := &countingRunner{inner: spawn.NewLocalRunner()}
	exec := New(Config{
		Cache:    newMemCache(),
		Stager:   spawn.CopyStager{},
		Runner:   runner,
		Resolve:  resolve,
		Digest:   digester,
		ExecRoot: t.TempDir(),
		Logger:   testLogger(t),
	})

	first, err := exec.Execute(context.Background(), action)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := exec.Execute(context.Background(), action)
	require.NoError(t, err)
	require.True(t, second.CacheHit, "unchanged source content should cache-hit on rerun")
	require.EqualValues(t, 1, runner.calls)

	require.NoError(t, os.WriteFile(srcPath, []byte("int main() { return 1; }\n"), 0o644))
	third, err := exec.Execute(context.Background(), action)
	require.NoError(t, err)
	require.False(t, third.CacheHit, "a changed source input must miss the cache instead of reusing a stale key")
	require.EqualValues(t, 2, runner.calls, "changed input content should force a fresh run")
}

// TestExecuteReRunsWhenCachedBlobIsMissingFromStore covers the case where
// the action cache database outlives the blob store's backing directory:
// a stored record whose output digest has no blob behind it anymore must
// not be handed to a caller as a cache hit.
func TestExecuteReRunsWhenCachedBlobIsMissingFromStore(t *testing.T) {
	workspace := t.TempDir()
	action, resolve := writeAction(t, workspace)

	blobs, err := cache.NewDirBlobStore(t.TempDir())
	require.NoError(t, err)

	runner := &countingRunner{inner: spawn.NewLocalRunner()}
	exec := New(Config{
		Cache:    newMemCache(),
		Blobs:    blobs,
		Stager:   spawn.CopyStager{},
		Runner:   runner,
		Resolve:  resolve,
		ExecRoot: t.TempDir(),
		Logger:   testLogger(t),
	})

	first, err := exec.Execute(context.Background(), action)
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.EqualValues(t, 1, runner.calls)

	freshBlobs, err := cache.NewDirBlobStore(t.TempDir())
	require.NoError(t, err)
	exec.blobs = freshBlobs

	second, err := exec.Execute(context.Background(), action)
	require.NoError(t, err)
	require.False(t, second.CacheHit, "a cache record whose blob vanished must not be served as a cache hit")
	require.EqualValues(t, 2, runner.calls)
}

func TestActionKeyIsStableAndContentSensitive(t *testing.T) {
	src := artifact.NewSourceArtifact("a.c").WithDigest(artifact.Digest{HashFunc: "sha256", Hex: "x", Size: 1})
	base := &actiongraph.Action{
		Label:    "//:a",
		Mnemonic: "CCompile",
		Argv:     []string{"/bin/cc", "a.c"},
		Inputs:   actiongraph.NewNestedSet[artifact.Artifact]([]artifact.Artifact{src}),
	}
	renamed := &actiongraph.Action{
		Label:    "//:b",
		Mnemonic: "CCompile",
		Argv:     []string{"/bin/cc", "a.c"},
		Inputs:   actiongraph.NewNestedSet[artifact.Artifact]([]artifact.Artifact{src}),
	}
	different := &actiongraph.Action{
		Label:    "//:a",
		Mnemonic: "CCompile",
		Argv:     []string{"/bin/cc", "b.c"},
		Inputs:   actiongraph.NewNestedSet[artifact.Artifact]([]artifact.Artifact{src}),
	}

	require.Equal(t, ActionKey(base), ActionKey(renamed), "label must not affect the cache key")
	require.NotEqual(t, ActionKey(base), ActionKey(different))
}
