package driver

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/buildtool/buildtool/pkg/actionexec"
	"github.com/buildtool/buildtool/pkg/actionexec/cache"
	"github.com/buildtool/buildtool/pkg/actionexec/spawn"
	"github.com/buildtool/buildtool/pkg/artifact"
	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/fsview"
)

// artifactRegistry tracks which digest a derived artifact's exec-root-
// relative path currently resolves to. A configured target only ever
// references another action's *declared* output artifact at analysis
// time, before that action has run and before its digest is known; the
// registry is what lets a later level's input resolution find the bytes
// an earlier level's action actually produced, by consulting the blob
// store it persisted them to rather than a path that stopped existing the
// moment that action's isolated execution root was torn down.
type artifactRegistry struct {
	mu      sync.RWMutex
	digests map[string]artifact.Digest
}

func newArtifactRegistry() *artifactRegistry {
	return &artifactRegistry{digests: make(map[string]artifact.Digest)}
}

// record stores the digest every output in outputs resolved to, so a
// consumer declaring the same ExecRootPath as an input can find it.
func (r *artifactRegistry) record(outputs []artifact.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, out := range outputs {
		r.digests[out.ExecRootPath] = out.Digest
	}
}

func (r *artifactRegistry) digestFor(execRootPath string) (artifact.Digest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.digests[execRootPath]
	return d, ok
}

// resolver returns an InputResolver that resolves a source artifact under
// workspaceRoot directly, and a derived/tree/symlink artifact by looking up
// its producer-recorded digest in the registry and fetching that digest's
// bytes from blobs.
func (r *artifactRegistry) resolver(workspaceRoot string, blobs cache.BlobStore) spawn.InputResolver {
	return func(a artifact.Artifact) (string, error) {
		if a.Kind == artifact.KindSource {
			return filepath.Join(workspaceRoot, a.WorkspacePath), nil
		}

		digest, ok := r.digestFor(a.ExecRootPath)
		if !ok {
			return "", fmt.Errorf("artifact registry: no recorded digest for %s (its generating action has not completed)", a.ExecRootPath)
		}
		path, ok, err := blobs.Path(context.Background(), digest)
		if err != nil {
			return "", fmt.Errorf("artifact registry: resolving %s: %w", a.ExecRootPath, err)
		}
		if !ok {
			return "", fmt.Errorf("artifact registry: blob for %s (digest %s) not found in store", a.ExecRootPath, digest.Hex)
		}
		return path, nil
	}
}

// digester returns an actionexec.InputDigester that resolves a source
// artifact's digest through ev's FileKey — the same incremental,
// memoized filesystem-change-detection path every other part of the
// build engine depends on, per fsview's own package doc — and a
// derived/tree/symlink artifact's digest from whatever action actually
// produced it, via r.
func (r *artifactRegistry) digester(ev *evaluator.Evaluator, workspaceRoot string) actionexec.InputDigester {
	return func(ctx context.Context, a artifact.Artifact) (artifact.Digest, error) {
		if a.Kind == artifact.KindSource {
			abs := filepath.Join(workspaceRoot, a.WorkspacePath)
			values, err := ev.Evaluate(ctx, fsview.FileKey{Path: abs})
			if err != nil {
				return artifact.Digest{}, fmt.Errorf("digesting source input %s: %w", a.WorkspacePath, err)
			}
			fv, ok := values[0].(fsview.FileValue)
			if !ok || fv.Digest.IsZero() {
				return artifact.Digest{}, fmt.Errorf("source input %s has no content digest", a.WorkspacePath)
			}
			return artifact.Digest{HashFunc: fv.Digest.Algorithm, Hex: fv.Digest.Hex, Size: fv.Size}, nil
		}

		d, ok := r.digestFor(a.ExecRootPath)
		if !ok {
			return artifact.Digest{}, fmt.Errorf("artifact registry: no recorded digest for %s (its generating action has not completed)", a.ExecRootPath)
		}
		return d, nil
	}
}
