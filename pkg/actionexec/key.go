package actionexec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/buildtool/buildtool/pkg/actiongraph"
	"github.com/buildtool/buildtool/pkg/artifact"
)

// InputDigester resolves an input artifact's current content digest: a
// source artifact's on-disk content right now, or a derived/tree/symlink
// artifact's digest as recorded by whatever action actually produced it.
// resolveInputs calls this for every input whose Digest isn't already
// known, so ActionKey is computed over the inputs' real content rather
// than the zero digest a freshly analyzed action declares them with.
type InputDigester func(ctx context.Context, a artifact.Artifact) (artifact.Digest, error)

// resolveInputs returns a copy of set with every item's Digest resolved
// through digest, preserving set's exact Direct/Transitive shape.
// NestedSet.Hash folds a transitive child's hash in as one opaque value
// rather than merging its leaves into the parent's, so the shape itself is
// part of what's hashed; resolveInputs must reproduce it exactly rather
// than flatten. An item that already carries a non-zero digest (as
// hand-built test fixtures do) is left untouched.
func resolveInputs(ctx context.Context, set *actiongraph.NestedSet[artifact.Artifact], digest InputDigester) (*actiongraph.NestedSet[artifact.Artifact], error) {
	if set == nil {
		return nil, nil
	}

	direct := make([]artifact.Artifact, len(set.Direct))
	for i, item := range set.Direct {
		if !item.Digest.IsZero() {
			direct[i] = item
			continue
		}
		d, err := digest(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("resolving digest for input %s: %w", item.Identity(), err)
		}
		direct[i] = item.WithDigest(d)
	}

	transitive := make([]*actiongraph.NestedSet[artifact.Artifact], len(set.Transitive))
	for i, child := range set.Transitive {
		resolved, err := resolveInputs(ctx, child, digest)
		if err != nil {
			return nil, err
		}
		transitive[i] = resolved
	}

	return actiongraph.NewNestedSet(direct, transitive...), nil
}

// ActionKey computes an action's cache key: a content fingerprint over
// everything that determines its outcome (mnemonic, the environment it may
// observe, its command, and its input set) but never its label, so two
// actions from different targets that happen to run the identical command
// over identical inputs share one cache entry.
func ActionKey(a *actiongraph.Action) string {
	h := sha256.New()

	fmt.Fprintf(h, "mnemonic\x00%s\n", a.Mnemonic)

	env := append([]string(nil), a.EnvAllowlist...)
	sort.Strings(env)
	for _, v := range env {
		fmt.Fprintf(h, "env\x00%s\n", v)
	}

	if a.SpawnSpec != nil {
		fmt.Fprintf(h, "tool\x00%s\n", a.SpawnSpec.Tool)
		keys := make([]string, 0, len(a.SpawnSpec.Args))
		for k := range a.SpawnSpec.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(h, "arg\x00%s\x00%s\n", k, a.SpawnSpec.Args[k])
		}
	} else {
		for _, arg := range a.Argv {
			fmt.Fprintf(h, "argv\x00%s\n", arg)
		}
	}

	fmt.Fprintf(h, "inputs\x00%s\n", a.InputsHash())

	return hex.EncodeToString(h.Sum(nil))
}
