// Package spawn prepares an execution root from an action's declared inputs
// and runs the action's command spec against it, via a pluggable Runner
// (local subprocess, remote SSH host, or in-process WASM sandbox).
package spawn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/buildtool/buildtool/pkg/artifact"
)

// InputResolver maps a source artifact to the absolute path of its current
// content on disk. The executor supplies an implementation backed by
// pkg/fsview; tests can substitute a fixed lookup table.
type InputResolver func(a artifact.Artifact) (absPath string, err error)

// Stager materializes an action's inputs under an execution root before the
// action runs, and harvests its declared outputs afterward.
type Stager interface {
	// Stage populates root with every artifact in inputs, laid out at its
	// ExecRootPath (derived/tree/symlink artifacts) or WorkspacePath
	// (source artifacts), relative to root.
	Stage(ctx context.Context, root string, inputs []artifact.Artifact, resolve InputResolver) error

	// Harvest reads back the action's declared outputs from root once the
	// command has run, computing each output's digest.
	Harvest(ctx context.Context, root string, outputs []artifact.Artifact) ([]artifact.Artifact, error)
}

func inputRelPath(a artifact.Artifact) string {
	if a.Kind == artifact.KindSource {
		return a.WorkspacePath
	}
	return a.ExecRootPath
}

func outputRelPath(a artifact.Artifact) string {
	return a.ExecRootPath
}

// SymlinkStager stages inputs as symlinks into the execution root rather
// than copying their bytes. Cheap, but only safe when the runner executes
// on the same filesystem as the resolved input paths (the local and WASM
// runners; not SSH).
type SymlinkStager struct{}

func (SymlinkStager) Stage(ctx context.Context, root string, inputs []artifact.Artifact, resolve InputResolver) error {
	for _, in := range inputs {
		src, err := resolve(in)
		if err != nil {
			return fmt.Errorf("staging %s: %w", in.Identity(), err)
		}
		dst := filepath.Join(root, inputRelPath(in))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("staging %s: %w", in.Identity(), err)
		}
		if err := os.Symlink(src, dst); err != nil {
			return fmt.Errorf("staging %s: %w", in.Identity(), err)
		}
	}
	return nil
}

func (SymlinkStager) Harvest(ctx context.Context, root string, outputs []artifact.Artifact) ([]artifact.Artifact, error) {
	return harvestOutputs(root, outputs)
}

// CopyStager stages inputs by copying their bytes into the execution root.
// Slower than SymlinkStager but required whenever the runner does not share
// a filesystem with the resolved input paths, e.g. SSHRunner staging onto a
// remote host.
type CopyStager struct{}

func (CopyStager) Stage(ctx context.Context, root string, inputs []artifact.Artifact, resolve InputResolver) error {
	for _, in := range inputs {
		src, err := resolve(in)
		if err != nil {
			return fmt.Errorf("staging %s: %w", in.Identity(), err)
		}
		dst := filepath.Join(root, inputRelPath(in))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("staging %s: %w", in.Identity(), err)
		}
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("staging %s: %w", in.Identity(), err)
		}
	}
	return nil
}

func (CopyStager) Harvest(ctx context.Context, root string, outputs []artifact.Artifact) ([]artifact.Artifact, error) {
	return harvestOutputs(root, outputs)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := fileCopyBuf(out, in); err != nil {
		return err
	}
	return out.Close()
}

func harvestOutputs(root string, outputs []artifact.Artifact) ([]artifact.Artifact, error) {
	harvested := make([]artifact.Artifact, 0, len(outputs))
	for _, out := range outputs {
		abs := filepath.Join(root, outputRelPath(out))
		digest, err := digestFile(abs)
		if err != nil {
			return nil, fmt.Errorf("harvesting %s: %w", out.Identity(), err)
		}
		harvested = append(harvested, out.WithDigest(digest))
	}
	return harvested, nil
}

var _ Stager = SymlinkStager{}
var _ Stager = CopyStager{}
