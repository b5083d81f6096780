package pkgloader

import (
	"fmt"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"

	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/fsview"
)

// Loader registers the PackageKey and ExtensionKey functions on an
// Evaluator. WorkspaceRoot anchors the workspace-relative paths carried by
// PackageKey/ExtensionKey to real filesystem paths.
type Loader struct {
	WorkspaceRoot string
	Rules         RuleRegistry

	// Constants are injected as predeclared globals into every
	// package-definition and extension evaluation, for host-supplied values
	// like platform identifiers that no load() chain should need to
	// hand-roll.
	Constants map[string]interface{}
}

// New creates a Loader. rules may be nil, in which case no attribute is
// treated as dependency-shaped.
func New(workspaceRoot string, rules RuleRegistry) *Loader {
	if rules == nil {
		rules = RuleRegistry{}
	}
	return &Loader{WorkspaceRoot: workspaceRoot, Rules: rules}
}

// Register binds PackageKey and ExtensionKey functions on ev.
func (l *Loader) Register(ev *evaluator.Evaluator) {
	ev.Register("PackageKey", l.evaluatePackage)
	ev.Register("ExtensionKey", l.evaluateExtension)
}

func (l *Loader) evaluatePackage(ctx *evaluator.Context) (evaluator.Value, error) {
	key, ok := ctx.Key().(PackageKey)
	if !ok {
		return nil, fmt.Errorf("pkgloader: unexpected key type %T", ctx.Key())
	}

	defPath := filepath.Join(key.Dir, MarkerFile)
	source, err := l.readSource(ctx, defPath)
	if err != nil {
		pkg := newPackage(key.Dir)
		pkg.addError(err)
		return pkg, nil
	}

	absDir := filepath.Join(l.WorkspaceRoot, key.Dir)
	pkg := evalPackage(ctx, key.Dir, absDir, source, l.Rules, l.Constants)
	return pkg, nil
}

func (l *Loader) evaluateExtension(ctx *evaluator.Context) (evaluator.Value, error) {
	key, ok := ctx.Key().(ExtensionKey)
	if !ok {
		return nil, fmt.Errorf("pkgloader: unexpected key type %T", ctx.Key())
	}

	source, err := l.readSource(ctx, key.Path)
	if err != nil {
		return nil, err
	}

	relDir := filepath.Dir(key.Path)
	absDir := filepath.Join(l.WorkspaceRoot, relDir)
	it := newInterp(ctx, relDir, absDir, l.Rules)
	predeclared, err := it.predeclared(l.Constants)
	if err != nil {
		return nil, fmt.Errorf("extension %s: %w", key.Path, err)
	}

	thread := &starlark.Thread{Name: "pkgloader-extension", Load: it.load}
	globals, err := starlark.ExecFile(thread, key.Path, source, predeclared)
	if err != nil {
		return nil, fmt.Errorf("evaluating extension %s: %w", key.Path, err)
	}

	exported := make(starlark.StringDict, len(globals))
	for name, v := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		exported[name] = v
	}
	return exported, nil
}

// readSource records a FileKey dependency on path (so a content change
// invalidates this node through fsview's own digest-backed equality) and
// returns its bytes.
func (l *Loader) readSource(ctx *evaluator.Context, path string) (string, error) {
	full := filepath.Join(l.WorkspaceRoot, path)

	v, err := ctx.Request(fsview.FileKey{Path: full})
	if err != nil {
		return "", err
	}
	fv, _ := v.(fsview.FileValue)
	if fv.Kind == fsview.KindAbsent {
		return "", fmt.Errorf("%s: no such file", path)
	}
	if fv.Kind != fsview.KindRegular {
		return "", fmt.Errorf("%s: not a regular file", path)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
