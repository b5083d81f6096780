package pkgloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/fsview"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newTestEvaluator(root string) *evaluator.Evaluator {
	ev := evaluator.New(evaluator.Options{Workers: 4})
	fsview.New(nil).Register(ev)
	return ev
}

var goLibraryRules = RuleRegistry{
	"go_library": {"deps"},
	"go_binary":  {"deps"},
}

func TestEvalPackageSimpleTarget(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `
go_library(name = "lib", srcs = ["lib.go"], deps = ["//b:b"])
`)

	ev := newTestEvaluator(root)
	New(root, goLibraryRules).Register(ev)

	values, err := ev.Evaluate(context.Background(), PackageKey{Dir: "a"})
	require.NoError(t, err)

	pkg := values[0].(*Package)
	require.Empty(t, pkg.Errors)
	require.Len(t, pkg.Targets, 1)

	lib := pkg.Targets["lib"]
	require.Equal(t, "go_library", lib.Kind)
	require.Equal(t, "//a:lib", lib.Label)
	require.Equal(t, []string{"//b:b"}, lib.Deps)
}

func TestEvalPackageMissingDefinitionIsAnError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	ev := newTestEvaluator(root)
	New(root, goLibraryRules).Register(ev)

	values, err := ev.Evaluate(context.Background(), PackageKey{Dir: "empty"})
	require.NoError(t, err)

	pkg := values[0].(*Package)
	require.NotEmpty(t, pkg.Errors)
	require.Empty(t, pkg.Targets)
	require.True(t, ev.IsDirty(PackageKey{Dir: "empty"}))
}

func TestEvalPackageDuplicateTargetNameIsPartialError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `
go_library(name = "lib")
go_library(name = "lib")
`)

	ev := newTestEvaluator(root)
	New(root, goLibraryRules).Register(ev)

	values, err := ev.Evaluate(context.Background(), PackageKey{Dir: "a"})
	require.NoError(t, err)

	pkg := values[0].(*Package)
	require.NotEmpty(t, pkg.Errors)
	require.Len(t, pkg.Targets, 1)
}

func TestGlobRestrictedToPackageSubtree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/one.go", "package a")
	writeFile(t, root, "a/two.go", "package a")
	writeFile(t, root, "a/sub/BUILD.star", "")
	writeFile(t, root, "a/sub/three.go", "package sub")
	writeFile(t, root, "a/BUILD.star", `
go_library(name = "lib", srcs = glob(["*.go"]))
`)

	ev := newTestEvaluator(root)
	New(root, goLibraryRules).Register(ev)

	values, err := ev.Evaluate(context.Background(), PackageKey{Dir: "a"})
	require.NoError(t, err)

	pkg := values[0].(*Package)
	require.Empty(t, pkg.Errors)

	srcs, _ := pkg.Targets["lib"].Attrs["srcs"].([]interface{})
	var got []string
	for _, s := range srcs {
		got = append(got, s.(string))
	}
	require.Equal(t, []string{"one.go", "two.go"}, got)
}

func TestGlobRecordsEmptyResultAsPackageDependency(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `
go_library(name = "lib", srcs = glob(["*.c"]))
`)

	ev := newTestEvaluator(root)
	New(root, goLibraryRules).Register(ev)

	_, err := ev.Evaluate(context.Background(), PackageKey{Dir: "a"})
	require.NoError(t, err)

	require.False(t, ev.IsDirty(fsview.DirectoryListingKey{Path: filepath.Join(root, "a")}))

	// Adding a matching file and invalidating the directory listing must
	// cause the package to be re-evaluated with the new match observed.
	writeFile(t, root, "a/new.c", "")
	ev.Invalidate(fsview.DirectoryListingKey{Path: filepath.Join(root, "a")})

	values, err := ev.Evaluate(context.Background(), PackageKey{Dir: "a"})
	require.NoError(t, err)
	pkg := values[0].(*Package)
	srcs, _ := pkg.Targets["lib"].Attrs["srcs"].([]interface{})
	require.Len(t, srcs, 1)
}

func TestLoadResolvesExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `
load("ext.star", "VALUE")
go_library(name = "lib", srcs = [VALUE])
`)
	writeFile(t, root, "ext.star", `
VALUE = "generated.go"
`)

	ev := newTestEvaluator(root)
	New(root, goLibraryRules).Register(ev)

	values, err := ev.Evaluate(context.Background(), PackageKey{Dir: "a"})
	require.NoError(t, err)

	pkg := values[0].(*Package)
	require.Empty(t, pkg.Errors)
	require.Equal(t, []string{"ext.star"}, pkg.Subincludes)

	srcs, _ := pkg.Targets["lib"].Attrs["srcs"].([]interface{})
	require.Equal(t, []interface{}{"generated.go"}, srcs)
}

func TestLoadCycleIsReportedAsPackageError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `load("b.star", "X")`)
	writeFile(t, root, "b.star", `load("a/BUILD.star", "X")`)

	ev := newTestEvaluator(root)
	New(root, goLibraryRules).Register(ev)

	// The cycle surfaces as a real error on the ExtensionKey nodes
	// involved, but PackageKey itself never fails outright: it captures
	// the failure into the Package's partial Errors, per the loader's
	// malformed-package contract.
	values, err := ev.Evaluate(context.Background(), PackageKey{Dir: "a"})
	require.NoError(t, err)

	pkg := values[0].(*Package)
	require.NotEmpty(t, pkg.Errors)
}
