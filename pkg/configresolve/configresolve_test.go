package configresolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildtool/buildtool/pkg/buildconfig"
	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/fsview"
	"github.com/buildtool/buildtool/pkg/pkgloader"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func testConfiguration(t *testing.T) buildconfig.Configuration {
	t.Helper()
	c, err := buildconfig.NewConfiguration("linux/amd64", "fastbuild", nil)
	require.NoError(t, err)
	return c
}

var goRules = pkgloader.RuleRegistry{
	"go_library": {"deps"},
	"go_binary":  {"deps"},
}

func goLibraryImpl(ctx *evaluator.Context, target *pkgloader.Target, config buildconfig.Configuration, deps ResolvedDeps) (Providers, error) {
	var depLabels []string
	for _, dcts := range deps {
		for _, ct := range dcts {
			depLabels = append(depLabels, ct.Label)
		}
	}
	return Providers{
		"DefaultInfo": target.Label,
		"GoLibraryInfo": map[string]interface{}{
			"deps": depLabels,
		},
	}, nil
}

func newTestEvaluator(t *testing.T, root string) *evaluator.Evaluator {
	t.Helper()
	ev := evaluator.New(evaluator.Options{Workers: 4})
	fsview.New(nil).Register(ev)
	pkgloader.New(root, goRules).Register(ev)
	return ev
}

func TestConfiguredTargetResolvesExplicitDependency(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `go_library(name = "lib", srcs = ["lib.go"], deps = ["//b:lib"])`)
	writeFile(t, root, "b/BUILD.star", `go_library(name = "lib", srcs = ["lib.go"])`)

	ev := newTestEvaluator(t, root)
	New(map[string]RuleImplementation{"go_library": goLibraryImpl}, nil, nil).Register(ev)

	config := testConfiguration(t)
	key := ConfiguredTargetKey{Label: "//a:lib", Configuration: config}

	values, err := ev.Evaluate(context.Background(), key)
	require.NoError(t, err)

	ct := values[0].(ConfiguredTarget)
	require.Equal(t, "//a:lib", ct.Label)
	require.Equal(t, config.Hash(), ct.ConfigHash)
	require.Equal(t, []string{"//b:lib"}, ct.Providers["GoLibraryInfo"].(map[string]interface{})["deps"])
}

func TestConfiguredTargetResolvesSourceFileDependencyWithNullConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `go_library(name = "lib", srcs = ["lib.go"], deps = ["//a:lib.go"])`)
	writeFile(t, root, "a/lib.go", `package a`)

	ev := newTestEvaluator(t, root)
	New(map[string]RuleImplementation{"go_library": goLibraryImpl}, nil, nil).Register(ev)

	config := testConfiguration(t)
	values, err := ev.Evaluate(context.Background(), ConfiguredTargetKey{Label: "//a:lib", Configuration: config})
	require.NoError(t, err)

	ct := values[0].(ConfiguredTarget)
	deps := ct.Providers["GoLibraryInfo"].(map[string]interface{})["deps"].([]string)
	require.Equal(t, []string{"//a:lib.go"}, deps)

	sourceKey := ConfiguredTargetKey{Label: "//a:lib.go"}
	require.Equal(t, NullConfigHash, sourceKey.ConfigHash())

	sourceValues, err := ev.Evaluate(context.Background(), sourceKey)
	require.NoError(t, err)
	sourceCT := sourceValues[0].(ConfiguredTarget)
	require.Equal(t, NullConfigHash, sourceCT.ConfigHash)
}

func TestConfiguredTargetAppliesSplitTransition(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `go_binary(name = "bin", srcs = ["main.go"], deps = ["//b:lib"])`)
	writeFile(t, root, "b/BUILD.star", `go_library(name = "lib", srcs = ["lib.go"])`)

	ev := newTestEvaluator(t, root)

	split := func(parent buildconfig.Configuration) (map[string]buildconfig.Configuration, error) {
		return map[string]buildconfig.Configuration{
			"linux":  parent.WithFlag("goos", "linux"),
			"darwin": parent.WithFlag("goos", "darwin"),
		}, nil
	}

	New(
		map[string]RuleImplementation{"go_library": goLibraryImpl, "go_binary": goLibraryImpl},
		map[string]Transition{"go_binary": split},
		nil,
	).Register(ev)

	config := testConfiguration(t)
	values, err := ev.Evaluate(context.Background(), ConfiguredTargetKey{Label: "//a:bin", Configuration: config})
	require.NoError(t, err)

	ct := values[0].(ConfiguredTarget)
	deps := ct.Providers["GoLibraryInfo"].(map[string]interface{})["deps"].([]string)
	require.Len(t, deps, 2)
	require.Contains(t, deps, "//b:lib")
}

func TestAspectAppliesWhenRequiredProviderPresent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `go_library(name = "lib", srcs = ["lib.go"])`)

	ev := newTestEvaluator(t, root)

	lintAspect := Aspect{
		Name:     "lint",
		Requires: []string{"GoLibraryInfo"},
		Apply: func(ctx *evaluator.Context, target ConfiguredTarget) (Providers, error) {
			return Providers{"LintInfo": "clean"}, nil
		},
	}

	New(
		map[string]RuleImplementation{"go_library": goLibraryImpl},
		nil,
		map[string]Aspect{"lint": lintAspect},
	).Register(ev)

	config := testConfiguration(t)
	target := ConfiguredTargetKey{Label: "//a:lib", Configuration: config}

	values, err := ev.Evaluate(context.Background(), AspectKey{Name: "lint", Target: target})
	require.NoError(t, err)

	providers := values[0].(Providers)
	require.Equal(t, "clean", providers["LintInfo"])
}

func TestAspectSilentlyDropsWhenRequiredProviderMissing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `go_library(name = "lib", srcs = ["lib.go"])`)

	ev := newTestEvaluator(t, root)

	// go_library never produces CoverageInfo, so this aspect never applies.
	coverageAspect := Aspect{
		Name:     "coverage",
		Requires: []string{"CoverageInfo"},
		Apply: func(ctx *evaluator.Context, target ConfiguredTarget) (Providers, error) {
			return Providers{"CoverageReport": "unreachable"}, nil
		},
	}

	New(
		map[string]RuleImplementation{"go_library": goLibraryImpl},
		nil,
		map[string]Aspect{"coverage": coverageAspect},
	).Register(ev)

	config := testConfiguration(t)
	target := ConfiguredTargetKey{Label: "//a:lib", Configuration: config}

	values, err := ev.Evaluate(context.Background(), AspectKey{Name: "coverage", Target: target})
	require.NoError(t, err)

	providers := values[0].(Providers)
	require.Empty(t, providers)
}

func TestConfiguredTargetPropagatesMalformedPackageError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/BUILD.star", `this is not valid starlark (((`)

	ev := newTestEvaluator(t, root)
	New(map[string]RuleImplementation{"go_library": goLibraryImpl}, nil, nil).Register(ev)

	config := testConfiguration(t)
	_, err := ev.Evaluate(context.Background(), ConfiguredTargetKey{Label: "//a:lib", Configuration: config})
	require.Error(t, err)
}

func TestConfiguredTargetKeyIdentityIgnoresFlagOrdering(t *testing.T) {
	c1, err := buildconfig.NewConfiguration("linux/amd64", "fastbuild", map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)
	c2, err := buildconfig.NewConfiguration("linux/amd64", "fastbuild", map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)

	k1 := ConfiguredTargetKey{Label: "//a:lib", Configuration: c1}
	k2 := ConfiguredTargetKey{Label: "//a:lib", Configuration: c2}

	require.Equal(t, k1.String(), k2.String())
}
