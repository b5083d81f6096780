package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildtool/buildtool/pkg/actiongraph"
	"github.com/buildtool/buildtool/pkg/artifact"
	"github.com/buildtool/buildtool/pkg/buildconfig"
	"github.com/buildtool/buildtool/pkg/configresolve"
	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/pkgloader"
	"github.com/buildtool/buildtool/pkg/telemetry"
)

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	l, err := telemetry.NewLogger(telemetry.LoggingConfig{Output: "stdout", Level: "error", Format: "json", TimeFormat: "rfc3339"})
	require.NoError(t, err)
	return l
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

var genRules = pkgloader.RuleRegistry{
	"gen_compile": nil,
	"gen_link":    {"deps"},
}

// genCompileImpl declares one action that writes a fixed string to its own
// output, with no inputs of its own.
func genCompileImpl(ctx *evaluator.Context, target *pkgloader.Target, config buildconfig.Configuration, deps configresolve.ResolvedDeps) (configresolve.Providers, error) {
	out := artifact.NewDerivedArtifact(target.Name+".out", target.Label)
	action := &actiongraph.Action{
		Label:    target.Label,
		Mnemonic: "GenCompile",
		Argv:     []string{"/bin/sh", "-c", "echo compiled > " + out.ExecRootPath},
		Outputs:  []artifact.Artifact{out},
	}
	return configresolve.Providers{
		ActionsProvider: actiongraph.NewNestedSet([]*actiongraph.Action{action}),
	}, nil
}

// genLinkImpl declares one action consuming every dependency's compile
// output as an input, and folds each dependency's own ActionsInfo set in as
// a transitive child so the driver can recover the whole closure from the
// top-level label alone.
func genLinkImpl(ctx *evaluator.Context, target *pkgloader.Target, config buildconfig.Configuration, deps configresolve.ResolvedDeps) (configresolve.Providers, error) {
	var inputs []artifact.Artifact
	var children []*actiongraph.NestedSet[*actiongraph.Action]

	for _, cts := range deps {
		for _, ct := range cts {
			raw, ok := ct.Providers[ActionsProvider]
			if !ok {
				continue
			}
			depActions := raw.(*actiongraph.NestedSet[*actiongraph.Action])
			children = append(children, depActions)
			for _, a := range depActions.Items(actiongraph.OrderStable) {
				inputs = append(inputs, a.Outputs...)
			}
		}
	}

	out := artifact.NewDerivedArtifact(target.Name+".out", target.Label)
	action := &actiongraph.Action{
		Label:    target.Label,
		Mnemonic: "GenLink",
		Argv:     []string{"/bin/sh", "-c", "cat " + joinPaths(inputs) + " > " + out.ExecRootPath},
		Inputs:   actiongraph.NewNestedSet(inputs),
		Outputs:  []artifact.Artifact{out},
	}

	own := actiongraph.NewNestedSet([]*actiongraph.Action{action}, children...)
	return configresolve.Providers{
		ActionsProvider: own,
	}, nil
}

func joinPaths(artifacts []artifact.Artifact) string {
	var out string
	for i, a := range artifacts {
		if i > 0 {
			out += " "
		}
		out += a.ExecRootPath
	}
	return out
}

// genFailImpl declares one action that always exits non-zero, for exercising
// --keep_going behavior across a level with a mix of outcomes.
func genFailImpl(ctx *evaluator.Context, target *pkgloader.Target, config buildconfig.Configuration, deps configresolve.ResolvedDeps) (configresolve.Providers, error) {
	action := &actiongraph.Action{
		Label:    target.Label,
		Mnemonic: "GenFail",
		Argv:     []string{"/bin/sh", "-c", "exit 1"},
	}
	return configresolve.Providers{
		ActionsProvider: actiongraph.NewNestedSet([]*actiongraph.Action{action}),
	}, nil
}

func testRules() Rules {
	return Rules{
		Registry: pkgloader.RuleRegistry{
			"gen_compile": nil,
			"gen_link":    {"deps"},
			"gen_fail":    nil,
		},
		Implementations: map[string]configresolve.RuleImplementation{
			"gen_compile": genCompileImpl,
			"gen_link":    genLinkImpl,
			"gen_fail":    genFailImpl,
		},
	}
}

func testConfig(t *testing.T) buildconfig.Configuration {
	t.Helper()
	c, err := buildconfig.NewConfiguration("linux/amd64", "fastbuild", nil)
	require.NoError(t, err)
	return c
}

func TestBuildExecutesATwoLevelActionGraph(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, workspace, "a/BUILD.star", `gen_compile(name = "compile")`)
	writeFile(t, workspace, "b/BUILD.star", `gen_link(name = "link", deps = ["//a:compile"])`)

	d, err := New(context.Background(), workspace, buildconfig.DefaultBuildOptions(), testRules(), testLogger(t))
	require.NoError(t, err)
	defer d.Close()

	result, err := d.Build(context.Background(), []string{"//b:link"}, testConfig(t))
	require.NoError(t, err)
	require.Len(t, result.Actions, 2)

	var sawCompile, sawLink bool
	for _, a := range result.Actions {
		if a.ExitCode != 0 {
			t.Fatalf("action %s exited %d: %s", a.ActionKey, a.ExitCode, a.Stderr)
		}
		if len(a.Outputs) != 1 {
			continue
		}
		switch a.Outputs[0].ExecRootPath {
		case "compile.out":
			sawCompile = true
		case "link.out":
			sawLink = true
		}
	}
	require.True(t, sawCompile, "compile action should have run")
	require.True(t, sawLink, "link action should have run")
}

func TestBuildIsCachedOnSecondCall(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, workspace, "a/BUILD.star", `gen_compile(name = "compile")`)

	d, err := New(context.Background(), workspace, buildconfig.DefaultBuildOptions(), testRules(), testLogger(t))
	require.NoError(t, err)
	defer d.Close()

	config := testConfig(t)
	first, err := d.Build(context.Background(), []string{"//a:compile"}, config)
	require.NoError(t, err)
	require.Len(t, first.Actions, 1)
	require.False(t, first.Actions[0].CacheHit)

	second, err := d.Build(context.Background(), []string{"//a:compile"}, config)
	require.NoError(t, err)
	require.Len(t, second.Actions, 1)
	require.True(t, second.Actions[0].CacheHit)
}

func TestBuildKeepGoingContinuesPastAFailingLevel(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, workspace, "a/BUILD.star", `
gen_compile(name = "ok")
gen_fail(name = "broken")
`)

	opts := buildconfig.DefaultBuildOptions()
	opts.KeepGoing = true

	d, err := New(context.Background(), workspace, opts, testRules(), testLogger(t))
	require.NoError(t, err)
	defer d.Close()

	result, err := d.Build(context.Background(), []string{"//a:ok", "//a:broken"}, testConfig(t))
	require.NoError(t, err, "--keep_going must not surface the failing action's error")
	require.Len(t, result.Actions, 1, "only the succeeding action's result is collected")
	require.Equal(t, 0, result.Actions[0].ExitCode)
}
