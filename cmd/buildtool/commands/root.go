// Package commands wires cmd/buildtool's cobra command tree to
// internal/driver. It owns no rule implementations of its own: the concrete
// rule set a workspace builds with is read from an operator-supplied
// .buildtool/rules.json dependency-attribute manifest, never hardcoded here.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildtool/buildtool/pkg/buildconfig"
	"github.com/buildtool/buildtool/pkg/telemetry"
)

var (
	workspaceRoot string
	logLevel      string
	logFormat     string

	keepGoing                           bool
	jobs                                int
	diskCachePath                       string
	remoteCacheURL                      string
	repositoryDisableDownload           bool
	experimentalSiblingRepositoryLayout bool

	platform        string
	compilationMode string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buildtool",
		Short: "A hermetic, incrementally-rebuilding build tool",
		Long: `buildtool analyzes a workspace of package-definition files into a graph of
configured targets, expands each into the actions it declares, and executes
that action graph incrementally: unchanged actions rehydrate from the action
cache instead of re-running.

buildtool has no opinion on what a "rule" builds — the dependency-attribute
shape of each rule kind comes from .buildtool/rules.json in the workspace
root, and a build command with no matching rule implementation compiled into
this binary errors per-action rather than guessing.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVar(&workspaceRoot, "workspace", ".", "workspace root directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log_level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log_format", "console", "log format (console, json)")

	rootCmd.PersistentFlags().BoolVar(&keepGoing, "keep_going", false, "continue past failing actions instead of stopping at the first")
	rootCmd.PersistentFlags().IntVar(&jobs, "jobs", 0, "maximum concurrent actions per level (0 = number of CPUs)")
	rootCmd.PersistentFlags().StringVar(&diskCachePath, "disk_cache", "", "path to the on-disk action cache (default: $WORKSPACE/.buildtool-cache/actions.db)")
	rootCmd.PersistentFlags().StringVar(&remoteCacheURL, "remote_cache", "", "remote cache/execution service address")
	rootCmd.PersistentFlags().BoolVar(&repositoryDisableDownload, "repository_disable_download", false, "fail instead of fetching a missing external repository")
	rootCmd.PersistentFlags().BoolVar(&experimentalSiblingRepositoryLayout, "experimental_sibling_repository_layout", false, "lay external repositories out as siblings of the main workspace under the execution root")

	rootCmd.PersistentFlags().StringVar(&platform, "platform", "linux/amd64", "target platform (e.g. linux/amd64)")
	rootCmd.PersistentFlags().StringVar(&compilationMode, "compilation_mode", "fastbuild", "compilation mode (fastbuild, opt, dbg)")

	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newCleanCommand())
	rootCmd.AddCommand(newShutdownCommand())
	rootCmd.AddCommand(newInfoCommand())

	return rootCmd
}

// buildOptionsFromFlags assembles a buildconfig.BuildOptions from the persistent
// flags every command shares.
func buildOptionsFromFlags() buildconfig.BuildOptions {
	return buildconfig.BuildOptions{
		KeepGoing:                           keepGoing,
		Jobs:                                jobs,
		RepositoryDisableDownload:           repositoryDisableDownload,
		DiskCachePath:                       diskCachePath,
		RemoteCacheURL:                      remoteCacheURL,
		ExperimentalSiblingRepositoryLayout: experimentalSiblingRepositoryLayout,
	}
}

func newTelemetryLogger() (*telemetry.Logger, error) {
	format := logFormat
	if format != "json" {
		format = "console"
	}
	return telemetry.NewLogger(telemetry.LoggingConfig{
		Level:      logLevel,
		Format:     format,
		Output:     "stderr",
		TimeFormat: "rfc3339",
	})
}
