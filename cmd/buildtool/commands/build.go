package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildtool/buildtool/internal/driver"
	"github.com/buildtool/buildtool/pkg/buildconfig"
)

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <label>...",
		Short: "Analyze and execute the action graph for one or more targets",
		Long: `build resolves each given label to a configured target under the platform
and compilation mode flags, collects every action its rule implementation
declares (transitively, through its dependencies), and executes the
resulting action graph level by level. An action whose action_key already
has a cache record rehydrates instead of re-running.`,
		Example: `  buildtool build //a:lib
  buildtool build --jobs 8 --keep_going //a:lib //b:bin`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), args)
		},
	}
	return cmd
}

func runBuild(ctx context.Context, labels []string) error {
	logger, err := newTelemetryLogger()
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	registry, err := loadRuleRegistry(workspaceRoot)
	if err != nil {
		return err
	}

	d, err := driver.New(ctx, workspaceRoot, buildOptionsFromFlags(), driver.Rules{Registry: registry}, logger)
	if err != nil {
		return fmt.Errorf("constructing build pipeline: %w", err)
	}
	defer d.Close()

	config, err := buildconfig.NewConfiguration(platform, compilationMode, nil)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	result, err := d.Build(ctx, labels, config)
	if err != nil {
		return err
	}

	cacheHits := 0
	for _, a := range result.Actions {
		if a.CacheHit {
			cacheHits++
		}
	}
	fmt.Printf("built %d labels, %d actions executed (%d from cache)\n", len(result.Labels), len(result.Actions), cacheHits)
	return nil
}
