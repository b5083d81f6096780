package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newCleanCommand() *cobra.Command {
	var expunge bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove build outputs",
		Long: `clean removes the execution roots left behind by past action runs.
With --expunge it also removes the action cache and the content-addressed
blob store, so the next build starts with no cached action records at all.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(expunge)
		},
	}
	cmd.Flags().BoolVar(&expunge, "expunge", false, "also remove the action cache and blob store")
	return cmd
}

func runClean(expunge bool) error {
	cacheDir := filepath.Join(workspaceRoot, ".buildtool-cache")

	if !expunge {
		execRoot := filepath.Join(cacheDir, "execroot")
		if err := os.RemoveAll(execRoot); err != nil {
			return fmt.Errorf("removing %s: %w", execRoot, err)
		}
		fmt.Printf("removed %s\n", execRoot)
		return nil
	}

	if err := os.RemoveAll(cacheDir); err != nil {
		return fmt.Errorf("removing %s: %w", cacheDir, err)
	}
	fmt.Printf("removed %s\n", cacheDir)
	return nil
}
