package commands

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
)

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print workspace and cache paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			runInfo()
			return nil
		},
	}
}

func runInfo() {
	cacheDir := filepath.Join(workspaceRoot, ".buildtool-cache")

	resolvedDiskCache := diskCachePath
	if resolvedDiskCache == "" {
		resolvedDiskCache = filepath.Join(cacheDir, "actions.db")
	}

	resolvedJobs := jobs
	if resolvedJobs <= 0 {
		resolvedJobs = runtime.NumCPU()
	}

	fmt.Printf("workspace-root: %s\n", workspaceRoot)
	fmt.Printf("execution-root: %s\n", filepath.Join(cacheDir, "execroot"))
	fmt.Printf("action-cache: %s\n", resolvedDiskCache)
	fmt.Printf("blob-store: %s\n", filepath.Join(cacheDir, "cas"))
	fmt.Printf("rules-manifest: %s\n", filepath.Join(workspaceRoot, rulesManifestPath))
	fmt.Printf("jobs: %d\n", resolvedJobs)
	fmt.Printf("platform: %s\n", platform)
	fmt.Printf("compilation-mode: %s\n", compilationMode)
	if remoteCacheURL != "" {
		fmt.Printf("remote-cache: %s\n", remoteCacheURL)
	}
}
