package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShutdownCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Stop the running build server, if any",
		Long: `Every buildtool invocation is its own process with no background server
to keep warm across builds — each command opens the action cache, runs its
analysis and execution, and closes it again before exiting. shutdown exists
for command-line compatibility with tools that do keep a server resident;
here it has nothing to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("no build server is running; nothing to shut down")
			return nil
		},
	}
}
