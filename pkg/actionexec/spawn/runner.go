package spawn

import (
	"context"
	"time"
)

// RunRequest is the runner-agnostic description of a single command
// invocation, already staged onto an execution root.
type RunRequest struct {
	// Root is the execution root's absolute path (LocalRunner, WASMRunner)
	// or remote working directory (SSHRunner).
	Root string

	// Argv is the command and its arguments. Empty when SpawnTool/SpawnArgs
	// describe the invocation instead (the SpawnSpec variant).
	Argv []string

	// SpawnTool and SpawnArgs hold a structured spawn-spec invocation as an
	// alternative to a flat Argv, for runners that interpret it themselves
	// (WASMRunner resolves SpawnTool as a registered WASM module name).
	SpawnTool string
	SpawnArgs map[string]string

	// Env is the subset of the ambient environment the action is allowed
	// to observe, already filtered down to its EnvAllowlist.
	Env map[string]string

	Timeout time.Duration
}

// RunResult is a completed invocation's outcome.
type RunResult struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner executes a single staged command and returns its outcome. A
// non-nil error means the runner itself failed to invoke the command (a
// transport or sandbox fault); a command that ran and exited non-zero is
// reported via RunResult.ExitCode with a nil error.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}
