package spawn

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"
)

// LocalRunner executes actions as subprocesses of the current process, on
// the same machine that staged the execution root.
type LocalRunner struct{}

func NewLocalRunner() *LocalRunner { return &LocalRunner{} }

func (r *LocalRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	argv := req.Argv
	if len(argv) == 0 && req.SpawnTool != "" {
		argv = flattenSpawnSpec(req.SpawnTool, req.SpawnArgs)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("local runner: empty argv")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = req.Root
	cmd.Env = flattenEnv(req.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	finished := time.Now()

	result := &RunResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		StartedAt:  started,
		FinishedAt: finished,
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("local runner: %w", runErr)
	}

	result.ExitCode = 0
	return result, nil
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// flattenSpawnSpec renders a structured spawn spec as an argv for runners
// that execute a real process (local, SSH). The convention matches how
// action mnemonics in practice invoke a fixed tool with named flags.
func flattenSpawnSpec(tool string, args map[string]string) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	argv := []string{tool}
	for _, k := range keys {
		if v := args[k]; v == "" {
			argv = append(argv, k)
		} else {
			argv = append(argv, k, v)
		}
	}
	return argv
}

var _ Runner = (*LocalRunner)(nil)
