package spawn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/buildtool/buildtool/pkg/transports/ssh"
)

// SSHRunner executes actions on a remote host over SSH, for build
// configurations that target a different platform than the local machine
// (e.g. a cross-compile worker or a platform-locked test runner).
type SSHRunner struct {
	client *ssh.SSHClient
}

func NewSSHRunner(ctx context.Context, cfg *ssh.Config) (*SSHRunner, error) {
	client, err := ssh.NewSSHClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh runner: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("ssh runner: %w", err)
	}
	return &SSHRunner{client: client}, nil
}

func (r *SSHRunner) Close() error {
	return r.client.Disconnect()
}

func (r *SSHRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	argv := req.Argv
	if len(argv) == 0 && req.SpawnTool != "" {
		argv = flattenSpawnSpec(req.SpawnTool, req.SpawnArgs)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("ssh runner: empty argv")
	}

	cmd := buildRemoteCommand(req.Root, req.Env, argv)

	stdout, stderr, err := r.client.ExecuteCommand(ctx, cmd)
	if err != nil {
		var transportErr *ssh.TransportError
		if errors.As(err, &transportErr) && transportErr.Op == "execute" && !transportErr.Temporary() {
			// A non-temporary "execute" error is the remote command having
			// run and exited non-zero, not a connectivity fault.
			return &RunResult{ExitCode: 1, Stdout: stdout, Stderr: stderr}, nil
		}
		return nil, fmt.Errorf("ssh runner: %w", err)
	}

	return &RunResult{ExitCode: 0, Stdout: stdout, Stderr: stderr}, nil
}

// buildRemoteCommand renders a cd-then-exec shell line: SSHClient.ExecuteCommand
// runs a single command string through the remote shell, so the working
// directory and environment have to be folded into that string rather than
// passed as exec.Cmd fields the way LocalRunner does it.
func buildRemoteCommand(root string, env map[string]string, argv []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cd %s && ", shellQuote(root))
	for k, v := range env {
		fmt.Fprintf(&b, "%s=%s ", k, shellQuote(v))
	}
	for i, a := range argv {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(shellQuote(a))
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var _ Runner = (*SSHRunner)(nil)
