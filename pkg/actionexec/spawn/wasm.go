package spawn

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASMRunner executes actions whose tool is a WebAssembly module, sandboxed
// in-process via wazero rather than spawned as a native subprocess. Used
// for hermetic, platform-independent tools (formatters, codegen) that ship
// as .wasm binaries instead of per-platform native builds.
type WASMRunner struct {
	runtime wazero.Runtime
	// modules maps a SpawnSpec tool name to the compiled WASM module bytes
	// registered for it through RegisterModule.
	modules map[string][]byte
}

func NewWASMRunner(ctx context.Context) (*WASMRunner, error) {
	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("wasm runner: instantiating WASI: %w", err)
	}
	return &WASMRunner{runtime: runtime, modules: make(map[string][]byte)}, nil
}

func (r *WASMRunner) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// RegisterModule associates a tool name (as referenced by an action's
// SpawnSpec.Tool) with compiled WASM module bytes.
func (r *WASMRunner) RegisterModule(tool string, wasmBytes []byte) {
	r.modules[tool] = wasmBytes
}

func (r *WASMRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	tool := req.SpawnTool
	argv := req.Argv
	if tool == "" && len(argv) > 0 {
		tool = argv[0]
	}

	module, ok := r.modules[tool]
	if !ok {
		return nil, fmt.Errorf("wasm runner: no module registered for tool %q", tool)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	config := wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithFS(os.DirFS(req.Root)).
		WithArgs(argv...)
	for k, v := range req.Env {
		config = config.WithEnv(k, v)
	}

	started := time.Now()
	_, err := r.runtime.InstantiateWithConfig(runCtx, module, config)
	finished := time.Now()

	result := &RunResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		StartedAt:  started,
		FinishedAt: finished,
	}

	if err != nil {
		if exitCode, ok := wasmExitCode(err); ok {
			result.ExitCode = exitCode
			return result, nil
		}
		return nil, fmt.Errorf("wasm runner: %w", err)
	}

	result.ExitCode = 0
	return result, nil
}

// wasmExitCode extracts a WASI process exit code from an instantiation
// error, distinguishing a normal (possibly non-zero) exit from a genuine
// runtime fault.
func wasmExitCode(err error) (int, bool) {
	type exitError interface {
		ExitCode() uint32
	}
	if ee, ok := err.(exitError); ok {
		return int(ee.ExitCode()), true
	}
	return 0, false
}

var _ Runner = (*WASMRunner)(nil)
