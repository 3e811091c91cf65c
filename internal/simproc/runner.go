package simproc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/grapheneaffiliate/plogic-core/internal/workerpool"
)

// Output captures one finished simulator invocation.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner invokes the external simulator binary. Implementations block until
// the process exits or ctx is done.
type Runner interface {
	Run(ctx context.Context, args []string) (Output, error)
}

// CLIRunner runs the simulator command line on a pool worker, so the number
// of concurrent child processes never exceeds the pool width.
type CLIRunner struct {
	command   []string
	sourceDir string
	pool      *workerpool.Pool
}

// NewCLIRunner builds a runner for the given command prefix. sourceDir, when
// it names an existing directory, is appended to the child's module search
// path (PYTHONPATH for the python-based simulator CLI).
func NewCLIRunner(command []string, sourceDir string, pool *workerpool.Pool) (*CLIRunner, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("simulator command cannot be empty")
	}
	if pool == nil {
		return nil, fmt.Errorf("worker pool is required")
	}
	return &CLIRunner{
		command:   append([]string(nil), command...),
		sourceDir: sourceDir,
		pool:      pool,
	}, nil
}

// Run executes the simulator with the given subcommand arguments. A non-zero
// exit is not an error here: the exit code is surfaced in Output and mapped
// by the caller. The returned error covers spawn failures and ctx expiry.
func (r *CLIRunner) Run(ctx context.Context, args []string) (Output, error) {
	var out Output
	var runErr error

	if err := r.pool.Do(ctx, func() {
		argv := append(append([]string(nil), r.command[1:]...), args...)
		cmd := exec.CommandContext(ctx, r.command[0], argv...)
		cmd.Env = buildEnv(os.Environ(), r.sourceDir)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		out.Stdout = stdout.String()
		out.Stderr = stderr.String()

		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok && ctx.Err() == nil {
				out.ExitCode = exitErr.ExitCode()
				return
			}
			if ctx.Err() != nil {
				runErr = ctx.Err()
				return
			}
			runErr = fmt.Errorf("failed to start simulator: %w", err)
			return
		}
	}); err != nil {
		return Output{}, err
	}

	if runErr != nil {
		return Output{}, runErr
	}
	return out, nil
}

// buildEnv extends the inherited environment with the simulator source dir,
// only when that directory exists. Later duplicate keys win in os/exec, so
// appending a replacement entry is enough.
func buildEnv(inherited []string, sourceDir string) []string {
	if sourceDir == "" {
		return inherited
	}
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return inherited
	}
	existing := os.Getenv("PYTHONPATH")
	path := sourceDir
	if existing != "" {
		path = existing + string(os.PathListSeparator) + sourceDir
	}
	return append(append([]string(nil), inherited...), "PYTHONPATH="+path)
}
