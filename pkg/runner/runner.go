// Package runner executes generated Python programs.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
)

// ErrUnsupportedTarget is returned for programs in a language the runner
// cannot execute.
var ErrUnsupportedTarget = errors.New("runner only executes python programs")

// DefaultTimeout bounds a run when the Runner sets none.
const DefaultTimeout = 60 * time.Second

// Result captures what a program printed and how it exited.
type Result struct {
	Success  bool          `json:"success"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Runner writes a program to a temporary file and runs it with a Python
// interpreter.
type Runner struct {
	// Interpreter is the executable to run; "python3" when empty.
	Interpreter string
	// Workdir is the process working directory; the current one when empty.
	Workdir string
	// Timeout bounds the run; DefaultTimeout when zero, unlimited when negative.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run executes out. A program that exits non-zero is not an error: the exit
// code and stderr are reported in the Result.
func (r *Runner) Run(ctx context.Context, out *codegen.Output) (*Result, error) {
	if out == nil {
		return nil, errors.New("runner: nil program")
	}
	if out.Target != codegen.TargetPython {
		return nil, fmt.Errorf("%w: got %q", ErrUnsupportedTarget, out.Target)
	}
	return r.RunSource(ctx, out.Source)
}

// RunSource executes Python source text.
func (r *Runner) RunSource(ctx context.Context, source string) (*Result, error) {
	interp := r.Interpreter
	if interp == "" {
		interp = "python3"
	}
	path := filepath.Join(os.TempDir(), "agentblocks_"+uuid.NewString()+".py")
	if err := os.WriteFile(path, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("write program: %w", err)
	}
	defer os.Remove(path)

	runCtx := ctx
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, interp, path)
	if r.Workdir != "" {
		cmd.Dir = r.Workdir
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		res.Success = true
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.TimedOut = true
		res.Stderr += fmt.Sprintf("\nprogram timed out after %s", timeout)
	case ctx.Err() != nil:
		return nil, fmt.Errorf("run program: %w", ctx.Err())
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("run %s: %w", interp, runErr)
	}
	r.logger().Debug("program finished", "exit_code", res.ExitCode, "timed_out", res.TimedOut, "duration", res.Duration)
	return res, nil
}
