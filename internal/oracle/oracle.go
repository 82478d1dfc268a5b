// Package oracle invokes the external test runner and translates its
// result into a structured verdict.
//
// The oracle never propagates failures: a hung run becomes a timed-out
// verdict and a missing runner becomes a failed verdict with a diagnostic.
// The absence of a working oracle degrades the loop's guarantees, it never
// crashes it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// How long Wait keeps draining output pipes after the kill signal. A test
// command can leave a detached daemon holding the pipe open; without this
// bound the loop would block on it forever.
const pipeWaitDelay = 3 * time.Second

// Verdict is the result of one test invocation. Exit code 0 means passed.
type Verdict struct {
	Passed   bool   `json:"passed"`
	Output   string `json:"output"`
	TimedOut bool   `json:"timed_out"`
}

// Runner invokes an external test command against a working tree.
type Runner struct {
	command []string
	dir     string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner builds a runner. The test path selector is appended to command
// as the final argument on each run. dir is the working directory for the
// subprocess.
func NewRunner(command []string, dir string, timeout time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		command: command,
		dir:     dir,
		timeout: timeout,
		logger:  logger,
	}
}

// Run executes the test command with a bounded wall-clock timeout and
// returns a verdict. It blocks until the run completes or times out; this
// is the loop's only suspension point.
func (r *Runner) Run(ctx context.Context, testPath string) Verdict {
	if len(r.command) == 0 {
		return Verdict{Passed: false, Output: "no test command configured"}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append(append([]string{}, r.command[1:]...), testPath)
	cmd := exec.CommandContext(runCtx, r.command[0], args...)
	cmd.Dir = r.dir

	// Run the command in its own process group and kill the whole group on
	// timeout, so backgrounded children die with it instead of keeping the
	// output pipe (and the loop) alive.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = pipeWaitDelay

	start := time.Now()
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		r.logger.Warn("test run timed out",
			zap.Duration("timeout", r.timeout),
			zap.Strings("command", r.command))
		return Verdict{
			Passed:   false,
			Output:   fmt.Sprintf("Timeout after %s", r.timeout),
			TimedOut: true,
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The runner itself could not be invoked (not found,
			// permission). Degrade to a failed verdict.
			r.logger.Warn("test runner unavailable", zap.Error(err))
			return Verdict{
				Passed: false,
				Output: fmt.Sprintf("test runner unavailable: %v", err),
			}
		}
	}

	passed := cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 0
	r.logger.Debug("test run finished",
		zap.Bool("passed", passed),
		zap.Duration("elapsed", elapsed))

	return Verdict{Passed: passed, Output: string(out)}
}
