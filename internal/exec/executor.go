package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/mmrzaf/testboot/internal/domain"
	"github.com/mmrzaf/testboot/internal/logging"
)

// Runner runs a command to completion. A process that starts and exits with
// any status yields its exit code and a nil error; err is set only when the
// process could not be run at all.
type Runner interface {
	Run(ctx context.Context, cmd domain.Command) (int, error)
}

type Executor struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Env nil inherits the caller's environment.
	Env    []string
	logger *logging.Logger
}

func NewExecutor(logger *logging.Logger) *Executor {
	return &Executor{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		logger: logger.WithComponent("exec"),
	}
}

func (e *Executor) Run(ctx context.Context, cmd domain.Command) (int, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return 1, errors.New("empty command")
	}

	c := osexec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = e.Env
	c.Stdin = e.Stdin
	c.Stdout = e.Stdout
	c.Stderr = e.Stderr

	e.logger.Debugw("exec.start", map[string]any{
		"argv": strings.Join(cmd.Argv(), " "),
		"dir":  cmd.Dir,
	})

	started := time.Now()
	err := c.Run()
	code := ExitCode(err)

	fields := map[string]any{
		"argv":        strings.Join(cmd.Argv(), " "),
		"exit_code":   code,
		"duration_ms": time.Since(started).Milliseconds(),
	}
	if err != nil && !IsExitError(err) {
		fields["error"] = err.Error()
		e.logger.Errorw("exec.failed_to_start", fields)
		return code, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}
	e.logger.Debugw("exec.done", fields)
	return code, nil
}

// ExitCode returns the exit code from err, 128+signal for a child killed by a
// signal, 1 if it is not *exec.ExitError, or 0 if nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		// killed by a signal: report it the way a shell does
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
	}

	// not exec.ExitError: assume code 1
	return 1
}

func IsExitError(err error) bool {
	var exitErr *osexec.ExitError
	return errors.As(err, &exitErr)
}
