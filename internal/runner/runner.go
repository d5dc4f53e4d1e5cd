package runner

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mmrzaf/testboot/internal/domain"
	"github.com/mmrzaf/testboot/internal/exec"
	"github.com/mmrzaf/testboot/internal/logging"
)

// TestRunner hands test discovery and execution to an external command.
// Reporting is left entirely to that command.
type TestRunner struct {
	argv          []string
	discoveryRoot string
	runner        exec.Runner
	logger        *logging.Logger
}

// New returns a TestRunner for argv. An empty discoveryRoot means the
// process's working directory at the time Run is called.
func New(argv []string, discoveryRoot string, runner exec.Runner, logger *logging.Logger) *TestRunner {
	return &TestRunner{
		argv:          append([]string(nil), argv...),
		discoveryRoot: discoveryRoot,
		runner:        runner,
		logger:        logger.WithComponent("runner"),
	}
}

func (r *TestRunner) Command() (domain.Command, error) {
	if len(r.argv) == 0 || r.argv[0] == "" {
		return domain.Command{}, errors.New("test command is empty")
	}
	dir := r.discoveryRoot
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return domain.Command{}, fmt.Errorf("failed to resolve discovery root: %w", err)
		}
		dir = wd
	}
	return domain.Command{Name: r.argv[0], Args: r.argv[1:], Dir: dir}, nil
}

// Run returns the test command's exit code. A command that cannot be started
// reports exit code 1 with a non-nil error.
func (r *TestRunner) Run(ctx context.Context) (int, error) {
	cmd, err := r.Command()
	if err != nil {
		return 1, err
	}

	r.logger.Infow("runner.started", map[string]any{"argv": cmd.Argv(), "discovery_root": cmd.Dir})
	code, err := r.runner.Run(ctx, cmd)
	if err != nil {
		return code, fmt.Errorf("failed to run tests: %w", err)
	}
	r.logger.Infow("runner.finished", map[string]any{"exit_code": code})
	return code, nil
}
