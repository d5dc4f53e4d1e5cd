// Package gate makes sure the reference database exists before tests run.
//
// The gate trusts existence alone: any filesystem entry at the marker path
// satisfies it, and it never rebuilds, validates or removes that entry.
package gate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmrzaf/testboot/internal/domain"
	"github.com/mmrzaf/testboot/internal/exec"
	"github.com/mmrzaf/testboot/internal/logging"
)

var ErrRootNotAbsolute = errors.New("gate root must be an absolute path")

// BuildError reports a builder that ran and exited non-zero.
type BuildError struct {
	Command  domain.Command
	ExitCode int
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("database build %q exited with code %d", e.Command.Name, e.ExitCode)
}

type Outcome struct {
	MarkerPath    string
	MarkerPresent bool
	BuildInvoked  bool
	BuildExitCode int
	// MarkerCreated is set when the marker exists after a build.
	MarkerCreated bool
}

type Gate struct {
	markerName string
	buildTool  string
	buildArgs  []string
	runner     exec.Runner
	logger     *logging.Logger
}

func New(markerName, buildTool string, buildArgs []string, runner exec.Runner, logger *logging.Logger) *Gate {
	return &Gate{
		markerName: markerName,
		buildTool:  buildTool,
		buildArgs:  append([]string(nil), buildArgs...),
		runner:     runner,
		logger:     logger.WithComponent("gate"),
	}
}

func (g *Gate) MarkerPath(root string) string {
	return filepath.Join(root, g.markerName)
}

// BuildCommand is the builder invocation for root; it runs inside root.
func (g *Gate) BuildCommand(root string) domain.Command {
	return domain.Command{
		Name: g.buildTool,
		Args: append([]string(nil), g.buildArgs...),
		Dir:  root,
	}
}

func (g *Gate) Check(root string) (bool, error) {
	if !filepath.IsAbs(root) {
		return false, fmt.Errorf("%w: %q", ErrRootNotAbsolute, root)
	}
	return exists(g.MarkerPath(root))
}

// EnsureDependency builds the database when the marker is absent and blocks
// until the builder exits. A builder that ran but failed yields *BuildError
// alongside a populated Outcome.
func (g *Gate) EnsureDependency(ctx context.Context, root string) (*Outcome, error) {
	present, err := g.Check(root)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		MarkerPath:    g.MarkerPath(root),
		MarkerPresent: present,
	}
	if present {
		g.logger.Debugw("gate.marker_present", map[string]any{"marker": out.MarkerPath})
		return out, nil
	}

	cmd := g.BuildCommand(root)
	g.logger.Infow("gate.build_started", map[string]any{
		"marker": out.MarkerPath,
		"tool":   cmd.Name,
		"args":   cmd.Args,
	})

	out.BuildInvoked = true
	code, err := g.runner.Run(ctx, cmd)
	out.BuildExitCode = code
	if err != nil {
		return out, fmt.Errorf("failed to run database build: %w", err)
	}

	created, statErr := exists(out.MarkerPath)
	if statErr != nil {
		return out, statErr
	}
	out.MarkerCreated = created

	if code != 0 {
		g.logger.Errorw("gate.build_failed", map[string]any{"exit_code": code, "marker_created": created})
		return out, &BuildError{Command: cmd, ExitCode: code}
	}
	if !created {
		g.logger.Warnw("gate.marker_missing_after_build", map[string]any{"marker": out.MarkerPath})
	}
	g.logger.Infow("gate.build_finished", map[string]any{"marker_created": created})
	return out, nil
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}
