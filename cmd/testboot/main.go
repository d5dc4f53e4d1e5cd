package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mmrzaf/testboot/internal/anchor"
	"github.com/mmrzaf/testboot/internal/app"
	"github.com/mmrzaf/testboot/internal/config"
	"github.com/mmrzaf/testboot/internal/domain"
	"github.com/mmrzaf/testboot/internal/exec"
	"github.com/mmrzaf/testboot/internal/gate"
	"github.com/mmrzaf/testboot/internal/hashing"
	"github.com/mmrzaf/testboot/internal/infra/repos/sessions"
	"github.com/mmrzaf/testboot/internal/logging"
	"github.com/mmrzaf/testboot/internal/runner"
	"github.com/mmrzaf/testboot/internal/validation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configPath string
	rootDir    string
	historyDB  string
	logLevel   string
)

// exitCodeError carries a subprocess exit code out of a command.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitCodeError) Unwrap() error { return e.err }

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				fmt.Fprintln(os.Stderr, "Error:", exitErr.err)
			}
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "testboot",
		Short: "Build the reference database if missing, then run the test suite",
		Long: `testboot makes sure the reference database directory exists next to the
tool, building it on first run, and then runs the project's tests. It exits
with the test command's exit code.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBootstrap,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $TESTBOOT_CONFIG or ./testboot.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Anchor directory (default: directory of the testboot executable)")
	rootCmd.PersistentFlags().StringVar(&historyDB, "history-db", "", "Session history database path or postgres:// DSN, or 'off'")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")

	rootCmd.AddCommand(gateCmd(), testCmd(), statusCmd(), historyCmd(), configCmd())
	return rootCmd
}

type env struct {
	cfg    *config.Config
	root   string
	logger *logging.Logger
	gate   *gate.Gate
	tests  *runner.TestRunner
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}
	if historyDB != "" {
		cfg.HistoryDB = historyDB
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := validation.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setup() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.LogLevel)

	root, err := anchor.Resolve(cfg.Root)
	if err != nil {
		logger.Errorw("bootstrap.root_unresolved", map[string]any{"error": err.Error()})
		return nil, err
	}

	if err := validation.ValidateHistoryLocation(filepath.Join(root, cfg.MarkerName), cfg.HistoryDBPath(root)); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ex := exec.NewExecutor(logger)
	return &env{
		cfg:    cfg,
		root:   root,
		logger: logger,
		gate:   gate.New(cfg.MarkerName, cfg.BuildTool, cfg.BuildArgs, ex, logger),
		tests:  runner.New(cfg.TestCommand, cfg.DiscoveryRoot, ex, logger),
	}, nil
}

func (e *env) openHistory() sessions.Repository {
	dsn := e.cfg.HistoryDBPath(e.root)
	if dsn == "" {
		return nil
	}
	repo, err := sessions.Open(dsn)
	if err != nil {
		e.logger.Warnw("history.unavailable", map[string]any{"error": err.Error()})
		return nil
	}
	return repo
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}

	policy := domain.BuildFailurePolicy(e.cfg.OnBuildFailure)
	hash, err := hashing.HashBootstrapConfig(e.cfg.MarkerName, e.gate.BuildCommand(e.root), e.cfg.TestCommand, e.cfg.DiscoveryRoot, policy)
	if err != nil {
		return err
	}

	var history sessions.Repository
	defer func() {
		if history != nil {
			_ = history.Close()
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	svc := app.NewBootstrapService(e.gate, e.tests, nil, policy, hash, e.logger)
	svc.SetHistoryOpener(func() sessions.Repository {
		history = e.openHistory()
		return history
	})
	session, err := svc.Bootstrap(ctx, e.root)
	if session.ExitCode != 0 {
		return &exitCodeError{code: session.ExitCode, err: err}
	}
	return err
}

func gateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gate",
		Short: "Build the reference database if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			out, err := e.gate.EnsureDependency(ctx, e.root)
			if err != nil {
				if out != nil && out.BuildExitCode != 0 {
					return &exitCodeError{code: out.BuildExitCode, err: err}
				}
				return err
			}
			if out.MarkerPresent {
				fmt.Fprintf(cmd.OutOrStdout(), "Database present: %s\n", out.MarkerPath)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Database built: %s\n", out.MarkerPath)
			}
			return nil
		},
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Run the test command without checking the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			code, err := e.tests.Run(ctx)
			if code != 0 {
				return &exitCodeError{code: code, err: err}
			}
			return err
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the database is expected and whether it exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			present, err := e.gate.Check(e.root)
			if err != nil {
				return err
			}

			data := [][2]string{
				{"root", e.root},
				{"marker_path", e.gate.MarkerPath(e.root)},
				{"marker_present", fmt.Sprintf("%t", present)},
				{"build_command", joinArgv(e.gate.BuildCommand(e.root).Argv())},
				{"test_command", joinArgv(e.cfg.TestCommand)},
				{"on_build_failure", e.cfg.OnBuildFailure},
			}
			printData(cmd, data)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.AddCommand(showCmd)
	return cmd
}
