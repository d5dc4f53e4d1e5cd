package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mmrzaf/testboot/internal/config"
	"github.com/mmrzaf/testboot/internal/domain"
)

func IsValidPolicy(p string) bool {
	switch domain.BuildFailurePolicy(p) {
	case domain.PolicyAbort, domain.PolicyContinue:
		return true
	}
	return false
}

// IsValidMarkerName accepts a single relative path element so the marker
// always stays directly under the root.
func IsValidMarkerName(name string) bool {
	if strings.TrimSpace(name) != name || name == "" {
		return false
	}
	if name == "." || name == ".." || filepath.IsAbs(name) {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func IsValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func ValidateConfig(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if !IsValidMarkerName(cfg.MarkerName) {
		return fmt.Errorf("invalid marker name %q: must be a single path element", cfg.MarkerName)
	}
	if strings.TrimSpace(cfg.BuildTool) == "" {
		return errors.New("build tool is required")
	}
	if len(cfg.TestCommand) == 0 || strings.TrimSpace(cfg.TestCommand[0]) == "" {
		return errors.New("test command is required")
	}
	if !IsValidPolicy(cfg.OnBuildFailure) {
		return fmt.Errorf("invalid build failure policy %q (abort|continue)", cfg.OnBuildFailure)
	}
	if !IsValidLogLevel(cfg.LogLevel) {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	return nil
}

// ValidateHistoryLocation rejects a SQLite history file at or under the
// marker path, where creating it would make the marker look present. An empty
// dsn (history off) and PostgreSQL URLs are always accepted.
func ValidateHistoryLocation(markerPath, dsn string) error {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return nil
	}

	marker, err := filepath.Abs(markerPath)
	if err != nil {
		return err
	}
	history, err := filepath.Abs(dsn)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(marker, history)
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("history database %s must not be inside the marker path %s", history, marker)
	}
	return nil
}
