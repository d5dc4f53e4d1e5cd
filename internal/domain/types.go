package domain

import (
	"time"
)

// Command is an external process invocation. An empty Dir inherits the
// caller's working directory.
type Command struct {
	Name string   `json:"name" yaml:"name"`
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
	Dir  string   `json:"dir,omitempty" yaml:"dir,omitempty"`
}

func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

type BuildFailurePolicy string

const (
	// PolicyAbort stops the bootstrap with the builder's exit code.
	PolicyAbort BuildFailurePolicy = "abort"
	// PolicyContinue runs the tests even when the build failed.
	PolicyContinue BuildFailurePolicy = "continue"
)

type Session struct {
	ID            string             `json:"id" yaml:"id"`
	Root          string             `json:"root" yaml:"root"`
	MarkerPath    string             `json:"marker_path" yaml:"marker_path"`
	MarkerPresent bool               `json:"marker_present" yaml:"marker_present"`
	BuildInvoked  bool               `json:"build_invoked" yaml:"build_invoked"`
	BuildExitCode *int               `json:"build_exit_code,omitempty" yaml:"build_exit_code,omitempty"`
	TestsInvoked  bool               `json:"tests_invoked" yaml:"tests_invoked"`
	TestExitCode  *int               `json:"test_exit_code,omitempty" yaml:"test_exit_code,omitempty"`
	ExitCode      int                `json:"exit_code" yaml:"exit_code"`
	Policy        BuildFailurePolicy `json:"policy" yaml:"policy"`
	ConfigHash    string             `json:"config_hash" yaml:"config_hash"`
	Status        SessionStatus      `json:"status" yaml:"status"`
	StartedAt     time.Time          `json:"started_at" yaml:"started_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Error         string             `json:"error,omitempty" yaml:"error,omitempty"`
}

type SessionStatus string

const (
	SessionStatusRunning     SessionStatus = "running"
	SessionStatusPassed      SessionStatus = "passed"
	SessionStatusFailed      SessionStatus = "failed"
	SessionStatusBuildFailed SessionStatus = "build_failed"
	SessionStatusError       SessionStatus = "error"
)

func IsValidSessionStatus(s string) bool {
	switch SessionStatus(s) {
	case SessionStatusRunning, SessionStatusPassed, SessionStatusFailed, SessionStatusBuildFailed, SessionStatusError:
		return true
	}
	return false
}

// SessionFilter narrows history listings. Zero values match everything.
type SessionFilter struct {
	Limit  int
	Status string
	Since  *time.Time
}
