package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmrzaf/testboot/internal/domain"
	"github.com/mmrzaf/testboot/internal/gate"
	"github.com/mmrzaf/testboot/internal/infra/repos/sessions"
	"github.com/mmrzaf/testboot/internal/logging"
)

type DependencyGate interface {
	MarkerPath(root string) string
	EnsureDependency(ctx context.Context, root string) (*gate.Outcome, error)
}

type TestRunner interface {
	Run(ctx context.Context) (int, error)
}

// BootstrapService runs the gate and then the tests, strictly in that order.
type BootstrapService struct {
	gate        DependencyGate
	tests       TestRunner
	history     sessions.Repository
	openHistory func() sessions.Repository
	policy     domain.BuildFailurePolicy
	configHash string
	logger     *logging.Logger
	now        func() time.Time
}

// NewBootstrapService wires the service. history may be nil to skip
// session recording.
func NewBootstrapService(
	g DependencyGate,
	tests TestRunner,
	history sessions.Repository,
	policy domain.BuildFailurePolicy,
	configHash string,
	logger *logging.Logger,
) *BootstrapService {
	if policy == "" {
		policy = domain.PolicyAbort
	}
	return &BootstrapService{
		gate:       g,
		tests:      tests,
		history:    history,
		policy:     policy,
		configHash: configHash,
		logger:     logger.WithComponent("bootstrap"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetHistoryOpener defers opening session history until the gate has run,
// so a history backend that creates files cannot satisfy the marker. It is
// only consulted when no repository was passed to NewBootstrapService.
func (s *BootstrapService) SetHistoryOpener(open func() sessions.Repository) {
	s.openHistory = open
}

// Bootstrap always returns a session whose ExitCode is the process exit code
// to use. The error carries failures that have no exit code of their own,
// such as an unusable root or a command that could not be started, and
// build failures under the abort policy.
func (s *BootstrapService) Bootstrap(ctx context.Context, root string) (*domain.Session, error) {
	session := &domain.Session{
		ID:         uuid.New().String(),
		Root:       root,
		MarkerPath: s.gate.MarkerPath(root),
		Policy:     s.policy,
		ConfigHash: s.configHash,
		Status:     domain.SessionStatusRunning,
		StartedAt:  s.now(),
	}

	// Nothing is written for the session until the gate has looked at the
	// marker.
	outcome, err := s.gate.EnsureDependency(ctx, root)
	s.record(session, true)
	if outcome == nil {
		return s.finish(session, domain.SessionStatusError, 1, err)
	}

	session.MarkerPresent = outcome.MarkerPresent
	session.BuildInvoked = outcome.BuildInvoked
	if outcome.BuildInvoked {
		code := outcome.BuildExitCode
		session.BuildExitCode = &code
	}

	if err != nil {
		if s.policy == domain.PolicyAbort {
			code := outcome.BuildExitCode
			if code == 0 {
				code = 1
			}
			s.logger.Errorw("bootstrap.aborted", map[string]any{
				"session_id": session.ID,
				"exit_code":  code,
				"error":      err.Error(),
			})
			return s.finish(session, domain.SessionStatusBuildFailed, code, err)
		}
		session.Error = err.Error()
		s.logger.Warnw("bootstrap.build_failed_continuing", map[string]any{
			"session_id": session.ID,
			"error":      err.Error(),
		})
	}

	code, err := s.tests.Run(ctx)
	session.TestsInvoked = true
	session.TestExitCode = &code
	if err != nil {
		return s.finish(session, domain.SessionStatusError, code, err)
	}

	status := domain.SessionStatusPassed
	if code != 0 {
		status = domain.SessionStatusFailed
	}
	return s.finish(session, status, code, nil)
}

func (s *BootstrapService) finish(session *domain.Session, status domain.SessionStatus, exitCode int, err error) (*domain.Session, error) {
	completed := s.now()
	session.Status = status
	session.ExitCode = exitCode
	session.CompletedAt = &completed
	if err != nil {
		session.Error = joinError(session.Error, err.Error())
	}
	s.record(session, false)

	s.logger.Infow("bootstrap.finished", map[string]any{
		"session_id":    session.ID,
		"status":        string(status),
		"exit_code":     exitCode,
		"build_invoked": session.BuildInvoked,
		"tests_invoked": session.TestsInvoked,
		"duration_ms":   completed.Sub(session.StartedAt).Milliseconds(),
	})
	return session, err
}

// record never fails the bootstrap; history is best effort.
func (s *BootstrapService) record(session *domain.Session, create bool) {
	if s.history == nil && s.openHistory != nil {
		s.history = s.openHistory()
		s.openHistory = nil
	}
	if s.history == nil {
		return
	}
	var err error
	if create {
		err = s.history.Create(session)
	} else {
		err = s.history.Update(session)
	}
	if err != nil {
		s.logger.Warnw("bootstrap.history_write_failed", map[string]any{
			"session_id": session.ID,
			"error":      err.Error(),
		})
	}
}

func joinError(prev, next string) string {
	if prev == "" || prev == next {
		return next
	}
	return fmt.Sprintf("%s; %s", prev, next)
}

// IsBuildFailure reports whether err came from a builder that ran and failed.
func IsBuildFailure(err error) bool {
	var buildErr *gate.BuildError
	return errors.As(err, &buildErr)
}
