package sessions

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmrzaf/testboot/internal/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// Repository stores bootstrap session history.
type Repository interface {
	Init() error
	Create(session *domain.Session) error
	Update(session *domain.Session) error
	Get(id string) (*domain.Session, error)
	List(filter domain.SessionFilter) ([]*domain.Session, error)
	Close() error
}

// Open picks a backend from dsn: postgres:// and postgresql:// URLs go to
// PostgreSQL, anything else is treated as a SQLite file path.
func Open(dsn string) (Repository, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("session history dsn is required")
	}
	var repo Repository
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		repo = NewPostgresRepository(dsn)
	} else {
		repo = NewSQLiteRepository(dsn)
	}
	if err := repo.Init(); err != nil {
		return nil, fmt.Errorf("failed to open session history: %w", err)
	}
	return repo, nil
}

const sessionColumns = `id, root, marker_path, marker_present, build_invoked, build_exit_code,
	tests_invoked, test_exit_code, exit_code, policy, config_hash, status,
	started_at, completed_at, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var buildExit, testExit sql.NullInt64
	var completedAt sql.NullTime
	var errStr sql.NullString
	var policy, status string

	err := row.Scan(
		&s.ID, &s.Root, &s.MarkerPath, &s.MarkerPresent, &s.BuildInvoked, &buildExit,
		&s.TestsInvoked, &testExit, &s.ExitCode, &policy, &s.ConfigHash, &status,
		&s.StartedAt, &completedAt, &errStr,
	)
	if err != nil {
		return nil, err
	}

	s.Policy = domain.BuildFailurePolicy(policy)
	s.Status = domain.SessionStatus(status)
	s.StartedAt = s.StartedAt.UTC()
	if buildExit.Valid {
		v := int(buildExit.Int64)
		s.BuildExitCode = &v
	}
	if testExit.Valid {
		v := int(testExit.Int64)
		s.TestExitCode = &v
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		s.CompletedAt = &t
	}
	if errStr.Valid {
		s.Error = errStr.String
	}
	return &s, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// listQuery builds the history listing. placeholder renders the n-th bind
// parameter for the backend.
func listQuery(filter domain.SessionFilter, placeholder func(n int) string) (string, []any) {
	query := "SELECT " + sessionColumns + " FROM sessions"

	var where []string
	args := make([]any, 0, 3)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, "status = "+placeholder(len(args)))
	}
	if filter.Since != nil {
		args = append(args, filter.Since.UTC())
		where = append(where, "started_at >= "+placeholder(len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY started_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT " + placeholder(len(args))
	}
	return query, args
}

func collect(rows *sql.Rows) ([]*domain.Session, error) {
	defer rows.Close()

	out := make([]*domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
