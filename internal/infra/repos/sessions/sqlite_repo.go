package sessions

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mmrzaf/testboot/internal/domain"
)

type SQLiteRepository struct {
	dbPath string
	db     *sql.DB
}

func NewSQLiteRepository(dbPath string) *SQLiteRepository {
	return &SQLiteRepository{dbPath: dbPath}
}

func (r *SQLiteRepository) Init() error {
	if dir := filepath.Dir(r.dbPath); dir != "" && r.dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", r.dbPath+"?_busy_timeout=5000")
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	r.db = db
	return applyMigrations(r.db, sqliteMigrations, func(n int) string { return "?" })
}

func (r *SQLiteRepository) DB() *sql.DB { return r.db }

var sqliteMigrations = []migration{
	{1, `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		marker_path TEXT NOT NULL,
		marker_present BOOLEAN NOT NULL,
		build_invoked BOOLEAN NOT NULL,
		build_exit_code INTEGER,
		tests_invoked BOOLEAN NOT NULL,
		test_exit_code INTEGER,
		exit_code INTEGER NOT NULL,
		policy TEXT NOT NULL,
		config_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		error TEXT
	)`},
	{2, `CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`},
}

func (r *SQLiteRepository) Create(session *domain.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		session.ID, session.Root, session.MarkerPath, session.MarkerPresent,
		session.BuildInvoked, nullableInt(session.BuildExitCode),
		session.TestsInvoked, nullableInt(session.TestExitCode),
		session.ExitCode, string(session.Policy), session.ConfigHash, string(session.Status),
		session.StartedAt.UTC(), nullableTime(session.CompletedAt), session.Error,
	)
	return err
}

func (r *SQLiteRepository) Update(session *domain.Session) error {
	query := `
		UPDATE sessions SET
			marker_present = ?, build_invoked = ?, build_exit_code = ?,
			tests_invoked = ?, test_exit_code = ?, exit_code = ?,
			status = ?, completed_at = ?, error = ?
		WHERE id = ?
	`

	res, err := r.db.Exec(query,
		session.MarkerPresent, session.BuildInvoked, nullableInt(session.BuildExitCode),
		session.TestsInvoked, nullableInt(session.TestExitCode), session.ExitCode,
		string(session.Status), nullableTime(session.CompletedAt), session.Error,
		session.ID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res, session.ID)
}

func (r *SQLiteRepository) Get(id string) (*domain.Session, error) {
	row := r.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

func (r *SQLiteRepository) List(filter domain.SessionFilter) ([]*domain.Session, error) {
	query, args := listQuery(filter, func(n int) string { return "?" })
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
