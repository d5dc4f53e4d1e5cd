package sessions

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mmrzaf/testboot/internal/domain"
)

type PostgresRepository struct {
	dsn string
	db  *sql.DB
}

func NewPostgresRepository(dsn string) *PostgresRepository {
	return &PostgresRepository{dsn: strings.TrimSpace(dsn)}
}

func pgPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func (r *PostgresRepository) Init() error {
	if r.dsn == "" {
		return fmt.Errorf("session history dsn is required")
	}
	db, err := sql.Open("postgres", r.dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return err
	}
	r.db = db
	return applyMigrations(r.db, postgresMigrations, pgPlaceholder)
}

func (r *PostgresRepository) DB() *sql.DB { return r.db }

var postgresMigrations = []migration{
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
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		error TEXT
	)`},
	{2, `CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`},
}

func (r *PostgresRepository) Create(session *domain.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
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

func (r *PostgresRepository) Update(session *domain.Session) error {
	query := `
		UPDATE sessions SET
			marker_present = $1, build_invoked = $2, build_exit_code = $3,
			tests_invoked = $4, test_exit_code = $5, exit_code = $6,
			status = $7, completed_at = $8, error = $9
		WHERE id = $10
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

func (r *PostgresRepository) Get(id string) (*domain.Session, error) {
	row := r.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = $1", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

func (r *PostgresRepository) List(filter domain.SessionFilter) ([]*domain.Session, error) {
	query, args := listQuery(filter, pgPlaceholder)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
