package sessions

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	stmt    string
}

func applyMigrations(db *sql.DB, migs []migration, placeholder func(n int) string) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	var cur int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&cur); err != nil {
		return err
	}

	for _, m := range migs {
		if cur >= m.version {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations(version) VALUES (`+placeholder(1)+`)`, m.version); err != nil {
			return err
		}
		cur = m.version
	}
	return nil
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}
