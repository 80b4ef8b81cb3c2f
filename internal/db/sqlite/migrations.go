package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one schema step. Its position in schema is its version, so
// steps are only ever appended.
type migration struct {
	name  string
	stmts []string
}

var schema = []migration{
	{
		name: "hook_events",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS hook_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				event_name TEXT NOT NULL,
				session_id TEXT,
				payload TEXT NOT NULL,
				created_at TEXT NOT NULL,
				created_at_epoch INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_hook_events_name ON hook_events(event_name)`,
			`CREATE INDEX IF NOT EXISTS idx_hook_events_session ON hook_events(session_id)`,
		},
	},
	{
		name: "hook_events_cwd",
		stmts: []string{
			`ALTER TABLE hook_events ADD COLUMN cwd TEXT`,
		},
	},
}

// schemaVersion reads the version recorded in the database header.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// migrate applies every step newer than the recorded version, each in its
// own transaction together with the version bump.
func migrate(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > len(schema) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, len(schema))
	}

	for i := current; i < len(schema); i++ {
		if err := apply(ctx, db, i+1, schema[i]); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, version int, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", version, m.name, err)
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return tx.Commit()
}
