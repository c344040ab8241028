package store

import "fmt"

// migrations are applied in order; PRAGMA user_version records how many
// have run. Never edit an entry after release; append a new one. Each
// step must be safe to run against a database produced by the previous
// step, so upgrades add columns and indexes without touching data.
var migrations = []string{
	// v1: base tools table
	`
CREATE TABLE IF NOT EXISTS tools (
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    example TEXT NOT NULL DEFAULT '',
    source_id TEXT NOT NULL DEFAULT '',
    user_edited BOOLEAN NOT NULL DEFAULT 0,
    last_edited TIMESTAMP NOT NULL DEFAULT '',
    PRIMARY KEY (name, type)
);

CREATE INDEX IF NOT EXISTS idx_tools_type ON tools(type);
`,
	// v2: track when a record was last produced by a parse, so entries
	// missing from the current Brewfiles can surface as stale instead
	// of being deleted.
	`
ALTER TABLE tools ADD COLUMN last_seen TIMESTAMP NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_tools_last_edited ON tools(last_edited);
`,
}

// SchemaVersion is the version a fully migrated database reports.
var SchemaVersion = len(migrations)

// Migrate brings the schema up to date. It is idempotent: running it
// against a current database is a no-op, and running it against an
// older database applies only the missing steps.
func (s *Store) Migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
	}

	for i := version; i < SchemaVersion; i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}

		// PRAGMA cannot be parameterized
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
	}

	return nil
}

// SchemaVersionOf reports the migration version the database is at.
func (s *Store) SchemaVersionOf() (int, error) {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
