package archive

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current archive schema version.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

-- Group tree; path is the slash-joined chain of names from the root.
CREATE TABLE IF NOT EXISTS run_groups (
    path TEXT PRIMARY KEY,
    parent TEXT,
    name TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT ''
);

-- One row per docked storage file.
CREATE TABLE IF NOT EXISTS datasets (
    id TEXT PRIMARY KEY,
    group_path TEXT NOT NULL REFERENCES run_groups(path) ON DELETE CASCADE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    n_rows INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE (group_path, name)
);

CREATE TABLE IF NOT EXISTS dataset_columns (
    dataset_id TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (dataset_id, position)
);

CREATE TABLE IF NOT EXISTS samples (
    dataset_id TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
    row_index INTEGER NOT NULL,
    position INTEGER NOT NULL,
    value REAL, -- NULL holds NaN
    PRIMARY KEY (dataset_id, row_index, position)
);
`

// initSchema creates the tables on first use and records the version.
func initSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}
