package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS uniprot_map (
	accession TEXT NOT NULL,
	uniprot   TEXT NOT NULL,
	PRIMARY KEY (accession, uniprot)
);
CREATE TABLE IF NOT EXISTS pdb_entries (
	uniprot TEXT NOT NULL,
	pdb_id  TEXT NOT NULL,
	PRIMARY KEY (uniprot, pdb_id)
);
CREATE TABLE IF NOT EXISTS predictions (
	uniprot  TEXT PRIMARY KEY,
	model_id TEXT NOT NULL,
	cif_url  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	ident      REAL NOT NULL,
	cov        REAL NOT NULL,
	gaps       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_entries (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	position   INTEGER NOT NULL,
	descriptor TEXT NOT NULL,
	sequence   TEXT NOT NULL,
	source     TEXT NOT NULL,
	structures TEXT NOT NULL,
	accessions TEXT NOT NULL,
	PRIMARY KEY (run_id, descriptor)
);
`

// Open opens (creating if needed) the SQLite database at path and makes sure
// the schema exists.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// One writer at a time; keeps SQLITE_BUSY away without a busy handler.
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
