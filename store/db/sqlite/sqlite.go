// Package sqlite implements the store driver on SQLite for development
// and testing. There is no vector extension dependency: embeddings are
// stored as float32 blobs and similarity search is an application-layer
// cosine scan. Fine for a few thousand library rows, not for production.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/lotus-health/lotus/internal/profile"
	"github.com/lotus-health/lotus/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database specified by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", dsnWithPragmas(profile.DSN))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

// dsnWithPragmas appends the connection pragmas, keeping the DSN valid
// whether or not the caller already supplied query parameters. WAL
// journal mode avoids writer lock contention; the busy timeout covers
// the remaining single-writer window.
func dsnWithPragmas(dsn string) string {
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate ensures the schema exists. Enum constraints mirror the
// Postgres schema; arrays are stored as JSON text.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ingredients_library (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			risk_level TEXT NOT NULL CHECK (risk_level IN ('Low', 'Medium', 'High')),
			embedding BLOB,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			brand_name TEXT NOT NULL,
			barcode TEXT NOT NULL UNIQUE,
			product_type TEXT NOT NULL CHECK (product_type IN ('tampon', 'pad', 'cup', 'liner', 'wipe', 'wash', 'other')),
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'verified', 'flagged')),
			ingredient_ids TEXT NOT NULL DEFAULT '[]',
			coverage_score REAL NOT NULL DEFAULT 0,
			research_count INTEGER NOT NULL DEFAULT 0,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL UNIQUE,
			sensitivities TEXT NOT NULL DEFAULT '[]',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			overall_risk_level TEXT NOT NULL CHECK (overall_risk_level IN ('Low Risk', 'Caution', 'High Risk')),
			ingredients_found TEXT NOT NULL DEFAULT '[]',
			detail TEXT NOT NULL DEFAULT '{}',
			risk_score REAL,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_user_id ON scans (user_id, created_ts DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute migration statement: %.60s", stmt)
		}
	}
	return nil
}
