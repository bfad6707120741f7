// Package postgres implements the store driver on PostgreSQL with pgvector.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/lotus-health/lotus/internal/profile"
	"github.com/lotus-health/lotus/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL database using the DSN from the profile.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// Serverless-friendly pool settings: the managed database proxy in front
	// of hosted Postgres multiplexes connections, keep ours modest.
	pgDB.SetMaxOpenConns(10)
	pgDB.SetMaxIdleConns(2)
	pgDB.SetConnMaxLifetime(30 * time.Minute)

	driver := DB{db: pgDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate ensures the schema exists. Statements are idempotent so startup
// can run them unconditionally.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ingredients_library (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			risk_level TEXT NOT NULL CHECK (risk_level IN ('Low', 'Medium', 'High')),
			embedding vector(%d),
			created_ts BIGINT NOT NULL
		)`, d.profile.EmbeddingDimensions),
		`CREATE INDEX IF NOT EXISTS idx_ingredients_embedding
			ON ingredients_library USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			brand_name TEXT NOT NULL,
			barcode TEXT NOT NULL UNIQUE,
			product_type TEXT NOT NULL CHECK (product_type IN ('tampon', 'pad', 'cup', 'liner', 'wipe', 'wash', 'other')),
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'verified', 'flagged')),
			ingredient_ids INTEGER[] NOT NULL DEFAULT '{}',
			coverage_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			research_count INTEGER NOT NULL DEFAULT 0,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id SERIAL PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			sensitivities TEXT[] NOT NULL DEFAULT '{}',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scans (
			id BIGSERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			overall_risk_level TEXT NOT NULL CHECK (overall_risk_level IN ('Low Risk', 'Caution', 'High Risk')),
			ingredients_found TEXT[] NOT NULL DEFAULT '{}',
			detail JSONB NOT NULL DEFAULT '{}',
			risk_score DOUBLE PRECISION,
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

// placeholder returns the positional parameter for 1-based index n.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns "$1, $2, ..., $n".
func placeholders(n int) string {
	list := make([]byte, 0, n*4)
	for i := 1; i <= n; i++ {
		if i > 1 {
			list = append(list, ", "...)
		}
		list = append(list, placeholder(i)...)
	}
	return string(list)
}
