// Package db provides the database driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/lotus-health/lotus/internal/profile"
	"github.com/lotus-health/lotus/store"
	"github.com/lotus-health/lotus/store/db/postgres"
	"github.com/lotus-health/lotus/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
// Postgres (with pgvector) is the production backend; SQLite is a
// development fallback with application-layer similarity search.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "postgres":
		return postgres.NewDB(profile)
	case "sqlite":
		return sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q", profile.Driver)
	}
}
