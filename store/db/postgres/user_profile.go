package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/lotus-health/lotus/store"
)

// UpsertUserProfile creates or updates a profile, conflicting on user_id.
func (d *DB) UpsertUserProfile(ctx context.Context, upsert *store.UpsertUserProfile) (*store.UserProfile, error) {
	if strings.TrimSpace(upsert.UserID) == "" {
		return nil, errors.New("user_id cannot be empty")
	}

	now := time.Now().Unix()
	stmt := `
		INSERT INTO user_profiles (user_id, sensitivities, created_ts, updated_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (user_id)
		DO UPDATE SET
			sensitivities = EXCLUDED.sensitivities,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`

	userProfile := &store.UserProfile{
		UserID:        upsert.UserID,
		Sensitivities: upsert.Sensitivities,
	}
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.UserID,
		pq.Array(upsert.Sensitivities),
		now,
		now,
	).Scan(&userProfile.ID, &userProfile.CreatedTs, &userProfile.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert user profile")
	}

	return userProfile, nil
}

// ListUserProfiles lists profiles matching find.
func (d *DB) ListUserProfiles(ctx context.Context, find *store.FindUserProfile) ([]*store.UserProfile, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}

	query := `
		SELECT id, user_id, sensitivities, created_ts, updated_ts
		FROM user_profiles
		WHERE ` + strings.Join(where, " AND ")

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user profiles")
	}
	defer rows.Close()

	list := []*store.UserProfile{}
	for rows.Next() {
		var userProfile store.UserProfile
		var sensitivities pq.StringArray
		if err := rows.Scan(
			&userProfile.ID,
			&userProfile.UserID,
			&sensitivities,
			&userProfile.CreatedTs,
			&userProfile.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan user profile")
		}
		userProfile.Sensitivities = []string(sensitivities)
		list = append(list, &userProfile)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
