package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lotus-health/lotus/store"
)

// UpsertUserProfile inserts or replaces the sensitivity profile for a user.
func (d *DB) UpsertUserProfile(ctx context.Context, upsert *store.UpsertUserProfile) (*store.UserProfile, error) {
	if upsert.UserID == "" {
		return nil, errors.New("user id is required")
	}

	sensitivities := upsert.Sensitivities
	if sensitivities == nil {
		sensitivities = []string{}
	}
	encoded, err := json.Marshal(sensitivities)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal sensitivities")
	}

	now := time.Now().Unix()
	stmt := `
		INSERT INTO user_profiles (user_id, sensitivities, created_ts, updated_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET
			sensitivities = EXCLUDED.sensitivities,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`

	userProfile := &store.UserProfile{
		UserID:        upsert.UserID,
		Sensitivities: sensitivities,
	}
	err = d.db.QueryRowContext(ctx, stmt, upsert.UserID, string(encoded), now, now).
		Scan(&userProfile.ID, &userProfile.CreatedTs, &userProfile.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert user profile")
	}

	return userProfile, nil
}

// ListUserProfiles lists sensitivity profiles matching find.
func (d *DB) ListUserProfiles(ctx context.Context, find *store.FindUserProfile) ([]*store.UserProfile, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}

	query := `
		SELECT id, user_id, sensitivities, created_ts, updated_ts
		FROM user_profiles
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id
	`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user profiles")
	}
	defer rows.Close()

	list := []*store.UserProfile{}
	for rows.Next() {
		var userProfile store.UserProfile
		var sensitivities string
		if err := rows.Scan(
			&userProfile.ID,
			&userProfile.UserID,
			&sensitivities,
			&userProfile.CreatedTs,
			&userProfile.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan user profile")
		}
		if err := json.Unmarshal([]byte(sensitivities), &userProfile.Sensitivities); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal sensitivities")
		}
		list = append(list, &userProfile)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
