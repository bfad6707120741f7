package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lotus-health/lotus/store"
)

// CreateScan records a completed scan.
func (d *DB) CreateScan(ctx context.Context, create *store.CreateScan) (*store.Scan, error) {
	if !create.OverallRiskLevel.Valid() {
		return nil, errors.Errorf("invalid risk level %q", create.OverallRiskLevel)
	}

	ingredientsFound := create.IngredientsFound
	if ingredientsFound == nil {
		ingredientsFound = []string{}
	}
	encoded, err := json.Marshal(ingredientsFound)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal ingredients found")
	}

	detail := create.Detail
	if detail == "" {
		detail = "{}"
	}

	stmt := `
		INSERT INTO scans (uid, user_id, overall_risk_level, ingredients_found, detail, risk_score, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	scan := &store.Scan{
		UID:              create.UID,
		UserID:           create.UserID,
		OverallRiskLevel: create.OverallRiskLevel,
		IngredientsFound: ingredientsFound,
		Detail:           detail,
		RiskScore:        create.RiskScore,
		CreatedTs:        time.Now().Unix(),
	}
	err = d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.UserID,
		string(create.OverallRiskLevel),
		string(encoded),
		detail,
		create.RiskScore,
		scan.CreatedTs,
	).Scan(&scan.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scan")
	}

	return scan, nil
}

// ListScans lists scans matching find, newest first.
func (d *DB) ListScans(ctx context.Context, find *store.FindScan) ([]*store.Scan, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}

	query := `
		SELECT id, uid, user_id, overall_risk_level, ingredients_found, detail, risk_score, created_ts
		FROM scans
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC
	`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list scans")
	}
	defer rows.Close()

	list := []*store.Scan{}
	for rows.Next() {
		var scan store.Scan
		var riskLevel, ingredientsFound string
		if err := rows.Scan(
			&scan.ID,
			&scan.UID,
			&scan.UserID,
			&riskLevel,
			&ingredientsFound,
			&scan.Detail,
			&scan.RiskScore,
			&scan.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		scan.OverallRiskLevel = store.ScanRiskLevel(riskLevel)
		if err := json.Unmarshal([]byte(ingredientsFound), &scan.IngredientsFound); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal ingredients found")
		}
		list = append(list, &scan)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// CountScans counts scans matching find.
func (d *DB) CountScans(ctx context.Context, find *store.FindScan) (int64, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}

	query := "SELECT COUNT(*) FROM scans WHERE " + strings.Join(where, " AND ")

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count scans")
	}
	return count, nil
}

// DeleteScan deletes scans matching delete. At least one condition is required.
func (d *DB) DeleteScan(ctx context.Context, delete *store.DeleteScan) error {
	where, args := []string{}, []any{}

	if delete.ID != nil {
		where, args = append(where, "id = ?"), append(args, *delete.ID)
	}
	if delete.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *delete.UserID)
	}
	if len(where) == 0 {
		return errors.New("missing delete condition")
	}

	stmt := "DELETE FROM scans WHERE " + strings.Join(where, " AND ")
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, "failed to delete scans")
	}
	if delete.ID != nil {
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.Errorf("scan %d not found", *delete.ID)
		}
	}
	return nil
}
