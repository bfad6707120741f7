package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/lotus-health/lotus/store"
)

// UpsertProduct inserts or updates a product, conflicting on barcode.
func (d *DB) UpsertProduct(ctx context.Context, upsert *store.UpsertProduct) (*store.Product, error) {
	if !upsert.ProductType.Valid() {
		return nil, errors.Errorf("invalid product type %q", upsert.ProductType)
	}
	status := upsert.Status
	if status == "" {
		status = store.ProductStatusPending
	}
	if !status.Valid() {
		return nil, errors.Errorf("invalid product status %q", status)
	}

	now := time.Now().Unix()
	stmt := `
		INSERT INTO products (brand_name, barcode, product_type, status, ingredient_ids, coverage_score, research_count, created_ts, updated_ts)
		VALUES (` + placeholders(9) + `)
		ON CONFLICT (barcode)
		DO UPDATE SET
			brand_name = EXCLUDED.brand_name,
			product_type = EXCLUDED.product_type,
			status = EXCLUDED.status,
			ingredient_ids = EXCLUDED.ingredient_ids,
			coverage_score = EXCLUDED.coverage_score,
			research_count = EXCLUDED.research_count,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`

	product := &store.Product{
		BrandName:     upsert.BrandName,
		Barcode:       upsert.Barcode,
		ProductType:   upsert.ProductType,
		Status:        status,
		IngredientIDs: upsert.IngredientIDs,
		CoverageScore: upsert.CoverageScore,
		ResearchCount: upsert.ResearchCount,
	}
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.BrandName,
		upsert.Barcode,
		string(upsert.ProductType),
		string(status),
		pq.Array(upsert.IngredientIDs),
		upsert.CoverageScore,
		upsert.ResearchCount,
		now,
		now,
	).Scan(&product.ID, &product.CreatedTs, &product.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert product")
	}

	return product, nil
}

// UpdateProduct applies a partial update and returns the updated row.
func (d *DB) UpdateProduct(ctx context.Context, update *store.UpdateProduct) (*store.Product, error) {
	set, args := []string{}, []any{}

	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, errors.Errorf("invalid product status %q", *update.Status)
		}
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, string(*update.Status))
	}
	if update.CoverageScore != nil {
		set, args = append(set, "coverage_score = "+placeholder(len(args)+1)), append(args, *update.CoverageScore)
	}
	if update.ResearchCount != nil {
		set, args = append(set, "research_count = "+placeholder(len(args)+1)), append(args, *update.ResearchCount)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, time.Now().Unix())
	args = append(args, update.ID)

	stmt := `
		UPDATE products
		SET ` + strings.Join(set, ", ") + `
		WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, brand_name, barcode, product_type, status, ingredient_ids, coverage_score, research_count, created_ts, updated_ts
	`

	product, err := scanProduct(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to update product")
	}
	return product, nil
}

// ListProducts lists products matching find.
func (d *DB) ListProducts(ctx context.Context, find *store.FindProduct) ([]*store.Product, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Barcode != nil {
		where, args = append(where, "barcode = "+placeholder(len(args)+1)), append(args, *find.Barcode)
	}
	if find.ProductType != nil {
		where, args = append(where, "product_type = "+placeholder(len(args)+1)), append(args, string(*find.ProductType))
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*find.Status))
	}

	query := `
		SELECT id, brand_name, barcode, product_type, status, ingredient_ids, coverage_score, research_count, created_ts, updated_ts
		FROM products
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id
	`
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += " OFFSET " + placeholder(len(args)+1)
			args = append(args, find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list products")
	}
	defer rows.Close()

	list := []*store.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan product")
		}
		list = append(list, product)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*store.Product, error) {
	var product store.Product
	var productType, status string
	var ingredientIDs pq.Int32Array
	if err := row.Scan(
		&product.ID,
		&product.BrandName,
		&product.Barcode,
		&productType,
		&status,
		&ingredientIDs,
		&product.CoverageScore,
		&product.ResearchCount,
		&product.CreatedTs,
		&product.UpdatedTs,
	); err != nil {
		return nil, err
	}
	product.ProductType = store.ProductType(productType)
	product.Status = store.ProductStatus(status)
	product.IngredientIDs = []int32(ingredientIDs)
	return &product, nil
}
