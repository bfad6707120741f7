package sqlite

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lotus-health/lotus/store"
)

// UpsertIngredient inserts or updates a library row, conflicting on name.
func (d *DB) UpsertIngredient(ctx context.Context, upsert *store.UpsertIngredient) (*store.Ingredient, error) {
	if !upsert.RiskLevel.Valid() {
		return nil, errors.Errorf("invalid risk level %q", upsert.RiskLevel)
	}
	if len(upsert.Embedding) > 0 && len(upsert.Embedding) != d.profile.EmbeddingDimensions {
		return nil, errors.Errorf("embedding dimension mismatch: got %d, want %d",
			len(upsert.Embedding), d.profile.EmbeddingDimensions)
	}

	stmt := `
		INSERT INTO ingredients_library (name, description, risk_level, embedding, created_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name)
		DO UPDATE SET
			description = EXCLUDED.description,
			risk_level = EXCLUDED.risk_level,
			embedding = COALESCE(EXCLUDED.embedding, ingredients_library.embedding)
		RETURNING id, created_ts
	`

	ingredient := &store.Ingredient{
		Name:        upsert.Name,
		Description: upsert.Description,
		RiskLevel:   upsert.RiskLevel,
		Embedding:   upsert.Embedding,
	}
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.Name,
		upsert.Description,
		string(upsert.RiskLevel),
		encodeVector(upsert.Embedding),
		time.Now().Unix(),
	).Scan(&ingredient.ID, &ingredient.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert ingredient")
	}

	return ingredient, nil
}

// ListIngredients lists library rows matching find, without embeddings.
func (d *DB) ListIngredients(ctx context.Context, find *store.FindIngredient) ([]*store.Ingredient, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if len(find.IDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(find.IDs)), ", ")
		where = append(where, "id IN ("+marks+")")
		for _, id := range find.IDs {
			args = append(args, id)
		}
	}
	if find.Name != nil {
		where, args = append(where, "name = ?"), append(args, *find.Name)
	}
	if find.NameLike != nil {
		where, args = append(where, "name LIKE ? COLLATE NOCASE"), append(args, "%"+*find.NameLike+"%")
	}
	if find.RiskLevel != nil {
		where, args = append(where, "risk_level = ?"), append(args, string(*find.RiskLevel))
	}

	query := `
		SELECT id, name, description, risk_level, created_ts
		FROM ingredients_library
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id
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
		return nil, errors.Wrap(err, "failed to list ingredients")
	}
	defer rows.Close()

	list := []*store.Ingredient{}
	for rows.Next() {
		var ingredient store.Ingredient
		var riskLevel string
		if err := rows.Scan(
			&ingredient.ID,
			&ingredient.Name,
			&ingredient.Description,
			&riskLevel,
			&ingredient.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan ingredient")
		}
		ingredient.RiskLevel = store.RiskLevel(riskLevel)
		list = append(list, &ingredient)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// CountIngredients counts library rows matching find.
func (d *DB) CountIngredients(ctx context.Context, find *store.FindIngredient) (int64, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.RiskLevel != nil {
		where, args = append(where, "risk_level = ?"), append(args, string(*find.RiskLevel))
	}
	if find.NameLike != nil {
		where, args = append(where, "name LIKE ? COLLATE NOCASE"), append(args, "%"+*find.NameLike+"%")
	}

	query := `SELECT COUNT(*) FROM ingredients_library WHERE ` + strings.Join(where, " AND ")

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count ingredients")
	}
	return count, nil
}

// SearchIngredients performs an application-layer cosine scan over all
// embedded rows. SQLite has no vector index; this is the dev fallback.
func (d *DB) SearchIngredients(ctx context.Context, search *store.IngredientSearch) ([]*store.IngredientMatch, error) {
	if len(search.Vector) != d.profile.EmbeddingDimensions {
		return nil, errors.Errorf("query vector dimension mismatch: got %d, want %d",
			len(search.Vector), d.profile.EmbeddingDimensions)
	}

	limit := search.Limit
	if limit <= 0 {
		limit = 5
	}

	where, args := []string{"embedding IS NOT NULL"}, []any{}
	if search.RiskLevel != nil {
		where, args = append(where, "risk_level = ?"), append(args, string(*search.RiskLevel))
	}

	query := `
		SELECT id, name, description, risk_level, embedding, created_ts
		FROM ingredients_library
		WHERE ` + strings.Join(where, " AND ")

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search ingredients")
	}
	defer rows.Close()

	results := []*store.IngredientMatch{}
	for rows.Next() {
		var ingredient store.Ingredient
		var riskLevel string
		var blob []byte
		if err := rows.Scan(
			&ingredient.ID,
			&ingredient.Name,
			&ingredient.Description,
			&riskLevel,
			&blob,
			&ingredient.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan ingredient")
		}

		vector, err := decodeVector(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "ingredient %d", ingredient.ID)
		}

		similarity := cosineSimilarity(search.Vector, vector)
		if similarity < search.Threshold {
			continue
		}

		ingredient.RiskLevel = store.RiskLevel(riskLevel)
		results = append(results, &store.IngredientMatch{
			Ingredient: &ingredient,
			Similarity: similarity,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// ListIngredientsWithoutEmbedding finds library rows missing a vector.
func (d *DB) ListIngredientsWithoutEmbedding(ctx context.Context, limit int) ([]*store.Ingredient, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, name, description, risk_level, created_ts
		FROM ingredients_library
		WHERE embedding IS NULL
		ORDER BY created_ts
		LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ingredients without embedding")
	}
	defer rows.Close()

	list := []*store.Ingredient{}
	for rows.Next() {
		var ingredient store.Ingredient
		var riskLevel string
		if err := rows.Scan(
			&ingredient.ID,
			&ingredient.Name,
			&ingredient.Description,
			&riskLevel,
			&ingredient.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan ingredient")
		}
		ingredient.RiskLevel = store.RiskLevel(riskLevel)
		list = append(list, &ingredient)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
