package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/lotus-health/lotus/store"
)

// UpsertIngredient inserts or updates a library row, conflicting on name.
// An empty embedding keeps any previously stored vector.
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
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (name)
		DO UPDATE SET
			description = EXCLUDED.description,
			risk_level = EXCLUDED.risk_level,
			embedding = COALESCE(EXCLUDED.embedding, ingredients_library.embedding)
		RETURNING id, created_ts
	`

	var vector any
	if len(upsert.Embedding) > 0 {
		vector = pgvector.NewVector(upsert.Embedding)
	}

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
		vector,
		time.Now().Unix(),
	).Scan(&ingredient.ID, &ingredient.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert ingredient")
	}

	return ingredient, nil
}

// ListIngredients lists library rows. Embeddings are not hydrated; use
// SearchIngredients for similarity work.
func (d *DB) ListIngredients(ctx context.Context, find *store.FindIngredient) ([]*store.Ingredient, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if len(find.IDs) > 0 {
		where, args = append(where, "id = ANY("+placeholder(len(args)+1)+")"), append(args, pq.Array(find.IDs))
	}
	if find.Name != nil {
		where, args = append(where, "name = "+placeholder(len(args)+1)), append(args, *find.Name)
	}
	if find.NameLike != nil {
		where, args = append(where, "name ILIKE "+placeholder(len(args)+1)), append(args, "%"+*find.NameLike+"%")
	}
	if find.RiskLevel != nil {
		where, args = append(where, "risk_level = "+placeholder(len(args)+1)), append(args, string(*find.RiskLevel))
	}

	query := `
		SELECT id, name, description, risk_level, created_ts
		FROM ingredients_library
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
		where, args = append(where, "risk_level = "+placeholder(len(args)+1)), append(args, string(*find.RiskLevel))
	}
	if find.NameLike != nil {
		where, args = append(where, "name ILIKE "+placeholder(len(args)+1)), append(args, "%"+*find.NameLike+"%")
	}

	query := `SELECT COUNT(*) FROM ingredients_library WHERE ` + strings.Join(where, " AND ")

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count ingredients")
	}
	return count, nil
}

// SearchIngredients performs cosine similarity search using pgvector.
// The <=> operator computes cosine distance (1 - cosine_similarity),
// so ordering by distance ASC returns the most similar rows first.
func (d *DB) SearchIngredients(ctx context.Context, search *store.IngredientSearch) ([]*store.IngredientMatch, error) {
	if len(search.Vector) != d.profile.EmbeddingDimensions {
		return nil, errors.Errorf("query vector dimension mismatch: got %d, want %d",
			len(search.Vector), d.profile.EmbeddingDimensions)
	}

	limit := search.Limit
	if limit <= 0 {
		limit = 5
	}

	vector := pgvector.NewVector(search.Vector)
	where := []string{"embedding IS NOT NULL"}
	args := []any{vector}

	if search.RiskLevel != nil {
		where = append(where, "risk_level = "+placeholder(len(args)+1))
		args = append(args, string(*search.RiskLevel))
	}

	threshold := search.Threshold
	where = append(where, "1 - (embedding <=> $1) >= "+placeholder(len(args)+1))
	args = append(args, threshold)

	query := `
		SELECT id, name, description, risk_level, created_ts,
			1 - (embedding <=> $1) AS similarity
		FROM ingredients_library
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY embedding <=> $1
		LIMIT ` + placeholder(len(args)+1)
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search ingredients")
	}
	defer rows.Close()

	results := []*store.IngredientMatch{}
	for rows.Next() {
		var match store.IngredientMatch
		var ingredient store.Ingredient
		var riskLevel string
		if err := rows.Scan(
			&ingredient.ID,
			&ingredient.Name,
			&ingredient.Description,
			&riskLevel,
			&ingredient.CreatedTs,
			&match.Similarity,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan ingredient match")
		}
		ingredient.RiskLevel = store.RiskLevel(riskLevel)
		match.Ingredient = &ingredient
		results = append(results, &match)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// ListIngredientsWithoutEmbedding finds library rows missing a vector,
// oldest first, for backfill jobs.
func (d *DB) ListIngredientsWithoutEmbedding(ctx context.Context, limit int) ([]*store.Ingredient, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, name, description, risk_level, created_ts
		FROM ingredients_library
		WHERE embedding IS NULL
		ORDER BY created_ts
		LIMIT ` + placeholder(1)

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
