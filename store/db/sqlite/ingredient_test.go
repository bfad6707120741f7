package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotus-health/lotus/internal/profile"
	"github.com/lotus-health/lotus/store"
)

func newTestDB(t *testing.T) store.Driver {
	t.Helper()

	driver, err := NewDB(&profile.Profile{
		Driver:              "sqlite",
		DSN:                 ":memory:",
		EmbeddingDimensions: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	require.NoError(t, driver.Migrate(context.Background()))
	return driver
}

func seedLibrary(t *testing.T, driver store.Driver) {
	t.Helper()
	ctx := context.Background()

	entries := []*store.UpsertIngredient{
		{Name: "Cotton", Description: "Natural fiber", RiskLevel: store.RiskLevelLow, Embedding: []float32{1, 0, 0}},
		{Name: "Fragrance", Description: "Synthetic scent compound", RiskLevel: store.RiskLevelHigh, Embedding: []float32{0.6, 0.8, 0}},
		{Name: "Dye", Description: "Colorant", RiskLevel: store.RiskLevelMedium, Embedding: []float32{0, 1, 0}},
		// No embedding yet; must never appear in search results.
		{Name: "Glycerin", Description: "Humectant", RiskLevel: store.RiskLevelLow},
	}
	for _, entry := range entries {
		_, err := driver.UpsertIngredient(ctx, entry)
		require.NoError(t, err)
	}
}

func TestUpsertIngredientEmbeddingDimensions(t *testing.T) {
	ctx := context.Background()
	driver := newTestDB(t)

	t.Run("WrongLengthRejected", func(t *testing.T) {
		_, err := driver.UpsertIngredient(ctx, &store.UpsertIngredient{
			Name:      "Fragrance",
			RiskLevel: store.RiskLevelHigh,
			Embedding: []float32{0.1, 0.2},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimension mismatch")
	})

	t.Run("MatchingLengthAccepted", func(t *testing.T) {
		ingredient, err := driver.UpsertIngredient(ctx, &store.UpsertIngredient{
			Name:      "Cotton",
			RiskLevel: store.RiskLevelLow,
			Embedding: []float32{1, 0, 0},
		})
		require.NoError(t, err)
		assert.Positive(t, ingredient.ID)
	})

	t.Run("EmptyEmbeddingAccepted", func(t *testing.T) {
		// Rows seeded without a vector wait for the embedding backfill.
		ingredient, err := driver.UpsertIngredient(ctx, &store.UpsertIngredient{
			Name:      "Glycerin",
			RiskLevel: store.RiskLevelLow,
		})
		require.NoError(t, err)

		pending, err := driver.ListIngredientsWithoutEmbedding(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, ingredient.ID, pending[0].ID)
	})
}

func TestSearchIngredients(t *testing.T) {
	ctx := context.Background()

	t.Run("QueryDimensionMismatchRejected", func(t *testing.T) {
		driver := newTestDB(t)

		_, err := driver.SearchIngredients(ctx, &store.IngredientSearch{
			Vector: []float32{0.1, 0.2},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimension mismatch")
	})

	t.Run("RanksBySimilarity", func(t *testing.T) {
		driver := newTestDB(t)
		seedLibrary(t, driver)

		matches, err := driver.SearchIngredients(ctx, &store.IngredientSearch{
			Vector:    []float32{1, 0, 0},
			Threshold: 0.5,
			Limit:     10,
		})
		require.NoError(t, err)

		// Dye is orthogonal to the query and Glycerin has no vector;
		// neither may appear.
		require.Len(t, matches, 2)
		assert.Equal(t, "Cotton", matches[0].Ingredient.Name)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
		assert.Equal(t, "Fragrance", matches[1].Ingredient.Name)
		assert.InDelta(t, 0.6, matches[1].Similarity, 1e-6)
	})

	t.Run("ThresholdFilters", func(t *testing.T) {
		driver := newTestDB(t)
		seedLibrary(t, driver)

		matches, err := driver.SearchIngredients(ctx, &store.IngredientSearch{
			Vector:    []float32{1, 0, 0},
			Threshold: 0.9,
			Limit:     10,
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "Cotton", matches[0].Ingredient.Name)
	})

	t.Run("LimitApplies", func(t *testing.T) {
		driver := newTestDB(t)
		seedLibrary(t, driver)

		matches, err := driver.SearchIngredients(ctx, &store.IngredientSearch{
			Vector:    []float32{1, 0, 0},
			Threshold: 0.1,
			Limit:     1,
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "Cotton", matches[0].Ingredient.Name)
	})

	t.Run("RiskLevelFilter", func(t *testing.T) {
		driver := newTestDB(t)
		seedLibrary(t, driver)

		riskLevel := store.RiskLevelHigh
		matches, err := driver.SearchIngredients(ctx, &store.IngredientSearch{
			Vector:    []float32{1, 0, 0},
			Threshold: 0.1,
			Limit:     10,
			RiskLevel: &riskLevel,
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "Fragrance", matches[0].Ingredient.Name)
	})
}
