package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotus-health/lotus/store"
)

func libraryFixture() []*store.Ingredient {
	return []*store.Ingredient{
		{ID: 1, Name: "Fragrance", Description: "Synthetic scent compound", RiskLevel: store.RiskLevelHigh, CreatedTs: 10},
		{ID: 2, Name: "Cotton", Description: "Natural fiber", RiskLevel: store.RiskLevelLow, CreatedTs: 20},
		{ID: 3, Name: "Glycerin", Description: "Humectant", RiskLevel: store.RiskLevelMedium, CreatedTs: 30},
	}
}

func TestListIngredients(t *testing.T) {
	t.Run("All", func(t *testing.T) {
		driver := newTestDriver()
		driver.ingredients = libraryFixture()
		_, e := newTestService(driver)

		req := httptest.NewRequest(http.MethodGet, "/api/ingredients", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		response := &IngredientsListResponse{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
		assert.Equal(t, int64(3), response.TotalCount)
		assert.Len(t, response.Ingredients, 3)
	})

	t.Run("RiskLevelFilter", func(t *testing.T) {
		driver := newTestDriver()
		driver.ingredients = libraryFixture()
		_, e := newTestService(driver)

		req := httptest.NewRequest(http.MethodGet, "/api/ingredients?risk_level=High", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		response := &IngredientsListResponse{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
		assert.Equal(t, int64(1), response.TotalCount)
		require.Len(t, response.Ingredients, 1)
		assert.Equal(t, "Fragrance", response.Ingredients[0].Name)
	})

	t.Run("InvalidRiskLevel", func(t *testing.T) {
		_, e := newTestService(newTestDriver())

		req := httptest.NewRequest(http.MethodGet, "/api/ingredients?risk_level=Severe", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Pagination", func(t *testing.T) {
		driver := newTestDriver()
		driver.ingredients = libraryFixture()
		_, e := newTestService(driver)

		req := httptest.NewRequest(http.MethodGet, "/api/ingredients?limit=2&offset=2", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		response := &IngredientsListResponse{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
		assert.Equal(t, int64(3), response.TotalCount)
		require.Len(t, response.Ingredients, 1)
		assert.Equal(t, "Glycerin", response.Ingredients[0].Name)
	})
}

func TestGetIngredient(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		driver := newTestDriver()
		driver.ingredients = libraryFixture()
		_, e := newTestService(driver)

		req := httptest.NewRequest(http.MethodGet, "/api/ingredients/2", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		response := &IngredientResponse{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
		assert.Equal(t, "Cotton", response.Name)
		assert.Equal(t, store.RiskLevelLow, response.RiskLevel)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, e := newTestService(newTestDriver())

		req := httptest.NewRequest(http.MethodGet, "/api/ingredients/999", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("InvalidID", func(t *testing.T) {
		_, e := newTestService(newTestDriver())

		req := httptest.NewRequest(http.MethodGet, "/api/ingredients/0", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSearchIngredients(t *testing.T) {
	t.Run("NameFallbackWithoutAI", func(t *testing.T) {
		driver := newTestDriver()
		driver.ingredients = libraryFixture()
		_, e := newTestService(driver)

		req := httptest.NewRequest(http.MethodGet, "/api/ingredients/search?q=frag", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		response := &IngredientSearchResponse{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
		require.Len(t, response.Matches, 1)
		assert.Equal(t, "Fragrance", response.Matches[0].Name)
		assert.Zero(t, response.Matches[0].Similarity)
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		service, e := newTestService(newTestDriver())
		withAI(service, "", "")

		req := httptest.NewRequest(http.MethodGet, "/api/ingredients/search?q=", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Matches", func(t *testing.T) {
		driver := newTestDriver()
		driver.matches = []*store.IngredientMatch{
			{Ingredient: &store.Ingredient{ID: 1, Name: "Fragrance", RiskLevel: store.RiskLevelHigh}, Similarity: 0.92},
		}
		service, e := newTestService(driver)
		withAI(service, "", "")

		req := httptest.NewRequest(http.MethodGet, "/api/ingredients/search?q=perfume", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		response := &IngredientSearchResponse{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
		assert.Equal(t, "perfume", response.Query)
		require.Len(t, response.Matches, 1)
		assert.Equal(t, "Fragrance", response.Matches[0].Name)
		assert.InDelta(t, 0.92, response.Matches[0].Similarity, 1e-9)
	})
}
