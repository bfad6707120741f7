package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lotus-health/lotus/store"
)

// IngredientResponse is a single library entry.
type IngredientResponse struct {
	ID          int32           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	RiskLevel   store.RiskLevel `json:"risk_level"`
	CreatedTs   int64           `json:"created_ts"`
}

// IngredientsListResponse is the body of GET /api/ingredients.
type IngredientsListResponse struct {
	TotalCount  int64                 `json:"total_count"`
	Ingredients []*IngredientResponse `json:"ingredients"`
}

// IngredientMatchResponse is a semantic search hit with its similarity.
type IngredientMatchResponse struct {
	IngredientResponse
	Similarity float64 `json:"similarity"`
}

// IngredientSearchResponse is the body of GET /api/ingredients/search.
type IngredientSearchResponse struct {
	Query   string                     `json:"query"`
	Matches []*IngredientMatchResponse `json:"matches"`
}

func convertIngredient(ingredient *store.Ingredient) *IngredientResponse {
	return &IngredientResponse{
		ID:          ingredient.ID,
		Name:        ingredient.Name,
		Description: ingredient.Description,
		RiskLevel:   ingredient.RiskLevel,
		CreatedTs:   ingredient.CreatedTs,
	}
}

// ListIngredients handles GET /api/ingredients with pagination and an
// optional risk level filter.
func (s *APIV1Service) ListIngredients(c echo.Context) error {
	ctx := c.Request().Context()

	limit := parseIntParam(c.QueryParam("limit"), 20, 1, 100)
	offset := parseIntParam(c.QueryParam("offset"), 0, 0, 1<<30)

	find := &store.FindIngredient{Limit: limit, Offset: offset}
	countFind := &store.FindIngredient{}

	if raw := c.QueryParam("risk_level"); raw != "" && raw != "all" {
		riskLevel := store.RiskLevel(raw)
		if !riskLevel.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid risk_level, must be one of: Low, Medium, High, all")
		}
		find.RiskLevel = &riskLevel
		countFind.RiskLevel = &riskLevel
	}

	if nameLike := strings.TrimSpace(c.QueryParam("name")); nameLike != "" {
		find.NameLike = &nameLike
		countFind.NameLike = &nameLike
	}

	list, err := s.Store.ListIngredients(ctx, find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list ingredients").SetInternal(err)
	}
	total, err := s.Store.CountIngredients(ctx, countFind)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count ingredients").SetInternal(err)
	}

	ingredients := make([]*IngredientResponse, 0, len(list))
	for _, ingredient := range list {
		ingredients = append(ingredients, convertIngredient(ingredient))
	}

	return c.JSON(http.StatusOK, &IngredientsListResponse{
		TotalCount:  total,
		Ingredients: ingredients,
	})
}

// GetIngredient handles GET /api/ingredients/:id.
func (s *APIV1Service) GetIngredient(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	ingredientID := int32(id)

	ingredient, err := s.Store.GetIngredient(ctx, &store.FindIngredient{ID: &ingredientID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch ingredient").SetInternal(err)
	}
	if ingredient == nil {
		return echo.NewHTTPError(http.StatusNotFound, "ingredient not found")
	}

	return c.JSON(http.StatusOK, convertIngredient(ingredient))
}

// SearchIngredients handles GET /api/ingredients/search?q=...
// Semantic search over the library. Without an embedding service the
// endpoint falls back to case-insensitive name matching.
func (s *APIV1Service) SearchIngredients(c echo.Context) error {
	ctx := c.Request().Context()

	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q cannot be empty")
	}

	limit := parseIntParam(c.QueryParam("limit"), s.Profile.SearchLimit, 1, 50)

	if s.EmbeddingService == nil {
		return s.searchIngredientsByName(c, query, limit)
	}

	vector, err := s.EmbeddingService.Embed(ctx, query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to embed query").SetInternal(err)
	}

	matches, err := s.Store.SearchIngredients(ctx, &store.IngredientSearch{
		Vector:    vector,
		Threshold: s.Profile.SearchThreshold,
		Limit:     limit,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to search ingredients").SetInternal(err)
	}

	results := make([]*IngredientMatchResponse, 0, len(matches))
	for _, match := range matches {
		results = append(results, &IngredientMatchResponse{
			IngredientResponse: *convertIngredient(match.Ingredient),
			Similarity:         match.Similarity,
		})
	}

	return c.JSON(http.StatusOK, &IngredientSearchResponse{
		Query:   query,
		Matches: results,
	})
}

// searchIngredientsByName is the non-semantic fallback: substring match
// on the ingredient name. Hits carry zero similarity to distinguish them
// from vector results.
func (s *APIV1Service) searchIngredientsByName(c echo.Context, query string, limit int) error {
	list, err := s.Store.ListIngredients(c.Request().Context(), &store.FindIngredient{
		NameLike: &query,
		Limit:    limit,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to search ingredients").SetInternal(err)
	}

	results := make([]*IngredientMatchResponse, 0, len(list))
	for _, ingredient := range list {
		results = append(results, &IngredientMatchResponse{
			IngredientResponse: *convertIngredient(ingredient),
		})
	}

	return c.JSON(http.StatusOK, &IngredientSearchResponse{
		Query:   query,
		Matches: results,
	})
}
