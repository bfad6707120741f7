package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lotus-health/lotus/store"
)

// ProductResponse is a catalog product with resolved ingredient names.
type ProductResponse struct {
	ID            int32               `json:"id"`
	BrandName     string              `json:"brand_name"`
	Barcode       string              `json:"barcode"`
	ProductType   store.ProductType   `json:"product_type"`
	Status        store.ProductStatus `json:"status"`
	Ingredients   []string            `json:"ingredients"`
	CoverageScore float64             `json:"coverage_score"`
	ResearchCount int32               `json:"research_count"`
	CreatedTs     int64               `json:"created_ts"`
	UpdatedTs     int64               `json:"updated_ts"`
}

func convertProduct(product *store.Product, ingredients []string) *ProductResponse {
	if ingredients == nil {
		ingredients = []string{}
	}
	return &ProductResponse{
		ID:            product.ID,
		BrandName:     product.BrandName,
		Barcode:       product.Barcode,
		ProductType:   product.ProductType,
		Status:        product.Status,
		Ingredients:   ingredients,
		CoverageScore: product.CoverageScore,
		ResearchCount: product.ResearchCount,
		CreatedTs:     product.CreatedTs,
		UpdatedTs:     product.UpdatedTs,
	}
}

// GetProductByBarcode handles GET /api/products/:barcode.
func (s *APIV1Service) GetProductByBarcode(c echo.Context) error {
	ctx := c.Request().Context()

	barcode := strings.TrimSpace(c.Param("barcode"))
	if barcode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "barcode cannot be empty")
	}

	product, err := s.Store.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to look up product").SetInternal(err)
	}
	if product == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no product found for barcode")
	}

	// A product with unresolvable ingredients is still worth returning.
	ingredients, err := s.resolveIngredientNames(ctx, product.IngredientIDs)
	if err != nil {
		slog.Warn("failed to resolve product ingredients", "barcode", barcode, "error", err)
		ingredients = []string{}
	}

	return c.JSON(http.StatusOK, convertProduct(product, ingredients))
}
