package v1

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lotus-health/lotus/ai/ocr"
	"github.com/lotus-health/lotus/ai/risk"
	"github.com/lotus-health/lotus/store"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ScanResponse is the result of an image or barcode scan.
type ScanResponse struct {
	ScanID           string                 `json:"scan_id"`
	UserID           string                 `json:"user_id"`
	OverallRiskLevel store.ScanRiskLevel    `json:"overall_risk_level"`
	IngredientsFound []string               `json:"ingredients_found"`
	RiskyIngredients []risk.RiskyIngredient `json:"risky_ingredients"`
	Explanation      string                 `json:"explanation"`
	Recommendations  string                 `json:"recommendations,omitempty"`
	RiskScore        float64                `json:"risk_score"`
	Product          *ProductResponse       `json:"product,omitempty"`
	CreatedTs        int64                  `json:"created_ts"`
}

// scanDetail is the JSON blob persisted alongside each scan row.
type scanDetail struct {
	Explanation      string                 `json:"explanation"`
	RiskyIngredients []risk.RiskyIngredient `json:"risky_ingredients"`
	Recommendations  string                 `json:"recommendations,omitempty"`
	Degraded         bool                   `json:"degraded,omitempty"`
}

// ScanProduct handles POST /api/scan: a multipart label photo upload.
func (s *APIV1Service) ScanProduct(c echo.Context) error {
	start := time.Now()
	ctx := c.Request().Context()

	if s.Scorer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "AI features are not configured")
	}

	userID := strings.TrimSpace(c.FormValue("user_id"))
	if userID == "" {
		userID = strings.TrimSpace(c.QueryParam("user_id"))
	}
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "user_id is required")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if contentType := fileHeader.Header.Get("Content-Type"); contentType != "" && !allowedImageTypes[contentType] {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid file type, allowed types: JPEG, PNG, WebP")
	}
	if fileHeader.Size > ocr.MaxImageSize {
		return echo.NewHTTPError(http.StatusBadRequest, "file size exceeds limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read file").SetInternal(err)
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, ocr.MaxImageSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read file").SetInternal(err)
	}
	if len(imageData) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "file is empty")
	}
	if len(imageData) > ocr.MaxImageSize {
		return echo.NewHTTPError(http.StatusBadRequest, "file size exceeds limit")
	}

	assessment, err := s.Scorer.ScoreImage(ctx, imageData, userID)
	if err != nil {
		s.recordScan("image", "", time.Since(start), false)
		return echo.NewHTTPError(http.StatusInternalServerError, "assessment failed").SetInternal(err)
	}

	response := s.buildScanResponse(c, userID, assessment, nil)
	s.recordScan("image", string(assessment.RiskLevel), time.Since(start), true)
	return c.JSON(http.StatusOK, response)
}

// ScanBarcodeRequest is the body of POST /api/scan/barcode.
type ScanBarcodeRequest struct {
	Barcode string `json:"barcode"`
	UserID  string `json:"user_id"`
}

// ScanBarcode handles POST /api/scan/barcode: assessment of a known
// product by barcode, skipping OCR entirely.
func (s *APIV1Service) ScanBarcode(c echo.Context) error {
	start := time.Now()
	ctx := c.Request().Context()

	if s.Scorer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "AI features are not configured")
	}

	request := &ScanBarcodeRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	request.Barcode = strings.TrimSpace(request.Barcode)
	request.UserID = strings.TrimSpace(request.UserID)
	if request.Barcode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "barcode cannot be empty")
	}
	if request.UserID == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "user_id is required")
	}

	product, err := s.Store.GetProductByBarcode(ctx, request.Barcode)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to look up product").SetInternal(err)
	}
	if product == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no product found for barcode")
	}

	ingredients, err := s.resolveIngredientNames(ctx, product.IngredientIDs)
	if err != nil {
		slog.Warn("failed to resolve product ingredients", "barcode", request.Barcode, "error", err)
		ingredients = []string{}
	}

	assessment, err := s.Scorer.ScoreIngredients(ctx, ingredients, request.UserID)
	if err != nil {
		s.recordScan("barcode", "", time.Since(start), false)
		return echo.NewHTTPError(http.StatusInternalServerError, "assessment failed").SetInternal(err)
	}

	response := s.buildScanResponse(c, request.UserID, assessment, product)
	s.recordScan("barcode", string(assessment.RiskLevel), time.Since(start), true)
	return c.JSON(http.StatusOK, response)
}

// buildScanResponse persists the scan and shapes the API response.
// A failed insert is logged but does not fail the request; the user
// already has their assessment.
func (s *APIV1Service) buildScanResponse(c echo.Context, userID string, assessment *risk.Assessment, product *store.Product) *ScanResponse {
	ctx := c.Request().Context()

	detail, err := json.Marshal(&scanDetail{
		Explanation:      assessment.Explanation,
		RiskyIngredients: assessment.RiskyIngredients,
		Recommendations:  assessment.Recommendations,
		Degraded:         assessment.Degraded,
	})
	if err != nil {
		detail = []byte("{}")
	}

	riskScore := risk.RiskScoreForLevel(assessment.RiskLevel)
	uid := uuid.NewString()
	createdTs := time.Now().Unix()

	scan, err := s.Store.CreateScan(ctx, &store.CreateScan{
		UID:              uid,
		UserID:           userID,
		OverallRiskLevel: assessment.RiskLevel,
		IngredientsFound: assessment.IngredientsFound,
		Detail:           string(detail),
		RiskScore:        &riskScore,
	})
	if err != nil {
		slog.Error("failed to persist scan", "user_id", userID, "error", err)
	} else {
		createdTs = scan.CreatedTs
	}

	response := &ScanResponse{
		ScanID:           uid,
		UserID:           userID,
		OverallRiskLevel: assessment.RiskLevel,
		IngredientsFound: assessment.IngredientsFound,
		RiskyIngredients: assessment.RiskyIngredients,
		Explanation:      assessment.Explanation,
		Recommendations:  assessment.Recommendations,
		RiskScore:        riskScore,
		CreatedTs:        createdTs,
	}
	if response.IngredientsFound == nil {
		response.IngredientsFound = []string{}
	}
	if response.RiskyIngredients == nil {
		response.RiskyIngredients = []risk.RiskyIngredient{}
	}
	if product != nil {
		response.Product = convertProduct(product, nil)
	}
	return response
}

// ScanHistoryItem is one row of GET /api/scan/history.
type ScanHistoryItem struct {
	ScanID           string              `json:"scan_id"`
	UserID           string              `json:"user_id"`
	OverallRiskLevel store.ScanRiskLevel `json:"overall_risk_level"`
	IngredientsFound []string            `json:"ingredients_found"`
	RiskScore        *float64            `json:"risk_score,omitempty"`
	Detail           *scanDetail         `json:"detail,omitempty"`
	CreatedTs        int64               `json:"created_ts"`
}

// ScanHistoryResponse is the body of GET /api/scan/history.
type ScanHistoryResponse struct {
	TotalCount int64              `json:"total_count"`
	Scans      []*ScanHistoryItem `json:"scans"`
}

// ListScanHistory handles GET /api/scan/history?user_id=...
func (s *APIV1Service) ListScanHistory(c echo.Context) error {
	ctx := c.Request().Context()

	userID := strings.TrimSpace(c.QueryParam("user_id"))
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "user_id is required")
	}

	limit := parseIntParam(c.QueryParam("limit"), 20, 1, 100)
	offset := parseIntParam(c.QueryParam("offset"), 0, 0, 1<<30)

	find := &store.FindScan{UserID: &userID, Limit: limit, Offset: offset}
	scans, err := s.Store.ListScans(ctx, find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list scans").SetInternal(err)
	}
	total, err := s.Store.CountScans(ctx, &store.FindScan{UserID: &userID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count scans").SetInternal(err)
	}

	items := make([]*ScanHistoryItem, 0, len(scans))
	for _, scan := range scans {
		item := &ScanHistoryItem{
			ScanID:           scan.UID,
			UserID:           scan.UserID,
			OverallRiskLevel: scan.OverallRiskLevel,
			IngredientsFound: scan.IngredientsFound,
			RiskScore:        scan.RiskScore,
			CreatedTs:        scan.CreatedTs,
		}
		if item.IngredientsFound == nil {
			item.IngredientsFound = []string{}
		}
		if scan.Detail != "" && scan.Detail != "{}" {
			detail := &scanDetail{}
			if err := json.Unmarshal([]byte(scan.Detail), detail); err == nil {
				item.Detail = detail
			}
		}
		items = append(items, item)
	}

	return c.JSON(http.StatusOK, &ScanHistoryResponse{
		TotalCount: total,
		Scans:      items,
	})
}

// resolveIngredientNames maps library IDs to names, preserving input order.
func (s *APIV1Service) resolveIngredientNames(ctx context.Context, ids []int32) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	list, err := s.Store.ListIngredients(ctx, &store.FindIngredient{IDs: ids})
	if err != nil {
		return nil, err
	}

	byID := make(map[int32]string, len(list))
	for _, ingredient := range list {
		byID[ingredient.ID] = ingredient.Name
	}

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *APIV1Service) recordScan(source, riskLevel string, latency time.Duration, success bool) {
	if s.Exporter == nil {
		return
	}
	if riskLevel == "" {
		riskLevel = "unknown"
	}
	s.Exporter.RecordScan(source, riskLevel, latency, success)
}

func parseIntParam(raw string, fallback, min, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
