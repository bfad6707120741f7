package v1

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lotus-health/lotus/ai"
	"github.com/lotus-health/lotus/ai/metrics"
	"github.com/lotus-health/lotus/ai/risk"
	"github.com/lotus-health/lotus/internal/profile"
	"github.com/lotus-health/lotus/store"
)

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store

	// AI services are nil when no API key is configured; scan and
	// semantic search endpoints answer 503 in that case.
	EmbeddingService ai.EmbeddingService
	LLMService       ai.LLMService
	Scorer           *risk.Scorer

	Exporter *metrics.PrometheusExporter
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, exporter *metrics.PrometheusExporter) *APIV1Service {
	service := &APIV1Service{
		Profile:  profile,
		Store:    store,
		Exporter: exporter,
	}

	if profile.IsAIEnabled() {
		aiConfig := ai.NewConfigFromProfile(profile)
		if err := aiConfig.Validate(); err != nil {
			slog.Warn("AI config validation failed", "error", err)
			return service
		}

		embeddingService, err := ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			slog.Warn("Failed to initialize embedding service", "error", err)
			return service
		}
		service.EmbeddingService = ai.NewCachedEmbeddingService(embeddingService, 4096, time.Hour)

		llmService, err := ai.NewLLMService(&aiConfig.LLM, aiConfig.OCRModel, exporter)
		if err != nil {
			slog.Warn("Failed to initialize LLM service",
				"provider", aiConfig.LLM.Provider,
				"error", err,
				"note", "scan endpoints will be disabled",
			)
			return service
		}
		service.LLMService = llmService
		slog.Info("LLM service initialized",
			"provider", aiConfig.LLM.Provider,
			"model", aiConfig.LLM.Model,
		)

		// Warmup asynchronously to reduce first-request latency.
		// Best-effort: warmup failures don't affect startup.
		go func() {
			warmupCtx, warmupCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer warmupCancel()
			llmService.Warmup(warmupCtx)
		}()

		service.Scorer = risk.NewScorer(store, service.EmbeddingService, llmService, profile.SearchThreshold, exporter)
	} else {
		slog.Info("AI features disabled: no LLM API key configured")
	}

	return service
}

// RegisterRoutes registers all REST endpoints with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.POST("/scan", s.ScanProduct)
	g.POST("/scan/barcode", s.ScanBarcode)
	g.GET("/scan/history", s.ListScanHistory)

	g.POST("/profiles", s.UpsertUserProfile)
	g.GET("/profiles/:user_id", s.GetUserProfile)

	g.GET("/ingredients", s.ListIngredients)
	g.GET("/ingredients/search", s.SearchIngredients)
	g.GET("/ingredients/:id", s.GetIngredient)

	g.GET("/products/:barcode", s.GetProductByBarcode)
}
