// Package risk orchestrates the scan pipeline: ingredient extraction,
// library lookup, personalization, and LLM assessment.
package risk

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lotus-health/lotus/ai"
	"github.com/lotus-health/lotus/ai/cache"
	"github.com/lotus-health/lotus/ai/metrics"
	"github.com/lotus-health/lotus/ai/ocr"
	"github.com/lotus-health/lotus/store"
)

const (
	// maxMatchesPerIngredient bounds library context per extracted ingredient.
	maxMatchesPerIngredient = 3

	// searchConcurrency bounds parallel embedding plus vector lookups.
	searchConcurrency = 4

	searchCacheCapacity = 2048
	searchCacheTTL      = 30 * time.Minute
)

// RiskyIngredient is an ingredient the assessment flagged as Medium or High risk.
type RiskyIngredient struct {
	Name      string `json:"name"`
	RiskLevel string `json:"risk_level"`
	Reason    string `json:"reason"`
}

// Assessment is the outcome of a full risk scoring run.
type Assessment struct {
	RiskLevel        store.ScanRiskLevel `json:"risk_level"`
	Explanation      string              `json:"explanation"`
	IngredientsFound []string            `json:"ingredients_found"`
	RiskyIngredients []RiskyIngredient   `json:"risky_ingredients"`
	Recommendations  string              `json:"recommendations,omitempty"`

	// Degraded marks assessments that fell back to the default risk level
	// because the model output could not be parsed.
	Degraded bool `json:"-"`

	Stats *ai.LLMCallStats `json:"-"`
}

// llmAssessment is the strict JSON contract expected from the model.
type llmAssessment struct {
	OverallRiskLevel  string `json:"overall_risk_level"`
	Explanation       string `json:"explanation"`
	IngredientDetails []struct {
		Name      string `json:"name"`
		RiskLevel string `json:"risk_level"`
		Reason    string `json:"reason"`
	} `json:"ingredient_details"`
	Recommendations string `json:"recommendations"`
}

// Scorer runs the scan pipeline.
type Scorer struct {
	store     *store.Store
	embedder  ai.EmbeddingService
	llm       ai.LLMService
	extractor *ocr.Extractor
	exporter  *metrics.PrometheusExporter

	// Library matches repeat across scans of similar products.
	searchCache *cache.LRUCache[string, []*store.IngredientMatch]

	threshold float64
}

// NewScorer creates a Scorer. exporter may be nil.
func NewScorer(s *store.Store, embedder ai.EmbeddingService, llm ai.LLMService, threshold float64, exporter *metrics.PrometheusExporter) *Scorer {
	return &Scorer{
		store:       s,
		embedder:    embedder,
		llm:         llm,
		extractor:   ocr.NewExtractor(llm),
		exporter:    exporter,
		searchCache: cache.NewLRUCache[string, []*store.IngredientMatch](searchCacheCapacity, searchCacheTTL),
		threshold:   threshold,
	}
}

// ScoreImage runs the full pipeline on a label photo.
func (s *Scorer) ScoreImage(ctx context.Context, imageData []byte, userID string) (*Assessment, error) {
	slog.Info("risk: starting image assessment", "user_id", userID, "image_size", len(imageData))

	ocrStart := time.Now()
	ingredients, ocrStats, err := s.extractor.ExtractIngredients(ctx, imageData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract ingredients from image")
	}
	if s.exporter != nil {
		s.exporter.RecordOCRLatency(time.Since(ocrStart))
		if ocrStats != nil {
			s.exporter.RecordLLMTokens("ocr", "total", ocrStats.TotalTokens)
		}
	}

	if len(ingredients) == 0 {
		slog.Warn("risk: no ingredients extracted from image", "user_id", userID)
	}

	return s.score(ctx, ingredients, userID)
}

// ScoreIngredients runs the pipeline on an already known ingredient list,
// used for barcode scans where the product record resolves the ingredients.
func (s *Scorer) ScoreIngredients(ctx context.Context, ingredients []string, userID string) (*Assessment, error) {
	slog.Info("risk: starting ingredient assessment", "user_id", userID, "ingredients", len(ingredients))
	return s.score(ctx, ingredients, userID)
}

func (s *Scorer) score(ctx context.Context, ingredients []string, userID string) (*Assessment, error) {
	sensitivities := s.fetchSensitivities(ctx, userID)

	searchStart := time.Now()
	matches := s.searchAll(ctx, ingredients)
	if s.exporter != nil {
		s.exporter.RecordSearchLatency(time.Since(searchStart))
	}

	assessment, err := s.assess(ctx, ingredients, sensitivities, matches)
	if err != nil {
		return nil, err
	}
	assessment.IngredientsFound = ingredients
	return assessment, nil
}

// fetchSensitivities returns the user's sensitivity list. Anonymous users
// and lookup failures yield an empty list rather than failing the scan.
func (s *Scorer) fetchSensitivities(ctx context.Context, userID string) []string {
	if userID == "" || userID == store.AnonymousUserID {
		return nil
	}

	userProfile, err := s.store.GetUserProfile(ctx, userID)
	if err != nil {
		slog.Warn("risk: failed to fetch user sensitivities", "user_id", userID, "error", err)
		return nil
	}
	if userProfile == nil {
		slog.Warn("risk: no profile found for user", "user_id", userID)
		return nil
	}
	return userProfile.Sensitivities
}

// searchAll gathers library context for every extracted ingredient.
// Lookups run concurrently; a failed lookup is skipped, not fatal.
// Results are deduplicated by ingredient ID in input order.
func (s *Scorer) searchAll(ctx context.Context, ingredients []string) []*store.IngredientMatch {
	perIngredient := make([][]*store.IngredientMatch, len(ingredients))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)

	for i, ingredient := range ingredients {
		i, ingredient := i, ingredient
		g.Go(func() error {
			matches, err := s.searchOne(gctx, ingredient)
			if err != nil {
				slog.Warn("risk: vector search failed for ingredient", "ingredient", ingredient, "error", err)
				return nil
			}
			mu.Lock()
			perIngredient[i] = matches
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait only orders completion.
	_ = g.Wait()

	seen := map[int32]bool{}
	all := []*store.IngredientMatch{}
	for _, matches := range perIngredient {
		for _, match := range matches {
			if seen[match.Ingredient.ID] {
				continue
			}
			seen[match.Ingredient.ID] = true
			all = append(all, match)
		}
	}
	return all
}

func (s *Scorer) searchOne(ctx context.Context, ingredient string) ([]*store.IngredientMatch, error) {
	key := strings.ToLower(strings.TrimSpace(ingredient))
	if matches, ok := s.searchCache.Get(key); ok {
		if s.exporter != nil {
			s.exporter.RecordCacheHit("search")
		}
		return matches, nil
	}
	if s.exporter != nil {
		s.exporter.RecordCacheMiss("search")
	}

	vector, err := s.embedder.Embed(ctx, ingredient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	matches, err := s.store.SearchIngredients(ctx, &store.IngredientSearch{
		Vector:    vector,
		Threshold: s.threshold,
		Limit:     maxMatchesPerIngredient,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search ingredient library")
	}

	s.searchCache.SetWithDefaultTTL(key, matches)
	return matches, nil
}

// assess sends the gathered context to the LLM and parses the verdict.
// Unparseable model output degrades to a Caution assessment instead of failing.
func (s *Scorer) assess(ctx context.Context, ingredients []string, sensitivities []string, matches []*store.IngredientMatch) (*Assessment, error) {
	messages := []ai.Message{
		ai.SystemPrompt(healthExpertSystemPrompt),
		ai.UserMessage(formatAssessmentPrompt(ingredients, sensitivities, matches)),
	}

	content, stats, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return nil, errors.Wrap(err, "LLM assessment failed")
	}
	if s.exporter != nil && stats != nil {
		s.exporter.RecordLLMTokens("assessment", "prompt", stats.PromptTokens)
		s.exporter.RecordLLMTokens("assessment", "completion", stats.CompletionTokens)
	}

	var parsed llmAssessment
	if err := json.Unmarshal([]byte(ai.StripCodeFence(content)), &parsed); err != nil {
		slog.Error("risk: failed to parse LLM assessment", "error", err, "content_length", len(content))
		if s.exporter != nil {
			s.exporter.RecordDegradedScan()
		}
		return &Assessment{
			RiskLevel:        store.ScanRiskCaution,
			Explanation:      "Assessment requires manual review",
			RiskyIngredients: []RiskyIngredient{},
			Degraded:         true,
			Stats:            stats,
		}, nil
	}

	if parsed.Explanation == "" {
		parsed.Explanation = "Unable to generate detailed explanation"
	}

	return &Assessment{
		RiskLevel:        NormalizeRiskLevel(parsed.OverallRiskLevel),
		Explanation:      parsed.Explanation,
		RiskyIngredients: extractRiskyIngredients(&parsed),
		Recommendations:  parsed.Recommendations,
		Stats:            stats,
	}, nil
}

// NormalizeRiskLevel maps free-form model risk labels onto the stored enum.
// Unknown labels default to Caution.
func NormalizeRiskLevel(level string) store.ScanRiskLevel {
	lower := strings.ToLower(level)
	switch {
	case strings.Contains(lower, "low") && strings.Contains(lower, "safe"):
		return store.ScanRiskLow
	case strings.Contains(lower, "caution") || strings.Contains(lower, "irritat"):
		return store.ScanRiskCaution
	case strings.Contains(lower, "high") || strings.Contains(lower, "harm"):
		return store.ScanRiskHigh
	default:
		return store.ScanRiskCaution
	}
}

// RiskScoreForLevel maps a risk level to a numeric score in [0, 1].
func RiskScoreForLevel(level store.ScanRiskLevel) float64 {
	switch level {
	case store.ScanRiskLow:
		return 0.2
	case store.ScanRiskHigh:
		return 0.9
	default:
		return 0.5
	}
}

// extractRiskyIngredients keeps only ingredients the model marked Medium or High.
func extractRiskyIngredients(parsed *llmAssessment) []RiskyIngredient {
	risky := []RiskyIngredient{}
	for _, detail := range parsed.IngredientDetails {
		level := strings.ToLower(detail.RiskLevel)
		if !strings.Contains(level, "medium") && !strings.Contains(level, "high") {
			continue
		}
		item := RiskyIngredient{
			Name:      detail.Name,
			RiskLevel: detail.RiskLevel,
			Reason:    detail.Reason,
		}
		if item.Name == "" {
			item.Name = "Unknown"
		}
		if item.Reason == "" {
			item.Reason = "No details available"
		}
		risky = append(risky, item)
	}
	return risky
}
