package risk

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotus-health/lotus/ai"
	"github.com/lotus-health/lotus/internal/profile"
	"github.com/lotus-health/lotus/store"
)

type fakeDriver struct {
	store.Driver

	matches   []*store.IngredientMatch
	searchErr error
	profiles  map[string]*store.UserProfile

	searchCalls int
}

func (d *fakeDriver) SearchIngredients(ctx context.Context, search *store.IngredientSearch) ([]*store.IngredientMatch, error) {
	d.searchCalls++
	if d.searchErr != nil {
		return nil, d.searchErr
	}
	return d.matches, nil
}

func (d *fakeDriver) ListUserProfiles(ctx context.Context, find *store.FindUserProfile) ([]*store.UserProfile, error) {
	if find.UserID == nil {
		return nil, nil
	}
	if p, ok := d.profiles[*find.UserID]; ok {
		return []*store.UserProfile{p}, nil
	}
	return nil, nil
}

func (d *fakeDriver) GetDB() *sql.DB { return nil }
func (d *fakeDriver) Close() error   { return nil }

type fakeEmbedder struct {
	calls int
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func (e *fakeEmbedder) Dimensions() int { return 3 }

type fakeLLM struct {
	response   string
	err        error
	lastPrompt string
}

func (f *fakeLLM) Chat(ctx context.Context, messages []ai.Message) (string, *ai.LLMCallStats, error) {
	if len(messages) > 0 {
		f.lastPrompt = messages[len(messages)-1].Content
	}
	return f.response, &ai.LLMCallStats{TotalTokens: 100}, f.err
}

func (f *fakeLLM) ChatVision(ctx context.Context, prompt string, imageURL string) (string, *ai.LLMCallStats, error) {
	return f.response, &ai.LLMCallStats{}, f.err
}

func (f *fakeLLM) Warmup(ctx context.Context) {}

func newTestScorer(driver *fakeDriver, llm *fakeLLM, embedder *fakeEmbedder) *Scorer {
	s := store.New(driver, &profile.Profile{})
	return NewScorer(s, embedder, llm, 0.1, nil)
}

func libraryMatch(id int32, name string, level store.RiskLevel, similarity float64) *store.IngredientMatch {
	return &store.IngredientMatch{
		Ingredient: &store.Ingredient{ID: id, Name: name, RiskLevel: level},
		Similarity: similarity,
	}
}

const validAssessment = `{
	"overall_risk_level": "High Risk (Harmful)",
	"explanation": "Fragrance and parabens are known irritants. Avoid with sensitive skin.",
	"ingredient_details": [
		{"name": "Fragrance", "risk_level": "High", "reason": "Common irritant"},
		{"name": "Cotton", "risk_level": "Low", "reason": "Generally safe"},
		{"name": "Glycerin", "risk_level": "Medium", "reason": "May disrupt pH"}
	],
	"recommendations": "Choose fragrance-free alternatives."
}`

func TestScoreIngredients(t *testing.T) {
	ctx := context.Background()

	t.Run("FullAssessment", func(t *testing.T) {
		driver := &fakeDriver{
			matches: []*store.IngredientMatch{
				libraryMatch(1, "Fragrance", store.RiskLevelHigh, 0.95),
			},
			profiles: map[string]*store.UserProfile{
				"user-1": {UserID: "user-1", Sensitivities: []string{"fragrance", "latex"}},
			},
		}
		llm := &fakeLLM{response: validAssessment}
		scorer := newTestScorer(driver, llm, &fakeEmbedder{})

		assessment, err := scorer.ScoreIngredients(ctx, []string{"Fragrance", "Cotton"}, "user-1")
		require.NoError(t, err)

		assert.Equal(t, store.ScanRiskHigh, assessment.RiskLevel)
		assert.False(t, assessment.Degraded)
		assert.Equal(t, []string{"Fragrance", "Cotton"}, assessment.IngredientsFound)
		assert.Equal(t, "Choose fragrance-free alternatives.", assessment.Recommendations)

		// Only Medium and High details survive.
		require.Len(t, assessment.RiskyIngredients, 2)
		assert.Equal(t, "Fragrance", assessment.RiskyIngredients[0].Name)
		assert.Equal(t, "Glycerin", assessment.RiskyIngredients[1].Name)

		// Sensitivities and library context reach the prompt.
		assert.Contains(t, llm.lastPrompt, "fragrance, latex")
		assert.Contains(t, llm.lastPrompt, "Risk Level: High")
	})

	t.Run("AnonymousUserSkipsProfile", func(t *testing.T) {
		driver := &fakeDriver{profiles: map[string]*store.UserProfile{}}
		llm := &fakeLLM{response: validAssessment}
		scorer := newTestScorer(driver, llm, &fakeEmbedder{})

		_, err := scorer.ScoreIngredients(ctx, []string{"Cotton"}, store.AnonymousUserID)
		require.NoError(t, err)
		assert.Contains(t, llm.lastPrompt, "No known sensitivities")
	})

	t.Run("MalformedLLMOutputDegrades", func(t *testing.T) {
		driver := &fakeDriver{}
		llm := &fakeLLM{response: "I think this product is probably fine."}
		scorer := newTestScorer(driver, llm, &fakeEmbedder{})

		assessment, err := scorer.ScoreIngredients(ctx, []string{"Cotton"}, "user-1")
		require.NoError(t, err)
		assert.True(t, assessment.Degraded)
		assert.Equal(t, store.ScanRiskCaution, assessment.RiskLevel)
		assert.Equal(t, "Assessment requires manual review", assessment.Explanation)
		assert.Empty(t, assessment.RiskyIngredients)
	})

	t.Run("CodeFencedLLMOutput", func(t *testing.T) {
		driver := &fakeDriver{}
		llm := &fakeLLM{response: "```json\n" + validAssessment + "\n```"}
		scorer := newTestScorer(driver, llm, &fakeEmbedder{})

		assessment, err := scorer.ScoreIngredients(ctx, []string{"Cotton"}, "user-1")
		require.NoError(t, err)
		assert.False(t, assessment.Degraded)
		assert.Equal(t, store.ScanRiskHigh, assessment.RiskLevel)
	})

	t.Run("SearchFailureContinues", func(t *testing.T) {
		driver := &fakeDriver{searchErr: errors.New("connection refused")}
		llm := &fakeLLM{response: validAssessment}
		scorer := newTestScorer(driver, llm, &fakeEmbedder{})

		_, err := scorer.ScoreIngredients(ctx, []string{"Cotton", "Rayon"}, "user-1")
		require.NoError(t, err)
		assert.Contains(t, llm.lastPrompt, "No similar ingredients found in knowledge base")
	})

	t.Run("LLMFailurePropagates", func(t *testing.T) {
		driver := &fakeDriver{}
		llm := &fakeLLM{err: errors.New("rate limited")}
		scorer := newTestScorer(driver, llm, &fakeEmbedder{})

		_, err := scorer.ScoreIngredients(ctx, []string{"Cotton"}, "user-1")
		require.Error(t, err)
	})

	t.Run("SearchCacheAvoidsRepeatEmbedding", func(t *testing.T) {
		driver := &fakeDriver{matches: []*store.IngredientMatch{}}
		embedder := &fakeEmbedder{}
		scorer := newTestScorer(driver, &fakeLLM{response: validAssessment}, embedder)

		_, err := scorer.ScoreIngredients(ctx, []string{"Cotton"}, "user-1")
		require.NoError(t, err)
		_, err = scorer.ScoreIngredients(ctx, []string{"cotton"}, "user-1")
		require.NoError(t, err)

		assert.Equal(t, 1, embedder.calls)
	})
}

func TestSearchAllDeduplicates(t *testing.T) {
	driver := &fakeDriver{
		matches: []*store.IngredientMatch{
			libraryMatch(1, "Fragrance", store.RiskLevelHigh, 0.9),
			libraryMatch(2, "Parfum", store.RiskLevelHigh, 0.8),
		},
	}
	scorer := newTestScorer(driver, &fakeLLM{}, &fakeEmbedder{})

	all := scorer.searchAll(context.Background(), []string{"Fragrance", "Perfume"})

	// Both queries return the same two rows; each ID appears once.
	require.Len(t, all, 2)
	ids := []int32{all[0].Ingredient.ID, all[1].Ingredient.ID}
	assert.ElementsMatch(t, []int32{1, 2}, ids)
}

func TestNormalizeRiskLevel(t *testing.T) {
	tests := []struct {
		input string
		want  store.ScanRiskLevel
	}{
		{"Low Risk (Safe)", store.ScanRiskLow},
		{"Caution (Irritating)", store.ScanRiskCaution},
		{"High Risk (Harmful)", store.ScanRiskHigh},
		{"caution", store.ScanRiskCaution},
		{"HIGH", store.ScanRiskHigh},
		{"harmful", store.ScanRiskHigh},
		{"irritating", store.ScanRiskCaution},
		{"", store.ScanRiskCaution},
		{"something else", store.ScanRiskCaution},
		// "low" alone is not enough to declare a product safe.
		{"low", store.ScanRiskCaution},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRiskLevel(tt.input))
		})
	}
}

func TestRiskScoreForLevel(t *testing.T) {
	assert.Equal(t, 0.2, RiskScoreForLevel(store.ScanRiskLow))
	assert.Equal(t, 0.5, RiskScoreForLevel(store.ScanRiskCaution))
	assert.Equal(t, 0.9, RiskScoreForLevel(store.ScanRiskHigh))
}

func TestFormatAssessmentPrompt(t *testing.T) {
	prompt := formatAssessmentPrompt(nil, nil, nil)
	assert.Contains(t, prompt, "None")
	assert.Contains(t, prompt, "No known sensitivities")
	assert.Contains(t, prompt, "No similar ingredients found in knowledge base")

	prompt = formatAssessmentPrompt(
		[]string{"Cotton", "Fragrance"},
		[]string{"latex"},
		[]*store.IngredientMatch{libraryMatch(1, "Fragrance", store.RiskLevelHigh, 0.9)},
	)
	assert.Contains(t, prompt, "Cotton, Fragrance")
	assert.Contains(t, prompt, "latex")
	assert.True(t, strings.Contains(prompt, "- Fragrance:"))
}
