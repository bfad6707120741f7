package v1

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lotus-health/lotus/ai"
	"github.com/lotus-health/lotus/ai/risk"
	"github.com/lotus-health/lotus/internal/profile"
	"github.com/lotus-health/lotus/store"
)

// testDriver is an in-memory store.Driver covering the methods the
// handlers exercise. Unimplemented methods panic via the embedded nil.
type testDriver struct {
	store.Driver

	ingredients []*store.Ingredient
	products    []*store.Product
	profiles    map[string]*store.UserProfile
	scans       []*store.Scan
	matches     []*store.IngredientMatch

	listErr error
}

func newTestDriver() *testDriver {
	return &testDriver{profiles: map[string]*store.UserProfile{}}
}

func (d *testDriver) GetDB() *sql.DB { return nil }
func (d *testDriver) Close() error   { return nil }

func (d *testDriver) ListIngredients(ctx context.Context, find *store.FindIngredient) ([]*store.Ingredient, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	list := []*store.Ingredient{}
	for _, ingredient := range d.ingredients {
		if find.ID != nil && ingredient.ID != *find.ID {
			continue
		}
		if find.RiskLevel != nil && ingredient.RiskLevel != *find.RiskLevel {
			continue
		}
		if find.NameLike != nil && !strings.Contains(strings.ToLower(ingredient.Name), strings.ToLower(*find.NameLike)) {
			continue
		}
		if len(find.IDs) > 0 {
			found := false
			for _, id := range find.IDs {
				if ingredient.ID == id {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		list = append(list, ingredient)
	}
	if find.Offset > 0 {
		if find.Offset >= len(list) {
			return []*store.Ingredient{}, nil
		}
		list = list[find.Offset:]
	}
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *testDriver) CountIngredients(ctx context.Context, find *store.FindIngredient) (int64, error) {
	list, err := d.ListIngredients(ctx, &store.FindIngredient{RiskLevel: find.RiskLevel, NameLike: find.NameLike})
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (d *testDriver) SearchIngredients(ctx context.Context, search *store.IngredientSearch) ([]*store.IngredientMatch, error) {
	return d.matches, nil
}

func (d *testDriver) ListProducts(ctx context.Context, find *store.FindProduct) ([]*store.Product, error) {
	list := []*store.Product{}
	for _, product := range d.products {
		if find.Barcode != nil && product.Barcode != *find.Barcode {
			continue
		}
		list = append(list, product)
	}
	return list, nil
}

func (d *testDriver) UpsertUserProfile(ctx context.Context, upsert *store.UpsertUserProfile) (*store.UserProfile, error) {
	now := time.Now().Unix()
	userProfile := &store.UserProfile{
		ID:            int32(len(d.profiles) + 1),
		UserID:        upsert.UserID,
		Sensitivities: upsert.Sensitivities,
		CreatedTs:     now,
		UpdatedTs:     now,
	}
	if existing, ok := d.profiles[upsert.UserID]; ok {
		userProfile.ID = existing.ID
		userProfile.CreatedTs = existing.CreatedTs
	}
	d.profiles[upsert.UserID] = userProfile
	return userProfile, nil
}

func (d *testDriver) ListUserProfiles(ctx context.Context, find *store.FindUserProfile) ([]*store.UserProfile, error) {
	if find.UserID != nil {
		if userProfile, ok := d.profiles[*find.UserID]; ok {
			return []*store.UserProfile{userProfile}, nil
		}
		return nil, nil
	}
	list := []*store.UserProfile{}
	for _, userProfile := range d.profiles {
		list = append(list, userProfile)
	}
	return list, nil
}

func (d *testDriver) CreateScan(ctx context.Context, create *store.CreateScan) (*store.Scan, error) {
	scan := &store.Scan{
		ID:               int64(len(d.scans) + 1),
		UID:              create.UID,
		UserID:           create.UserID,
		OverallRiskLevel: create.OverallRiskLevel,
		IngredientsFound: create.IngredientsFound,
		Detail:           create.Detail,
		RiskScore:        create.RiskScore,
		CreatedTs:        time.Now().Unix(),
	}
	d.scans = append(d.scans, scan)
	return scan, nil
}

func (d *testDriver) ListScans(ctx context.Context, find *store.FindScan) ([]*store.Scan, error) {
	list := []*store.Scan{}
	for i := len(d.scans) - 1; i >= 0; i-- {
		scan := d.scans[i]
		if find.UserID != nil && scan.UserID != *find.UserID {
			continue
		}
		list = append(list, scan)
	}
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *testDriver) CountScans(ctx context.Context, find *store.FindScan) (int64, error) {
	var count int64
	for _, scan := range d.scans {
		if find.UserID != nil && scan.UserID != *find.UserID {
			continue
		}
		count++
	}
	return count, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func (stubEmbedder) Dimensions() int { return 3 }

type stubLLM struct {
	chatResponse   string
	visionResponse string
	err            error
}

func (l *stubLLM) Chat(ctx context.Context, messages []ai.Message) (string, *ai.LLMCallStats, error) {
	return l.chatResponse, &ai.LLMCallStats{}, l.err
}

func (l *stubLLM) ChatVision(ctx context.Context, prompt string, imageURL string) (string, *ai.LLMCallStats, error) {
	return l.visionResponse, &ai.LLMCallStats{}, l.err
}

func (l *stubLLM) Warmup(ctx context.Context) {}

func newTestService(driver *testDriver) (*APIV1Service, *echo.Echo) {
	testProfile := &profile.Profile{
		Mode:            "dev",
		Driver:          "sqlite",
		SearchThreshold: 0.1,
		SearchLimit:     5,
	}
	storeInstance := store.New(driver, testProfile)
	service := &APIV1Service{
		Profile: testProfile,
		Store:   storeInstance,
	}

	e := echo.New()
	service.RegisterRoutes(e)
	return service, e
}

// withAI attaches stub AI services so scan and search endpoints work.
func withAI(service *APIV1Service, chatResponse, visionResponse string) {
	service.EmbeddingService = stubEmbedder{}
	llm := &stubLLM{chatResponse: chatResponse, visionResponse: visionResponse}
	service.LLMService = llm
	service.Scorer = risk.NewScorer(service.Store, service.EmbeddingService, llm, service.Profile.SearchThreshold, nil)
}
