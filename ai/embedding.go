package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/lotus-health/lotus/ai/cache"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewEmbeddingService creates a new EmbeddingService for any
// OpenAI-compatible provider (openai, openrouter, ollama).
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	client := openai.NewClientWithConfig(clientConfig)

	return &embeddingService{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}

	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}

// cachedEmbeddingService memoizes embeddings by normalized text.
// Ingredient names repeat heavily across scans, so the hit rate is high.
type cachedEmbeddingService struct {
	inner EmbeddingService
	cache *cache.LRUCache[string, []float32]
}

// NewCachedEmbeddingService wraps an EmbeddingService with an LRU cache.
func NewCachedEmbeddingService(inner EmbeddingService, capacity int, ttl time.Duration) EmbeddingService {
	return &cachedEmbeddingService{
		inner: inner,
		cache: cache.NewLRUCache[string, []float32](capacity, ttl),
	}
}

func embeddingCacheKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func (s *cachedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embeddingCacheKey(text)
	if vector, ok := s.cache.Get(key); ok {
		return vector, nil
	}

	vector, err := s.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.SetWithDefaultTTL(key, vector)
	return vector, nil
}

func (s *cachedEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	missing := []string{}
	missingIdx := []int{}

	for i, text := range texts {
		if vector, ok := s.cache.Get(embeddingCacheKey(text)); ok {
			vectors[i] = vector
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	fetched, err := s.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missing) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(fetched), len(missing))
	}

	for i, vector := range fetched {
		vectors[missingIdx[i]] = vector
		s.cache.SetWithDefaultTTL(embeddingCacheKey(missing[i]), vector)
	}

	return vectors, nil
}

func (s *cachedEmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}
