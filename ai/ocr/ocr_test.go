package ocr

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotus-health/lotus/ai"
)

type fakeLLM struct {
	response string
	err      error
	prompt   string
	imageURL string
}

func (f *fakeLLM) Chat(ctx context.Context, messages []ai.Message) (string, *ai.LLMCallStats, error) {
	return f.response, &ai.LLMCallStats{}, f.err
}

func (f *fakeLLM) ChatVision(ctx context.Context, prompt string, imageURL string) (string, *ai.LLMCallStats, error) {
	f.prompt = prompt
	f.imageURL = imageURL
	return f.response, &ai.LLMCallStats{TotalTokens: 42}, f.err
}

func (f *fakeLLM) Warmup(ctx context.Context) {}

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

func TestExtractIngredients(t *testing.T) {
	ctx := context.Background()

	t.Run("PlainJSONList", func(t *testing.T) {
		llm := &fakeLLM{response: `["Fragrance", "Rayon", "Polyester"]`}
		extractor := NewExtractor(llm)

		ingredients, stats, err := extractor.ExtractIngredients(ctx, jpegHeader)
		require.NoError(t, err)
		assert.Equal(t, []string{"Fragrance", "Rayon", "Polyester"}, ingredients)
		assert.Equal(t, 42, stats.TotalTokens)
		assert.True(t, strings.HasPrefix(llm.imageURL, "data:image/jpeg;base64,"))
	})

	t.Run("CodeFencedJSON", func(t *testing.T) {
		llm := &fakeLLM{response: "```json\n[\"Cotton\", \"Glycerin\"]\n```"}
		extractor := NewExtractor(llm)

		ingredients, _, err := extractor.ExtractIngredients(ctx, jpegHeader)
		require.NoError(t, err)
		assert.Equal(t, []string{"Cotton", "Glycerin"}, ingredients)
	})

	t.Run("BlankEntriesDropped", func(t *testing.T) {
		llm := &fakeLLM{response: `["Cotton", "  ", "", " Aloe "]`}
		extractor := NewExtractor(llm)

		ingredients, _, err := extractor.ExtractIngredients(ctx, jpegHeader)
		require.NoError(t, err)
		assert.Equal(t, []string{"Cotton", "Aloe"}, ingredients)
	})

	t.Run("EmptyList", func(t *testing.T) {
		llm := &fakeLLM{response: `[]`}
		extractor := NewExtractor(llm)

		ingredients, _, err := extractor.ExtractIngredients(ctx, jpegHeader)
		require.NoError(t, err)
		assert.Empty(t, ingredients)
	})

	t.Run("MalformedResponse", func(t *testing.T) {
		llm := &fakeLLM{response: "The ingredients are cotton and rayon."}
		extractor := NewExtractor(llm)

		_, _, err := extractor.ExtractIngredients(ctx, jpegHeader)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON")
	})

	t.Run("EmptyImage", func(t *testing.T) {
		extractor := NewExtractor(&fakeLLM{})
		_, _, err := extractor.ExtractIngredients(ctx, nil)
		require.Error(t, err)
	})

	t.Run("OversizedImage", func(t *testing.T) {
		extractor := NewExtractor(&fakeLLM{})
		_, _, err := extractor.ExtractIngredients(ctx, make([]byte, MaxImageSize+1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds")
	})
}

func TestDetectImageFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"JPEG", []byte{0xFF, 0xD8, 0xFF, 0xDB}, "jpeg"},
		{"PNG", []byte("\x89PNG\r\n\x1a\n"), "png"},
		{"GIF", []byte("GIF89a"), "gif"},
		{"WebP", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"Unknown", []byte("not an image"), "jpeg"},
		{"TruncatedRIFF", []byte("RIFF\x00\x00"), "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectImageFormat(tt.data))
		})
	}
}
