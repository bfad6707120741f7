// Package ocr extracts ingredient lists from product label photos
// using a vision-capable chat model.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/lotus-health/lotus/ai"
)

// MaxImageSize is the largest accepted upload.
const MaxImageSize = 20 * 1024 * 1024

const extractionPrompt = "Extract every word from this ingredient list and return it as a clean JSON list of strings. Return only valid JSON."

// Extractor reads ingredient lists off product label images.
type Extractor struct {
	llm ai.LLMService
}

// NewExtractor creates an Extractor backed by the given LLM service.
func NewExtractor(llm ai.LLMService) *Extractor {
	return &Extractor{llm: llm}
}

// ExtractIngredients runs vision OCR over the image and returns the
// ingredient names found. An empty slice means the model saw no
// ingredient list; that is not an error.
func (e *Extractor) ExtractIngredients(ctx context.Context, imageData []byte) ([]string, *ai.LLMCallStats, error) {
	if len(imageData) == 0 {
		return nil, nil, errors.New("image data cannot be empty")
	}
	if len(imageData) > MaxImageSize {
		return nil, nil, errors.Errorf("image size %d exceeds %d bytes limit", len(imageData), MaxImageSize)
	}

	format := DetectImageFormat(imageData)
	dataURL := fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(imageData))

	slog.Debug("ocr: extracting ingredients", "format", format, "size", len(imageData))

	content, stats, err := e.llm.ChatVision(ctx, extractionPrompt, dataURL)
	if err != nil {
		return nil, stats, errors.Wrap(err, "vision extraction failed")
	}

	ingredients, err := parseIngredients(content)
	if err != nil {
		return nil, stats, err
	}

	slog.Info("ocr: extracted ingredients", "count", len(ingredients))
	return ingredients, stats, nil
}

// parseIngredients parses the model output into a cleaned ingredient list.
func parseIngredients(content string) ([]string, error) {
	text := ai.StripCodeFence(content)

	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, errors.Wrapf(err, "invalid JSON in vision response: %q", truncate(content, 200))
	}

	ingredients := make([]string, 0, len(raw))
	for _, ingredient := range raw {
		ingredient = strings.TrimSpace(ingredient)
		if ingredient != "" {
			ingredients = append(ingredients, ingredient)
		}
	}
	return ingredients, nil
}

// DetectImageFormat detects the image format from magic bytes.
// Defaults to jpeg when the signature is not recognized.
func DetectImageFormat(imageData []byte) string {
	switch {
	case bytes.HasPrefix(imageData, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg"
	case bytes.HasPrefix(imageData, []byte("\x89PNG")):
		return "png"
	case bytes.HasPrefix(imageData, []byte("GIF8")):
		return "gif"
	case bytes.HasPrefix(imageData, []byte("RIFF")) && len(imageData) >= 12 && bytes.Equal(imageData[8:12], []byte("WEBP")):
		return "webp"
	default:
		slog.Warn("ocr: could not detect image format, defaulting to jpeg")
		return "jpeg"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
