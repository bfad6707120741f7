package ai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotus-health/lotus/ai/metrics"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"PlainJSON", `{"risk_level": "Low Risk"}`, `{"risk_level": "Low Risk"}`},
		{"JSONFence", "```json\n[\"Cotton\"]\n```", `["Cotton"]`},
		{"BareFence", "```\n[\"Cotton\"]\n```", `["Cotton"]`},
		{"SurroundingWhitespace", "  \n```json\n{}\n```\n  ", "{}"},
		{"UnclosedFence", "```json\n[1, 2]", "[1, 2]"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.content))
		})
	}
}

const chatCompletionBody = `{
	"choices": [{"message": {"role": "assistant", "content": "ok"}}],
	"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
}`

func newFakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatRecordsLatency(t *testing.T) {
	srv := newFakeOpenAI(t)
	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	cfg := &LLMConfig{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		APIKey:   "test-key",
		BaseURL:  srv.URL,
		Timeout:  5,
	}
	svc, err := NewLLMService(cfg, "gpt-4o", exporter)
	require.NoError(t, err)

	content, stats, err := svc.Chat(context.Background(), []Message{UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
	assert.Equal(t, 7, stats.TotalTokens)

	_, _, err = svc.ChatVision(context.Background(), "transcribe", "data:image/jpeg;base64,abc")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lotus_ai_llm_latency_seconds_count{model="gpt-4o-mini",provider="openai"} 1`)
	assert.Contains(t, string(body), `lotus_ai_llm_latency_seconds_count{model="gpt-4o",provider="openai"} 1`)
}

func TestChatWithoutExporter(t *testing.T) {
	srv := newFakeOpenAI(t)

	cfg := &LLMConfig{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		APIKey:   "test-key",
		BaseURL:  srv.URL,
		Timeout:  5,
	}
	svc, err := NewLLMService(cfg, "", nil)
	require.NoError(t, err)

	content, _, err := svc.Chat(context.Background(), []Message{UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
}
