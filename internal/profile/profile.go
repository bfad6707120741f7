package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"log/slog"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// LLM configuration (any OpenAI-compatible provider)
	LLMProvider string // openai, openrouter, ollama
	LLMAPIKey   string
	LLMBaseURL  string // optional, has default per provider
	LLMModel    string
	LLMTimeout  int // request timeout in seconds (default: 120)

	// Embedding configuration
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int

	// Vision OCR configuration. Defaults to the LLM provider credentials
	// when not set separately.
	OCRModel string

	// Vector search tuning
	SearchThreshold float64 // minimum cosine similarity for a library match
	SearchLimit     int     // default result limit per query

	// Rate limiting for the public API
	RateLimitRPS   float64
	RateLimitBurst int

	Mode        string // dev, prod, demo
	Addr        string
	Port        int
	UNIXSock    string
	Data        string
	Driver      string // postgres, sqlite
	DSN         string
	InstanceURL string
	Version     string
}

// Provider default configurations for the LLM.
// Used when LOTUS_AI_LLM_BASE_URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "openai/gpt-4o-mini",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an LLM API key is configured.
// Scans require AI; the library and profile endpoints do not.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != "" || p.LLMProvider == "ollama"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("LOTUS_AI_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("LOTUS_AI_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("LOTUS_AI_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("LOTUS_AI_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("LOTUS_AI_LLM_TIMEOUT_SECONDS", 120)

	if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
		slog.Warn("unknown LLM provider, using default: openai", "provider", p.LLMProvider)
		p.LLMProvider = "openai"
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}

	p.EmbeddingProvider = getEnvOrDefault("LOTUS_AI_EMBEDDING_PROVIDER", "openai")
	p.EmbeddingModel = getEnvOrDefault("LOTUS_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingAPIKey = getEnvOrDefault("LOTUS_AI_EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("LOTUS_AI_EMBEDDING_BASE_URL", "https://api.openai.com/v1")
	p.EmbeddingDimensions = getEnvOrDefaultInt("LOTUS_AI_EMBEDDING_DIMENSIONS", 1536)

	p.OCRModel = getEnvOrDefault("LOTUS_AI_OCR_MODEL", p.LLMModel)

	p.SearchThreshold = getEnvOrDefaultFloat("LOTUS_SEARCH_THRESHOLD", 0.1)
	p.SearchLimit = getEnvOrDefaultInt("LOTUS_SEARCH_LIMIT", 5)

	p.RateLimitRPS = getEnvOrDefaultFloat("LOTUS_RATE_LIMIT_RPS", 10)
	p.RateLimitBurst = getEnvOrDefaultInt("LOTUS_RATE_LIMIT_BURST", 30)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "lotus")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/lotus"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver != "postgres" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("lotus_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile) + "?_loc=auto"
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	if p.SearchThreshold < 0 || p.SearchThreshold > 1 {
		p.SearchThreshold = 0.1
	}
	if p.SearchLimit <= 0 {
		p.SearchLimit = 5
	}
	if p.EmbeddingDimensions <= 0 {
		p.EmbeddingDimensions = 1536
	}

	return nil
}
