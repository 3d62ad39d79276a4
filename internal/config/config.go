package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/MikeSquared-Agency/quill/internal/catalog"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

type Config struct {
	Port              int
	NatsURL           string
	NatsToken         string
	NatsQueue         string
	DatabaseURL       string
	LogLevel          string
	Provider          string
	AnthropicAPIKey   string
	AnthropicModel    string
	GeminiAPIKey      string
	GeminiModel       string
	MaxTokens         int
	Brand             catalog.Brand
	AnalysisCacheSize int
	SlackBotToken     string
	SlackChannel      string
	APIToken          string
}

// Load reads the environment. A .env file in the working directory is loaded
// first when present; variables already set win over it.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:            envInt("QUILL_PORT", 8760),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		NatsQueue:       envStr("QUILL_NATS_QUEUE", "quill"),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		Provider:        envStr("QUILL_PROVIDER", ProviderAnthropic),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("QUILL_ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		GeminiAPIKey:    envStr("GEMINI_API_KEY", ""),
		GeminiModel:     envStr("QUILL_GEMINI_MODEL", "gemini-2.5-flash"),
		MaxTokens:       envInt("QUILL_MAX_TOKENS", 1024),
		Brand: catalog.Brand{
			Name:    envStr("QUILL_BRAND", catalog.DefaultBrand.Name),
			Product: envStr("QUILL_PRODUCT", catalog.DefaultBrand.Product),
			Link:    envStr("QUILL_LINK", catalog.DefaultBrand.Link),
		},
		AnalysisCacheSize: envInt("QUILL_ANALYSIS_CACHE", 0),
		SlackBotToken:     envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:      envStr("SLACK_REVIEW_CHANNEL", ""),
		APIToken:          envStr("QUILL_API_TOKEN", ""),
	}
}

// Validate checks that the selected generation provider can be built.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %s", c.Provider)
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %s", c.Provider)
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
