// Package config loads the engine configuration from the environment and
// exposes an immutable snapshot threaded through the services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// SearchProvider selects the web search backend.
type SearchProvider string

const (
	ProviderTavily  SearchProvider = "tavily"
	ProviderSerpAPI SearchProvider = "serpapi"
)

// Config is the process-wide configuration snapshot, read once at startup.
type Config struct {
	// Reasoner
	OpenAIAPIKey   string
	Model          string
	InferenceModel string
	ModelTimeout   time.Duration
	AuxTimeout     time.Duration

	// Search
	SearchProvider SearchProvider
	TavilyAPIKey   string
	SerpAPIKey     string

	// Persistence
	DatabaseURL string

	// Memory
	ChatMemoryWindow int

	// Optional environment caps on the research budget. Zero means no cap.
	MaxStepsCap       int
	MaxWebSearchesCap int

	// HTTP
	HTTPPort string
}

// Intensity is the caller-selected research budget bucket.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// Caps bound a single agent run.
type Caps struct {
	MaxSteps       int
	MaxWebSearches int
}

var baseCaps = map[Intensity]Caps{
	IntensityLow:    {MaxSteps: 3, MaxWebSearches: 2},
	IntensityMedium: {MaxSteps: 6, MaxWebSearches: 4},
	IntensityHigh:   {MaxSteps: 10, MaxWebSearches: 8},
}

// CapsFor returns the run budget for an intensity, tightened (never loosened)
// by the RESEARCH_MAX_STEPS / RESEARCH_MAX_WEB_SEARCHES environment caps.
func (c *Config) CapsFor(intensity Intensity) Caps {
	caps, ok := baseCaps[intensity]
	if !ok {
		caps = baseCaps[IntensityMedium]
	}
	if c.MaxStepsCap > 0 && c.MaxStepsCap < caps.MaxSteps {
		caps.MaxSteps = c.MaxStepsCap
	}
	if c.MaxWebSearchesCap > 0 && c.MaxWebSearchesCap < caps.MaxWebSearches {
		caps.MaxWebSearches = c.MaxWebSearchesCap
	}
	return caps
}

// ParseIntensity maps a request string to an Intensity, defaulting to medium.
func ParseIntensity(s string) Intensity {
	switch Intensity(s) {
	case IntensityLow, IntensityMedium, IntensityHigh:
		return Intensity(s)
	}
	return IntensityMedium
}

// Load reads configuration from the environment. The database URL and OpenAI
// key are required; everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		Model:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ModelTimeout:      60 * time.Second,
		AuxTimeout:        30 * time.Second,
		TavilyAPIKey:      os.Getenv("TAVILY_API_KEY"),
		SerpAPIKey:        os.Getenv("SERPAPI_API_KEY"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		ChatMemoryWindow:  getEnvInt("CHAT_MEMORY_WINDOW", 8),
		MaxStepsCap:       getEnvInt("RESEARCH_MAX_STEPS", 0),
		MaxWebSearchesCap: getEnvInt("RESEARCH_MAX_WEB_SEARCHES", 0),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
	}
	cfg.InferenceModel = getEnv("OPENAI_INFERENCE_MODEL", cfg.Model)

	switch SearchProvider(getEnv("SEARCH_PROVIDER", string(ProviderTavily))) {
	case ProviderSerpAPI:
		cfg.SearchProvider = ProviderSerpAPI
	default:
		cfg.SearchProvider = ProviderTavily
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.ChatMemoryWindow < 1 {
		cfg.ChatMemoryWindow = 8
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
