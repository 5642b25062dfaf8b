package config

import (
	"os"
	"strconv"
	"time"

	"convdep/domain/conversation"
	"convdep/internal/errors"
)

// Adapter selection values for MODEL_ADAPTER. The fallback adapter is an
// explicit configuration choice, never a silent substitute for a missing
// credential.
const (
	AdapterOpenAI   = "openai"
	AdapterFallback = "fallback"
)

// Config represents the complete application configuration
type Config struct {
	AI       AIConfig
	Server   ServerConfig
	Analyzer AnalyzerConfig
	Anchors  AnchorConfig
	Database DatabaseConfig
	Paths    PathConfig
}

// AIConfig holds model adapter settings
type AIConfig struct {
	Adapter     string
	OpenAIKey   string
	Model       string
	EmbedModel  string
	Timeout     time.Duration
	Temperature float64
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// AnalyzerConfig carries environment overrides for the per-turn defaults.
type AnalyzerConfig struct {
	Options conversation.AnalyzerOptions
}

// AnchorConfig holds anchor memory settings
type AnchorConfig struct {
	Capacity int
}

// DatabaseConfig holds the optional anchor persistence backend. An empty
// URL means anchors live in process memory only.
type DatabaseConfig struct {
	URL string
}

// PathConfig holds file system paths
type PathConfig struct {
	ExportFile string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	aiConfig, err := loadAIConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load model adapter configuration")
	}
	config.AI = *aiConfig

	analyzerConfig, err := loadAnalyzerConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load analyzer configuration")
	}
	config.Analyzer = *analyzerConfig

	config.Server = ServerConfig{Port: getEnvOrDefault("PORT", "8080")}
	config.Anchors = AnchorConfig{Capacity: getEnvIntOrDefault("ANCHOR_CAPACITY", 200)}
	config.Database = DatabaseConfig{URL: getEnvOrDefault("DATABASE_URL", "")}
	config.Paths = PathConfig{ExportFile: getEnvOrDefault("EXPORT_FILE", "")}

	if config.Anchors.Capacity < 1 {
		return nil, errors.ConfigInvalid("ANCHOR_CAPACITY must be >= 1")
	}
	return config, nil
}

func loadAIConfig() (*AIConfig, error) {
	adapter := getEnvOrDefault("MODEL_ADAPTER", AdapterOpenAI)
	switch adapter {
	case AdapterOpenAI, AdapterFallback:
	default:
		return nil, errors.ConfigInvalid("MODEL_ADAPTER must be \"openai\" or \"fallback\"")
	}

	key := os.Getenv("OPENAI_API_KEY")
	if adapter == AdapterOpenAI && key == "" {
		return nil, errors.AdapterUnavailable("OPENAI_API_KEY is required when MODEL_ADAPTER=openai")
	}

	return &AIConfig{
		Adapter:     adapter,
		OpenAIKey:   key,
		Model:       getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		EmbedModel:  getEnvOrDefault("EMBED_MODEL", "text-embedding-3-small"),
		Timeout:     getEnvDurationOrDefault("LLM_TIMEOUT", 30*time.Second),
		Temperature: getEnvFloatOrDefault("TEMPERATURE", 0.0),
	}, nil
}

func loadAnalyzerConfig() (*AnalyzerConfig, error) {
	opts := conversation.DefaultOptions()
	opts.K = getEnvIntOrDefault("ANALYZER_K", opts.K)
	opts.HalfLifeTurns = getEnvFloatOrDefault("ANALYZER_HALF_LIFE_TURNS", opts.HalfLifeTurns)
	opts.NullSamples = getEnvIntOrDefault("ANALYZER_NULL_SAMPLES", opts.NullSamples)
	opts.FDRAlpha = getEnvFloatOrDefault("ANALYZER_FDR_ALPHA", opts.FDRAlpha)
	opts.AlphaMix = conversation.Float(getEnvFloatOrDefault("ANALYZER_ALPHA_MIX", *opts.AlphaMix))
	opts.MMRLambda = conversation.Float(getEnvFloatOrDefault("ANALYZER_MMR_LAMBDA", *opts.MMRLambda))

	if raw := os.Getenv("ANALYZER_Z_THRESHOLD"); raw != "" {
		z, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.ConfigInvalid("ANALYZER_Z_THRESHOLD must be numeric")
		}
		opts.ZThreshold = &z
	}

	if err := opts.Validate(); err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	return &AnalyzerConfig{Options: opts}, nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
