package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	// Storage
	StoreBackend string
	RedisURL     string
	SQLitePath   string
	SaveKey      string

	// Content and persistence
	ContentFile      string
	AutosaveInterval time.Duration
	TranscriptLimit  int

	// Oracle
	OracleProvider    string
	OracleURL         string
	OracleAPIKey      string
	ModelName         string
	OracleDelay       time.Duration
	OracleMaxTokens   int
	OracleTemperature float64
	OracleTopP        float64

	// Social energy
	MaxSocialEnergy  int
	EnergyRestore    int
	ConversationCost int

	EventsBackend string

	// Tracing
	OTelEnabled  bool
	OTelEndpoint string

	// Proxy
	ProxyPort      string
	UpstreamURL    string
	UpstreamAPIKey string
	SiteURL        string
	SiteTitle      string
	AllowedOrigins []string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var errs []error
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "memory")),
		RedisURL:     getEnv("REDIS_URL", "localhost:6379"),
		SQLitePath:   getEnv("SQLITE_PATH", "questline.db"),
		SaveKey:      getEnv("SAVE_KEY", "questline:save"),

		ContentFile:      getEnv("CONTENT_FILE", ""),
		AutosaveInterval: getEnvDuration("AUTOSAVE_INTERVAL", 30*time.Second, &errs),
		TranscriptLimit:  getEnvInt("TRANSCRIPT_LIMIT", 10, &errs),

		OracleProvider:    strings.ToLower(getEnv("ORACLE_PROVIDER", "completions")),
		OracleURL:         getEnv("ORACLE_URL", ""),
		OracleAPIKey:      getEnv("ORACLE_API_KEY", ""),
		ModelName:         getEnv("MODEL_NAME", ""),
		OracleDelay:       getEnvDuration("ORACLE_DELAY", 500*time.Millisecond, &errs),
		OracleMaxTokens:   getEnvInt("ORACLE_MAX_TOKENS", 150, &errs),
		OracleTemperature: getEnvFloat("ORACLE_TEMPERATURE", 0.8, &errs),
		OracleTopP:        getEnvFloat("ORACLE_TOP_P", 0.9, &errs),

		MaxSocialEnergy:  getEnvInt("MAX_SOCIAL_ENERGY", 5, &errs),
		EnergyRestore:    getEnvInt("ENERGY_RESTORE", 2, &errs),
		ConversationCost: getEnvInt("CONVERSATION_COST", 1, &errs),

		EventsBackend: strings.ToLower(getEnv("EVENTS_BACKEND", "memory")),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false, &errs),
		OTelEndpoint: getEnv("OTEL_ENDPOINT", "localhost:4318"),

		ProxyPort:      getEnv("PROXY_PORT", "8081"),
		UpstreamURL:    getEnv("UPSTREAM_URL", "https://openrouter.ai/api/v1/chat/completions"),
		UpstreamAPIKey: getEnv("UPSTREAM_API_KEY", ""),
		SiteURL:        getEnv("SITE_URL", ""),
		SiteTitle:      getEnv("SITE_TITLE", "Questline"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	switch c.StoreBackend {
	case "redis", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be redis, sqlite or memory, got %q", c.StoreBackend))
	}
	switch c.EventsBackend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("EVENTS_BACKEND must be redis or memory, got %q", c.EventsBackend))
	}
	switch c.OracleProvider {
	case "completions", "openrouter", "openai", "gemini", "mock":
	default:
		errs = append(errs, fmt.Errorf("ORACLE_PROVIDER must be completions, openai, gemini or mock, got %q", c.OracleProvider))
	}
	if c.MaxSocialEnergy <= 0 {
		errs = append(errs, fmt.Errorf("MAX_SOCIAL_ENERGY must be positive, got %d", c.MaxSocialEnergy))
	}
	if c.EnergyRestore < 0 {
		errs = append(errs, fmt.Errorf("ENERGY_RESTORE must not be negative, got %d", c.EnergyRestore))
	}
	if c.ConversationCost < 0 {
		errs = append(errs, fmt.Errorf("CONVERSATION_COST must not be negative, got %d", c.ConversationCost))
	}
	if c.TranscriptLimit < 0 {
		errs = append(errs, fmt.Errorf("TRANSCRIPT_LIMIT must not be negative, got %d", c.TranscriptLimit))
	}
	if c.OracleDelay < 0 {
		errs = append(errs, fmt.Errorf("ORACLE_DELAY must not be negative, got %s", c.OracleDelay))
	}
	return errs
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

// getEnvDuration accepts Go durations ("750ms") or bare seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
