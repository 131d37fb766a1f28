// Package config loads service configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Text providers accepted by TEXT_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds every tunable the binaries need.
type Config struct {
	Port int

	// Admission control
	RateLimitMax      int
	RateLimitWindow   time.Duration
	TrustProxyHeaders bool

	// Upload limits
	MaxFileBytes int64

	// Text completion
	TextProvider  string
	TextModel     string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Image synthesis
	GeminiAPIKey     string
	ImageModel       string
	ImageAspectRatio string

	// Model call policy
	ModelCallTimeout time.Duration
	ModelMaxRetries  int
	ModelRPS         float64

	// Storage
	Bucket         string
	Region         string
	S3Endpoint     string
	S3UsePathStyle bool
	PublicBaseURL  string
	KeyPrefix      string
	AssetTable     string
	AssetRetention time.Duration

	// Follow-up source fetch
	FetchTimeout      time.Duration
	AllowPrivateFetch bool

	// SSM parameter names used when the API keys are not in the environment.
	SSMOpenAIKeyParam string
	SSMGeminiKeyParam string

	OriginVerifySecret string
	MetricsEnabled     bool
}

// LoadEnvFile loads KEY=VALUE pairs from path without overriding variables that
// are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("No env file found, using process environment")
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Env file loaded")
	return nil
}

// Load reads the configuration from environment variables and applies defaults.
// Secrets may still be empty here; see Validate.
func Load() *Config {
	return &Config{
		Port: getEnvInt("PORT", 3000),

		RateLimitMax:      getEnvInt("RATE_LIMIT_MAX", 15),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", true),

		MaxFileBytes: int64(getEnvInt("MAX_FILE_BYTES", 5<<20)),

		TextProvider:  strings.ToLower(getEnv("TEXT_PROVIDER", ProviderOpenAI)),
		TextModel:     os.Getenv("TEXT_MODEL"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		ImageModel:       getEnv("IMAGE_MODEL", "gemini-2.5-flash-image"),
		ImageAspectRatio: getEnv("IMAGE_ASPECT_RATIO", "16:9"),

		ModelCallTimeout: getEnvDuration("MODEL_CALL_TIMEOUT", 60*time.Second),
		ModelMaxRetries:  getEnvInt("MODEL_MAX_RETRIES", 2),
		ModelRPS:         getEnvFloat("MODEL_RPS", 0),

		Bucket:         getEnv("AWS_BUCKET_NAME", os.Getenv("ASSET_BUCKET_NAME")),
		Region:         getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
		PublicBaseURL:  strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		KeyPrefix:      strings.Trim(getEnv("ASSET_KEY_PREFIX", "generated-images"), "/"),
		AssetTable:     os.Getenv("ASSET_TABLE"),
		AssetRetention: getEnvDuration("ASSET_RETENTION", 0),

		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		AllowPrivateFetch: getEnvBool("ALLOW_PRIVATE_FETCH", false),

		SSMOpenAIKeyParam: os.Getenv("SSM_OPENAI_KEY_PARAM"),
		SSMGeminiKeyParam: os.Getenv("SSM_GEMINI_KEY_PARAM"),

		OriginVerifySecret: os.Getenv("ORIGIN_VERIFY_SECRET"),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
	}
}

// TextModelOrDefault returns the configured text model, or the provider's default.
func (c *Config) TextModelOrDefault() string {
	if c.TextModel != "" {
		return c.TextModel
	}
	if c.TextProvider == ProviderGemini {
		return "gemini-2.5-flash"
	}
	return "gpt-4o-mini"
}

// Validate reports every missing or inconsistent setting at once. Call it after
// secrets have been resolved.
func (c *Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("AWS_BUCKET_NAME is required"))
	}
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required for image synthesis"))
	}
	switch c.TextProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when TEXT_PROVIDER=openai"))
		}
	case ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("TEXT_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.TextProvider))
	}
	if c.RateLimitMax <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be positive"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("MAX_FILE_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring non-integer env value")
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring non-numeric env value")
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring non-boolean env value")
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "15m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Warn().Str("key", key).Str("value", v).Msg("Ignoring invalid duration env value")
	return fallback
}
