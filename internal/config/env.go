package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/markdave123-py/Indexa/internal/core"
)

const (
	BackendAzure    = "azure"
	BackendPgvector = "pgvector"

	PolicyPerJob = "per-job"
	PolicyShared = "shared"

	ProviderGemini      = "gemini"
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure-openai"
)

type Config struct {
	Port      string `validate:"required,numeric"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	SearchBackend    string `validate:"oneof=azure pgvector"`
	SearchEndpoint   string `validate:"required_if=SearchBackend azure"`
	SearchAPIKey     string `validate:"required_if=SearchBackend azure"`
	SearchAPIVersion string `validate:"required"`
	DatabaseURL      string `validate:"required_if=SearchBackend pgvector"`

	IndexPolicy string `validate:"oneof=per-job shared"`
	IndexName   string `validate:"required_if=IndexPolicy shared"`
	IndexPrefix string `validate:"required"`

	EmbedProvider      string  `validate:"oneof=gemini openai azure-openai"`
	EmbedEndpoint      string  `validate:"required_if=EmbedProvider azure-openai"`
	EmbedAPIKey        string  `validate:"required"`
	EmbedModel         string  `validate:"required"`
	EmbedDim           int     `validate:"gt=0"`
	EmbedBatchSize     int     `validate:"min=1"`
	EmbedMaxInputChars int     `validate:"min=0"`
	EmbedRPS           float64 `validate:"gte=0"`
	EmbedBurst         int     `validate:"min=1"`
	EmbedTitles        bool

	ChunkSize    int    `validate:"gt=0"`
	ChunkOverlap int    `validate:"gte=0,ltfield=ChunkSize"`
	ChunkMode    string `validate:"oneof=char token"`

	IndexBatchSize     int `validate:"min=1,max=1000"`
	IngestConcurrency  int `validate:"min=1"`
	RetryMaxAttempts   int `validate:"min=1"`
	IndexRetryAttempts int `validate:"min=1"`

	RetryInitialBackoff time.Duration `validate:"gt=0"`
	RetryMaxBackoff     time.Duration `validate:"gtefield=RetryInitialBackoff"`
	ExtractTimeout      time.Duration `validate:"gt=0"`
	EmbedTimeout        time.Duration `validate:"gt=0"`
	IndexTimeout        time.Duration `validate:"gt=0"`

	AwsAccessKey    string
	AwsSecretKey    string
	AwsRegion       string
	BucketName      string
	S3Endpoint      string `validate:"omitempty,url"`
	KeepStagedFiles bool
	MaxUploadBytes  int64 `validate:"gt=0"`

	JWTSecret           string
	APIClientID         string
	APIClientSecretHash string
	CORSOrigins         []string
}

// LoadConfig loads the environment variables (and a .env file when present) and validates them.
func LoadConfig() (*Config, error) {

	_ = godotenv.Load()

	provider := strings.ToLower(getEnv("EMBED_PROVIDER", ProviderGemini))
	defaults := providerDefaults[provider]

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		SearchBackend:    strings.ToLower(getEnv("SEARCH_BACKEND", BackendAzure)),
		SearchEndpoint:   getEnv("SEARCH_ENDPOINT", ""),
		SearchAPIKey:     getEnv("SEARCH_API_KEY", ""),
		SearchAPIVersion: getEnv("SEARCH_API_VERSION", "2024-07-01"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),

		IndexPolicy: strings.ToLower(getEnv("INDEX_POLICY", PolicyPerJob)),
		IndexName:   getEnv("INDEX_NAME", ""),
		IndexPrefix: getEnv("INDEX_PREFIX", "indexa"),

		EmbedProvider:      provider,
		EmbedEndpoint:      getEnv("EMBED_ENDPOINT", ""),
		EmbedAPIKey:        getEnv("EMBED_API_KEY", getEnv(defaults.keyEnv, "")),
		EmbedModel:         getEnv("EMBED_MODEL", defaults.model),
		EmbedDim:           getEnvInt("EMBED_DIM", defaults.dim),
		EmbedBatchSize:     getEnvInt("EMBED_BATCH_SIZE", 16),
		EmbedMaxInputChars: getEnvInt("EMBED_MAX_INPUT_CHARS", 8000),
		EmbedRPS:           getEnvFloat("EMBED_RPS", 5),
		EmbedBurst:         getEnvInt("EMBED_BURST", 5),
		EmbedTitles:        getEnvBool("EMBED_TITLES", false),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 2000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		ChunkMode:    strings.ToLower(getEnv("CHUNK_MODE", "char")),

		IndexBatchSize:     getEnvInt("INDEX_BATCH_SIZE", 100),
		IngestConcurrency:  getEnvInt("INGEST_CONCURRENCY", 4),
		RetryMaxAttempts:   getEnvInt("RETRY_MAX_ATTEMPTS", 4),
		IndexRetryAttempts: getEnvInt("INDEX_RETRY_ATTEMPTS", 2),

		RetryInitialBackoff: getEnvDuration("RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
		RetryMaxBackoff:     getEnvDuration("RETRY_MAX_BACKOFF", 10*time.Second),
		ExtractTimeout:      getEnvDuration("EXTRACT_TIMEOUT", 2*time.Minute),
		EmbedTimeout:        getEnvDuration("EMBED_TIMEOUT", 30*time.Second),
		IndexTimeout:        getEnvDuration("INDEX_TIMEOUT", 30*time.Second),

		AwsAccessKey:    getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:    getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:       getEnv("AWS_REGION", "us-east-2"),
		BucketName:      getEnv("BUCKET_NAME", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		KeepStagedFiles: getEnvBool("KEEP_STAGED_FILES", false),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_BYTES", 64<<20)),

		JWTSecret:           getEnv("JWT_SECRET", ""),
		APIClientID:         getEnv("API_CLIENT_ID", ""),
		APIClientSecretHash: getEnv("API_CLIENT_SECRET_HASH", ""),
		CORSOrigins:         getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, err)
	}

	return cfg, nil
}

// embeddingDefaults are the model, vector size and provider-specific key
// variable used when EMBED_MODEL, EMBED_DIM or EMBED_API_KEY are unset.
type embeddingDefaults struct {
	model  string
	dim    int
	keyEnv string
}

var providerDefaults = map[string]embeddingDefaults{
	ProviderGemini:      {model: "gemini-embedding-001", dim: 3072, keyEnv: "GEMINI_API_KEY"},
	ProviderOpenAI:      {model: "text-embedding-ada-002", dim: 1536, keyEnv: "OPENAI_API_KEY"},
	ProviderAzureOpenAI: {model: "text-embedding-ada-002", dim: 1536, keyEnv: "AZURE_OPENAI_API_KEY"},
}

// StagingEnabled reports whether uploads are staged to S3 before extraction.
func (c *Config) StagingEnabled() bool {
	return c.BucketName != "" && c.AwsAccessKey != "" && c.AwsSecretKey != ""
}

// AuthEnabled reports whether the API routes require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
