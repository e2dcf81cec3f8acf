package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	QueueURL        string

	LLMProvider          string
	LLMModel             string
	LLMBaseURL           string
	LLMAPIKey            string
	EmbeddingModel       string
	LLMRequestsPerSecond float64
	LLMBurst             int
	OAuthTokenURL        string
	OAuthClientID        string
	OAuthClientSecret    string
	OAuthScopes          []string

	ClassifyRulesPath   string
	LegacyRubricsPath   string
	StepAttempts        int
	StepTimeout         time.Duration
	SessionBudget       time.Duration
	LegacyTimeout       time.Duration
	AnalysisConcurrency int

	TagIndex           string
	TagIndexSQLitePath string
	TagTopK            int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		QueueURL:        getEnv("RA_SQS_QUEUE_URL", ""),

		LLMProvider:          strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMBaseURL:           getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:            getEnv("OPENAI_API_KEY", ""),
		EmbeddingModel:       getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMRequestsPerSecond: getEnvFloat("LLM_REQUESTS_PER_SECOND", 5),
		LLMBurst:             getEnvInt("LLM_BURST", 5),
		OAuthTokenURL:        getEnv("LLM_OAUTH_TOKEN_URL", ""),
		OAuthClientID:        getEnv("LLM_OAUTH_CLIENT_ID", ""),
		OAuthClientSecret:    getEnv("LLM_OAUTH_CLIENT_SECRET", ""),
		OAuthScopes:          splitAndTrim(getEnv("LLM_OAUTH_SCOPES", "")),

		ClassifyRulesPath:   getEnv("CLASSIFY_RULES_PATH", ""),
		LegacyRubricsPath:   getEnv("LEGACY_RUBRICS_PATH", ""),
		StepAttempts:        getEnvInt("EXTRACTION_STEP_ATTEMPTS", 3),
		StepTimeout:         getEnvDuration("EXTRACTION_STEP_TIMEOUT", 30*time.Second),
		SessionBudget:       getEnvDuration("EXTRACTION_SESSION_BUDGET", 3*time.Minute),
		LegacyTimeout:       getEnvDuration("EXTRACTION_LEGACY_TIMEOUT", 60*time.Second),
		AnalysisConcurrency: getEnvInt("ANALYSIS_CONCURRENCY", 4),

		TagIndex:           normalizeTagIndex(getEnv("TAG_INDEX", "")),
		TagIndexSQLitePath: getEnv("TAG_INDEX_SQLITE_PATH", "./data/tag_index.db"),
		TagTopK:            getEnvInt("TAG_TOP_K", 3),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid number %q, using %g", key, raw, def)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

// Empty means "follow the repository backend".
func normalizeTagIndex(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "memory":
		return "memory"
	case "postgres", "pg":
		return "postgres"
	case "sqlite":
		return "sqlite"
	default:
		return ""
	}
}
