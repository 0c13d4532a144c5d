// Package config loads casepilot's runtime configuration. The API and
// worker processes share the same struct and the same env-first loading
// convention the teacher's services/otc-gateway uses (required variables
// fail fast, optional ones carry sane defaults).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration for any casepilot process.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	LogFile     string

	BlobRoot string // filesystem root for the content-addressed blob store

	OTLPEndpoint string
	OTLPInsecure bool
	OTLPHeaders  map[string]string
	Metrics      bool
	Traces       bool

	MaxUploadFileBytes int64
	MaxUploadCaseBytes int64

	JobMaxAttempts      int
	JobBackoffBase      time.Duration
	JobBackoffFactor    float64
	JobPollInterval     time.Duration
	HardFilterMaxSkip   int
	ConversationWindow  int
	OCRTimeout          time.Duration
	LLMTimeout          time.Duration
	EnricherTimeout     time.Duration
	EligibilitySerial   bool
	RateLimitPerMinute  map[string]int
	WhatsAppGatewayURL  string
	LLMProviderBaseURL  string
	LLMProviderAPIKey   string
	GSTINProviderURL    string
	GSTINProviderAPIKey string
	BankAnalyzerURL     string
	BankAnalyzerAPIKey  string
	OCREngineURL        string
	OCREngineAPIKey     string

	ExportDir       string
	ExportRunHour   int
	ExportRunMinute int

	JWTRoleClaim string
}

// FromEnv loads configuration from the process environment. Required
// variables that are missing produce a descriptive error instead of a
// zero-valued, silently-wrong config.
func FromEnv() (*Config, error) {
	dbURL := os.Getenv("CASEPILOT_DB_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("CASEPILOT_DB_URL is required")
	}
	blobRoot := getEnvDefault("CASEPILOT_BLOB_ROOT", "./casepilot-data/blobs")

	cfg := &Config{
		Port:                normalizePort(getEnvDefault("CASEPILOT_PORT", "8080")),
		Env:                 strings.TrimSpace(os.Getenv("CASEPILOT_ENV")),
		DatabaseURL:         dbURL,
		LogFile:             strings.TrimSpace(os.Getenv("CASEPILOT_LOG_FILE")),
		BlobRoot:            blobRoot,
		OTLPEndpoint:        strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPInsecure:        parseBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTLPHeaders:         parseHeaderEnv("OTEL_EXPORTER_OTLP_HEADERS"),
		Metrics:             parseBoolEnv("CASEPILOT_OTEL_METRICS", true),
		Traces:              parseBoolEnv("CASEPILOT_OTEL_TRACES", true),
		MaxUploadFileBytes:  parseInt64Env("CASEPILOT_MAX_FILE_BYTES", 25*1024*1024),
		MaxUploadCaseBytes:  parseInt64Env("CASEPILOT_MAX_CASE_BYTES", 100*1024*1024),
		JobMaxAttempts:      parseIntEnv("CASEPILOT_JOB_MAX_ATTEMPTS", 3),
		JobBackoffBase:      time.Duration(parseIntEnv("CASEPILOT_JOB_BACKOFF_BASE_SECONDS", 10)) * time.Second,
		JobBackoffFactor:    parseFloatEnv("CASEPILOT_JOB_BACKOFF_FACTOR", 2.0),
		JobPollInterval:     time.Duration(parseIntEnv("CASEPILOT_JOB_POLL_INTERVAL_MS", 500)) * time.Millisecond,
		HardFilterMaxSkip:   parseIntEnv("CASEPILOT_ELIGIBILITY_MAX_SKIPPED_FILTERS", 2),
		ConversationWindow:  parseIntEnv("CASEPILOT_COPILOT_MEMORY_WINDOW", 5),
		OCRTimeout:          time.Duration(parseIntEnv("CASEPILOT_OCR_TIMEOUT_SECONDS", 120)) * time.Second,
		LLMTimeout:          time.Duration(parseIntEnv("CASEPILOT_LLM_TIMEOUT_SECONDS", 30)) * time.Second,
		EnricherTimeout:     time.Duration(parseIntEnv("CASEPILOT_ENRICHER_TIMEOUT_SECONDS", 15)) * time.Second,
		EligibilitySerial:   parseBoolEnv("CASEPILOT_ELIGIBILITY_SERIALIZE", true),
		RateLimitPerMinute:  parseRateLimitEnv("CASEPILOT_RATE_LIMIT_PER_MINUTE"),
		WhatsAppGatewayURL:  strings.TrimSpace(os.Getenv("CASEPILOT_WHATSAPP_GATEWAY_URL")),
		LLMProviderBaseURL:  strings.TrimSpace(os.Getenv("CASEPILOT_LLM_BASE_URL")),
		LLMProviderAPIKey:   strings.TrimSpace(os.Getenv("CASEPILOT_LLM_API_KEY")),
		GSTINProviderURL:    strings.TrimSpace(os.Getenv("CASEPILOT_GSTIN_BASE_URL")),
		GSTINProviderAPIKey: strings.TrimSpace(os.Getenv("CASEPILOT_GSTIN_API_KEY")),
		BankAnalyzerURL:     strings.TrimSpace(os.Getenv("CASEPILOT_BANK_ANALYZER_URL")),
		BankAnalyzerAPIKey:  strings.TrimSpace(os.Getenv("CASEPILOT_BANK_ANALYZER_API_KEY")),
		OCREngineURL:        strings.TrimSpace(os.Getenv("CASEPILOT_OCR_BASE_URL")),
		OCREngineAPIKey:     strings.TrimSpace(os.Getenv("CASEPILOT_OCR_API_KEY")),
		ExportDir:           getEnvDefault("CASEPILOT_EXPORT_DIR", "./casepilot-data/export"),
		ExportRunHour:       parseIntEnv("CASEPILOT_EXPORT_RUN_HOUR", 2),
		ExportRunMinute:     parseIntEnv("CASEPILOT_EXPORT_RUN_MINUTE", 0),
		JWTRoleClaim:        getEnvDefault("CASEPILOT_JWT_ROLE_CLAIM", "role"),
	}
	if cfg.JobMaxAttempts <= 0 {
		cfg.JobMaxAttempts = 3
	}
	if cfg.HardFilterMaxSkip < 0 {
		cfg.HardFilterMaxSkip = 2
	}
	if cfg.ConversationWindow <= 0 {
		cfg.ConversationWindow = 5
	}
	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func normalizePort(port string) string {
	if port == "" {
		return "8080"
	}
	if len(port) > 0 && port[0] == ':' {
		return port[1:]
	}
	return port
}

func parseIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt64Env(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBoolEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseHeaderEnv(key string) map[string]string {
	raw := strings.TrimSpace(os.Getenv(key))
	headers := map[string]string{}
	if raw == "" {
		return headers
	}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers
}

func parseRateLimitEnv(key string) map[string]int {
	raw := strings.TrimSpace(os.Getenv(key))
	limits := map[string]int{}
	if raw == "" {
		return limits
	}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		limits[strings.TrimSpace(k)] = n
	}
	return limits
}
