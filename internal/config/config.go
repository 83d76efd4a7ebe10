// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	APIKey       string
	FrontendURL  string
	DBPath       string
	ModelDir     string
	MaxBodyBytes int64

	LLM             LLMConfig
	Classifier      ClassifierConfig
	Callback        CallbackConfig
	Stop            StopConfig
	Policy          PolicyConfig
	Sessions        SessionConfig
	RateLimit       RateLimitConfig
	Archive         ArchiveConfig
	ConversationLog ConversationLogConfig
}

// LLMConfig controls reply generation.
type LLMConfig struct {
	APIKey        string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	MinWords      int
	MaxWords      int
	HistoryWindow int
	TemplatesPath string
}

// Enabled reports whether a model key is configured.
func (c LLMConfig) Enabled() bool { return c.APIKey != "" }

// ClassifierConfig controls scam-intent classification.
type ClassifierConfig struct {
	// Threshold applies to the model-backed classifier only. The keyword
	// heuristic always requires two distinct fraud terms.
	Threshold float64
}

// CallbackConfig controls report delivery.
type CallbackConfig struct {
	URL         string
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
	// Deadline bounds a whole delivery sequence.
	Deadline time.Duration
}

// StopConfig holds the conversation stop thresholds.
type StopConfig struct {
	MinCategories   int
	MaxTurns        int
	Window          int
	MinCounterparty int
	MaxAvgWords     float64
}

// PolicyConfig tunes goal selection.
type PolicyConfig struct {
	Seed             uint64
	EarlyStallTurns  int
	EarlyStallWeight float64
	ComplaintWeight  float64
}

// SessionConfig bounds in-memory session state.
type SessionConfig struct {
	Capacity      int
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// RateLimitConfig limits requests per session.
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// ArchiveConfig configures the optional S3 report archive.
type ArchiveConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Enabled reports whether the archive is configured.
func (c ArchiveConfig) Enabled() bool { return c.Endpoint != "" }

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8000"),
		APIKey:       getEnv("HONEYPOT_API_KEY", ""),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/honeypot.db"),
		ModelDir:     getEnv("MODEL_DIR", "./models"),
		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 64<<10)),
		LLM: LLMConfig{
			APIKey:        firstNonEmpty(getEnv("GEMINI_API_KEY", ""), getEnv("LLM_API_KEY", "")),
			Model:         getEnv("LLM_MODEL", "gemini-2.5-flash"),
			Temperature:   getEnvFloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:     getEnvInt("LLM_MAX_TOKENS", 50),
			Timeout:       getEnvDuration("LLM_TIMEOUT", 8*time.Second),
			MinWords:      getEnvInt("REPLY_MIN_WORDS", 1),
			MaxWords:      getEnvInt("REPLY_MAX_WORDS", 25),
			HistoryWindow: getEnvInt("LLM_HISTORY_WINDOW", 6),
			TemplatesPath: getEnv("TEMPLATES_PATH", ""),
		},
		Classifier: ClassifierConfig{
			Threshold: getEnvFloat("SCAM_THRESHOLD", 0.5),
		},
		Callback: CallbackConfig{
			URL:         getEnv("CALLBACK_URL", "https://hackathon.guvi.in/api/updateHoneyPotFinalResult"),
			MaxAttempts: getEnvInt("CALLBACK_MAX_ATTEMPTS", 3),
			Backoff:     getEnvDuration("CALLBACK_BACKOFF", 2*time.Second),
			Timeout:     getEnvDuration("CALLBACK_TIMEOUT", 5*time.Second),
			Deadline:    getEnvDuration("CALLBACK_DEADLINE", time.Minute),
		},
		Stop: StopConfig{
			MinCategories:   getEnvInt("STOP_MIN_CATEGORIES", 2),
			MaxTurns:        getEnvInt("STOP_MAX_TURNS", 20),
			Window:          getEnvInt("STOP_DISENGAGE_WINDOW", 6),
			MinCounterparty: getEnvInt("STOP_DISENGAGE_MIN_MESSAGES", 3),
			MaxAvgWords:     getEnvFloat("STOP_DISENGAGE_MAX_AVG_WORDS", 3),
		},
		Policy: PolicyConfig{
			Seed:             uint64(getEnvInt("POLICY_SEED", 0)),
			EarlyStallTurns:  getEnvInt("POLICY_EARLY_STALL_TURNS", 2),
			EarlyStallWeight: getEnvFloat("POLICY_EARLY_STALL_WEIGHT", 6),
			ComplaintWeight:  getEnvFloat("POLICY_COMPLAINT_WEIGHT", 0.7),
		},
		Sessions: SessionConfig{
			Capacity:      getEnvInt("SESSION_CAPACITY", 10000),
			IdleTTL:       getEnvDuration("SESSION_IDLE_TTL", 2*time.Hour),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			Limit:   getEnvInt("RATE_LIMIT_PER_SESSION", 30),
			Window:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Archive: ArchiveConfig{
			Endpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
			Region:    getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			AccessKey: firstNonEmpty(getEnv("ARCHIVE_S3_ACCESS_KEY", ""), getEnv("MINIO_ROOT_USER", "")),
			SecretKey: firstNonEmpty(getEnv("ARCHIVE_S3_SECRET_KEY", ""), getEnv("MINIO_ROOT_PASSWORD", "")),
			Bucket:    getEnv("ARCHIVE_S3_BUCKET", "honeypot-reports"),
			Prefix:    getEnv("ARCHIVE_S3_PREFIX", "reports"),
			UseSSL:    getEnvBool("ARCHIVE_S3_USE_SSL", false),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.APIKey == "" {
		return fmt.Errorf("HONEYPOT_API_KEY cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be > 0")
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return fmt.Errorf("SCAM_THRESHOLD must be within [0,1]")
	}
	if c.Callback.URL == "" {
		return fmt.Errorf("CALLBACK_URL cannot be empty")
	}
	if c.Callback.MaxAttempts <= 0 {
		return fmt.Errorf("CALLBACK_MAX_ATTEMPTS must be > 0")
	}
	if c.LLM.MinWords <= 0 || c.LLM.MaxWords < c.LLM.MinWords {
		return fmt.Errorf("REPLY_MIN_WORDS and REPLY_MAX_WORDS must form a valid band")
	}
	if c.Stop.MinCategories <= 0 {
		return fmt.Errorf("STOP_MIN_CATEGORIES must be > 0")
	}
	if c.Sessions.Capacity <= 0 {
		return fmt.Errorf("SESSION_CAPACITY must be > 0")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("RATE_LIMIT_PER_SESSION and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Archive.Enabled() && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		return fmt.Errorf("ARCHIVE_S3_ACCESS_KEY and ARCHIVE_S3_SECRET_KEY are required when ARCHIVE_S3_ENDPOINT is set")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("5s") or bare seconds ("5").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
