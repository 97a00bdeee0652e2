// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. The server and the evaluator
// read the same environment; each uses the sections it needs.
type Config struct {
	Port               string
	GRPCAddr           string // evaluation sink listen address
	EvaluatorAddr      string // empty disables dispatch
	FrontendURL        string
	LogLevel           slog.Level
	DispatchTimeout    time.Duration
	RateLimitPerMinute int

	Store      StoreConfig
	LLM        LLMConfig
	Interview  InterviewConfig
	Transcript TranscriptConfig
	Evaluator  EvaluatorConfig
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Backend   string // sqlite, badger or memory
	DBPath    string
	BadgerDir string
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// InterviewConfig tunes the session engine.
type InterviewConfig struct {
	QuestionsPerSession int
	ReportDeadline      time.Duration
	SessionTTL          time.Duration
}

// TranscriptConfig controls NDJSON transcript logging.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// EvaluatorConfig is read by the evaluator process.
type EvaluatorConfig struct {
	ListenAddr  string
	SinkAddr    string
	MetricsAddr string // empty disables the metrics listener
	Workers     int
	QueueSize   int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		GRPCAddr:           getEnv("GRPC_ADDR", ":50061"),
		EvaluatorAddr:      getEnv("EVALUATOR_ADDR", ""),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		LogLevel:           getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		DispatchTimeout:    getEnvDuration("DISPATCH_TIMEOUT", 5*time.Second),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		Store: StoreConfig{
			Backend:   strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
			DBPath:    getEnv("DB_PATH", "./data/coach.db"),
			BadgerDir: getEnv("BADGER_DIR", "./data/badger"),
		},
		LLM: LLMConfig{
			BaseURL: getEnv("LLM_BASE_URL", "https://api.asi1.ai/v1"),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Model:   getEnv("LLM_MODEL", "asi1-mini"),
			Timeout: getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		},
		Interview: InterviewConfig{
			QuestionsPerSession: getEnvInt("QUESTIONS_PER_SESSION", 5),
			ReportDeadline:      getEnvDuration("REPORT_DEADLINE", 2*time.Minute),
			SessionTTL:          getEnvDuration("SESSION_TTL", 24*time.Hour),
		},
		Transcript: TranscriptConfig{
			Enabled:   getEnvBool("TRANSCRIPT_ENABLED", false),
			Dir:       getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
			QueueSize: getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000),
		},
		Evaluator: EvaluatorConfig{
			ListenAddr:  getEnv("EVALUATOR_LISTEN_ADDR", ":50051"),
			SinkAddr:    getEnv("SINK_ADDR", "localhost:50061"),
			MetricsAddr: getEnv("EVALUATOR_METRICS_ADDR", ":9091"),
			Workers:     getEnvInt("SCORER_WORKERS", 4),
			QueueSize:   getEnvInt("SCORER_QUEUE_SIZE", 64),
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
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty with the sqlite backend")
		}
	case "badger", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be sqlite, badger or memory, got %q", c.Store.Backend)
	}
	if c.Interview.QuestionsPerSession <= 0 {
		return fmt.Errorf("QUESTIONS_PER_SESSION must be > 0")
	}
	if c.Interview.ReportDeadline <= 0 {
		return fmt.Errorf("REPORT_DEADLINE must be > 0")
	}
	if c.Interview.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL cannot be negative")
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be > 0")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty when transcripts are enabled")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	if c.Evaluator.Workers <= 0 {
		return fmt.Errorf("SCORER_WORKERS must be > 0")
	}
	if c.Evaluator.QueueSize <= 0 {
		return fmt.Errorf("SCORER_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS and websocket origin allowlist.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

// DispatchEnabled reports whether an evaluator address is configured.
func (c *Config) DispatchEnabled() bool {
	return c.EvaluatorAddr != ""
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return lvl
}
