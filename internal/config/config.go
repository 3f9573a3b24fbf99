package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port           string
	MaxUploadBytes int64

	// Database
	SQLiteDBPath string

	// AMQP (empty URL disables publishing; the worker sweeper still runs)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Analysis rules
	RulesFile string

	// LLM feedback
	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiModel   string
	LLMTimeout    time.Duration

	// Optional LLM-assisted analysis
	LLMClassify            bool
	LLMGeneratedThresholds bool

	// Worker
	FeedbackBatchSize     int
	FeedbackSweepInterval time.Duration

	// Report cache
	CacheSize int
	CacheTTL  time.Duration

	// Google Sheets (spreadsheet ledger source)
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	// SheetsLocalDir serves spreadsheet IDs from <dir>/<id>.csv instead of Google.
	SheetsLocalDir string

	// Logging
	LogLevel  string
	LogFormat string
}

const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/bookkeeper.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bookkeeper"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "feedback_requests"),

		RulesFile: getEnv("RULES_FILE", ""),

		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", ProviderNone)),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		LLMTimeout:    getEnvDuration("LLM_TIMEOUT", 30*time.Second),

		LLMClassify:            getEnvBool("LLM_CLASSIFY", false),
		LLMGeneratedThresholds: getEnvBool("LLM_GENERATED_THRESHOLDS", false),

		FeedbackBatchSize:     getEnvInt("FEEDBACK_BATCH_SIZE", 10),
		FeedbackSweepInterval: getEnvDuration("FEEDBACK_SWEEP_INTERVAL", 30*time.Second),

		CacheSize: getEnvInt("CACHE_SIZE", 128),
		CacheTTL:  getEnvDuration("CACHE_TTL", 15*time.Minute),

		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
		SheetsLocalDir:           getEnv("SHEETS_LOCAL_DIR", ""),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.MaxUploadBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be positive", c.MaxUploadBytes))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RulesFile != "" {
		if _, err := os.Stat(c.RulesFile); err != nil {
			errors = append(errors, fmt.Sprintf("rules file not readable: %s", c.RulesFile))
		}
	}

	// Validate LLM provider
	switch c.LLMProvider {
	case ProviderNone:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errors = append(errors, "OPENAI_API_KEY is required when LLM_PROVIDER is openai")
		}
		if c.OpenAIBaseURL != "" {
			if _, err := url.ParseRequestURI(c.OpenAIBaseURL); err != nil {
				errors = append(errors, fmt.Sprintf("invalid OpenAI base URL '%s'", c.OpenAIBaseURL))
			}
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errors = append(errors, "GEMINI_API_KEY is required when LLM_PROVIDER is gemini")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid LLM provider '%s': must be one of [none openai gemini]", c.LLMProvider))
	}

	if c.LLMProvider == ProviderNone && (c.LLMClassify || c.LLMGeneratedThresholds) {
		errors = append(errors, "LLM_CLASSIFY and LLM_GENERATED_THRESHOLDS require an LLM provider")
	}

	if c.LLMTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be at least 1 second", c.LLMTimeout))
	} else if c.LLMTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be at most 5 minutes", c.LLMTimeout))
	}

	// Validate worker configuration
	if c.FeedbackBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid feedback batch size %d: must be at least 1", c.FeedbackBatchSize))
	} else if c.FeedbackBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid feedback batch size %d: must be at most 1000", c.FeedbackBatchSize))
	}

	if c.FeedbackSweepInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid feedback sweep interval %v: must be at least 1 second", c.FeedbackSweepInterval))
	} else if c.FeedbackSweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid feedback sweep interval %v: must be at most 24 hours", c.FeedbackSweepInterval))
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SheetsEnabled reports whether spreadsheet ledgers can be read.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != "" || c.SheetsLocalDir != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
