package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Storage
	DataBackend  string
	SQLiteDBPath string
	DatabaseURL  string

	// Banking gateway proxy
	GatewayBaseURL   string
	GatewayTimeout   time.Duration
	BankListCacheTTL time.Duration

	// Categorization
	AIProvider         string
	GeminiAPIKey       string
	GeminiModel        string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string
	CategoryLanguage   string
	CategorizeBatch    int
	RateLimitPerMinute int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	RefreshInterval time.Duration

	// Google Sheets snapshot export
	GoogleSpreadsheetID string
	GoogleSnapshotSheet string
}

var (
	validBackends  = []string{"memory", "sqlite", "postgres"}
	validProviders = []string{"gemini", "openai", "none"}
	validLanguages = []string{"en", "de"}
)

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/konto.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		GatewayBaseURL:   getEnv("GATEWAY_BASE_URL", "http://localhost:3000/api"),
		GatewayTimeout:   getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
		BankListCacheTTL: getEnvDuration("BANK_LIST_CACHE_TTL", 6*time.Hour),

		AIProvider:         getEnv("AI_PROVIDER", "gemini"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:       getEnv("AI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("AI_BASE_URL", ""),
		OpenAIModel:        getEnv("AI_MODEL", "gpt-4o-mini"),
		CategoryLanguage:   getEnv("CATEGORY_LANGUAGE", "en"),
		CategorizeBatch:    getEnvInt("CATEGORIZE_BATCH_SIZE", 50),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 10),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "konto"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "categorize_transactions"),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 15*time.Minute),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSnapshotSheet: getEnv("GOOGLE_SNAPSHOT_SHEET", "Snapshots"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL '%s': scheme must be postgres or postgresql", redact(c.DatabaseURL)))
		}
	}

	if u, err := url.Parse(c.GatewayBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid gateway base URL '%s'", c.GatewayBaseURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid gateway URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	}
	if c.GatewayTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid gateway timeout %v: must be positive", c.GatewayTimeout))
	}

	if !slices.Contains(validProviders, c.AIProvider) {
		errors = append(errors, fmt.Sprintf("invalid AI provider '%s': must be one of %v", c.AIProvider, validProviders))
	}
	if c.AIProvider == "gemini" && c.GeminiAPIKey == "" {
		errors = append(errors, "GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}
	if c.AIProvider == "openai" && c.OpenAIAPIKey == "" {
		errors = append(errors, "AI_API_KEY is required when AI_PROVIDER is openai")
	}
	if !slices.Contains(validLanguages, c.CategoryLanguage) {
		errors = append(errors, fmt.Sprintf("invalid category language '%s': must be one of %v", c.CategoryLanguage, validLanguages))
	}
	if c.CategorizeBatch < 1 || c.CategorizeBatch > 200 {
		errors = append(errors, fmt.Sprintf("invalid categorize batch size %d: must be between 1 and 200", c.CategorizeBatch))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

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

	if c.RefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 1 minute", c.RefreshInterval))
	} else if c.RefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 24 hours", c.RefreshInterval))
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSnapshotSheet == "" {
		errors = append(errors, "Google snapshot sheet name is required when GOOGLE_SPREADSHEET_ID is set")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// SheetsEnabled reports whether snapshots go to Google Sheets.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
