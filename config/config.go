package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Account
	EmailAddress  string
	EmailPassword string

	// IMAP
	IMAPHost            string
	IMAPPort            int
	IMAPConnectTimeout  time.Duration
	IMAPKeepaliveSec    int
	IMAPIdleRenewMin    int
	IMAPMaxMessageBytes int64

	// Database
	DatabasePath string

	// Listeners
	ListenersDir string

	// OpenAI
	OpenAIAPIKey   string
	LLMBaseURL     string
	LLMModelHaiku  string
	LLMModelSonnet string
	LLMModelOpus   string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// Sync
	SyncDefaultWindowDays int
	SyncBatchSize         int
	SyncIdleOverfetch     int

	// CORS
	AllowedOrigins []string

	// Scheduler
	SchedulerEnabled bool
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Account credentials. EMAIL_USER/EMAIL_PASS are accepted as synonyms.
		EmailAddress:  getEnv("EMAIL_ADDRESS", getEnv("EMAIL_USER", "")),
		EmailPassword: getEnv("EMAIL_APP_PASSWORD", getEnv("EMAIL_PASS", "")),

		// IMAP
		IMAPHost:            getEnv("IMAP_HOST", "imap.gmail.com"),
		IMAPPort:            getEnvInt("IMAP_PORT", 993),
		IMAPConnectTimeout:  time.Duration(getEnvInt("IMAP_CONNECT_TIMEOUT_SEC", 30)) * time.Second,
		IMAPKeepaliveSec:    getEnvInt("IMAP_KEEPALIVE_SEC", 10),
		IMAPIdleRenewMin:    getEnvInt("IMAP_IDLE_RENEW_MIN", 4),
		IMAPMaxMessageBytes: int64(getEnvInt("IMAP_MAX_MESSAGE_MB", 50)) * 1024 * 1024,

		// Database
		DatabasePath: getEnv("DATABASE_PATH", "mailflow.db"),

		// Listeners
		ListenersDir: getEnv("LISTENERS_DIR", "listeners"),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMModelHaiku:  getEnv("LLM_MODEL_HAIKU", "gpt-4o-mini"),
		LLMModelSonnet: getEnv("LLM_MODEL_SONNET", "gpt-4o"),
		LLMModelOpus:   getEnv("LLM_MODEL_OPUS", "gpt-4o"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.0),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),

		// Sync
		SyncDefaultWindowDays: getEnvInt("SYNC_DEFAULT_WINDOW_DAYS", 30),
		SyncBatchSize:         getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncIdleOverfetch:     getEnvInt("SYNC_IDLE_OVERFETCH", 5),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		// Scheduler
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
