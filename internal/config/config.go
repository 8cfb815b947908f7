package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultHTTPTimeout      = 120 * time.Second
	DefaultBatchConcurrency = 2
	DefaultBatchRPS         = 1.0
)

// Config holds process-wide settings read from the environment. API
// keys are not stored here; key resolution has its own chain in the
// keys package.
type Config struct {
	StyleDir         string
	HTTPTimeout      time.Duration
	GeminiBaseURL    string
	OpenAIBaseURL    string
	BatchConcurrency int
	BatchRPS         float64
	HistoryDisabled  bool
}

// LoadEnvFile loads a .env file from the working directory if one
// exists. Missing files are not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// Load reads the configuration from environment variables, applying
// defaults for anything unset.
func Load() *Config {
	return &Config{
		StyleDir:         getEnv("GENIMAGE_STYLE_DIR", ""),
		HTTPTimeout:      getEnvDuration("GENIMAGE_TIMEOUT", DefaultHTTPTimeout),
		GeminiBaseURL:    getEnv("GENIMAGE_BASE_URL_GEMINI", ""),
		OpenAIBaseURL:    getEnv("GENIMAGE_BASE_URL_OPENAI", ""),
		BatchConcurrency: getEnvInt("GENIMAGE_BATCH_CONCURRENCY", DefaultBatchConcurrency),
		BatchRPS:         getEnvFloat("GENIMAGE_BATCH_RPS", DefaultBatchRPS),
		HistoryDisabled:  getEnvBool("GENIMAGE_HISTORY_DISABLED", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept both "90s" and a bare number of seconds.
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
