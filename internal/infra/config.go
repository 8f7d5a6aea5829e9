package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Locale         string
	Port           string
	DatabaseURL    string
	StoragePath    string
	StorageBaseURL string
	GeoIPDBPath    string

	GeminiAPIKey   string
	GeminiBaseURL  string
	VideoModel     string
	SyntheticPolls int

	BatchMaxConcurrent   int
	BatchRateLimitCount  int
	BatchRateLimitWindow time.Duration
	BatchMaxJobs         int
	BatchTickInterval    time.Duration
	BatchPollInterval    time.Duration
	BatchMaxPollDuration time.Duration

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Capacity and timing keys must parse as integers when set.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	var errs []error
	strictInt := func(key string, fallback int) int {
		v, err := getEnvIntStrict(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Locale:         getEnv("APP_LOCALE", "en"),
		Port:           port,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:  getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		VideoModel:     getEnv("VIDEO_MODEL", "veo-2.0-generate-001"),
		SyntheticPolls: getEnvInt("SYNTHETIC_POLLS", 3),

		BatchMaxConcurrent:   strictInt("BATCH_MAX_CONCURRENT", 2),
		BatchRateLimitCount:  strictInt("BATCH_RATE_LIMIT_COUNT", 2),
		BatchRateLimitWindow: time.Second * time.Duration(strictInt("BATCH_RATE_LIMIT_WINDOW_SECONDS", 60)),
		BatchMaxJobs:         strictInt("BATCH_MAX_JOBS", 20),
		BatchTickInterval:    time.Millisecond * time.Duration(strictInt("BATCH_TICK_MILLIS", 1000)),
		BatchPollInterval:    time.Second * time.Duration(strictInt("BATCH_POLL_INTERVAL_SECONDS", 10)),
		BatchMaxPollDuration: time.Minute * time.Duration(strictInt("BATCH_MAX_POLL_MINUTES", 0)),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects limits the scheduler cannot run with.
func (c *Config) Validate() error {
	positive := map[string]int{
		"BATCH_MAX_CONCURRENT":   c.BatchMaxConcurrent,
		"BATCH_RATE_LIMIT_COUNT": c.BatchRateLimitCount,
		"BATCH_MAX_JOBS":         c.BatchMaxJobs,
	}
	for key, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, v)
		}
	}
	if c.BatchRateLimitWindow <= 0 {
		return fmt.Errorf("BATCH_RATE_LIMIT_WINDOW_SECONDS must be positive")
	}
	if c.BatchTickInterval <= 0 {
		return fmt.Errorf("BATCH_TICK_MILLIS must be positive")
	}
	if c.BatchPollInterval < 0 || c.BatchMaxPollDuration < 0 {
		return fmt.Errorf("poll durations must not be negative")
	}
	if strings.TrimSpace(c.StoragePath) == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}
	return nil
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
	}
	return fallback
}

// getEnvIntStrict is getEnvInt that reports a malformed value instead of
// falling back.
func getEnvIntStrict(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return i, nil
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
