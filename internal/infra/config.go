package infra

import (
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	Port     string
	DBPath   string
	LockPath string
	ImageDir string

	PollInterval    time.Duration
	RunTimeout      time.Duration // 0 disables the per-job execution timeout
	MaxPendingJobs  int
	InlineImageMax  int
	DiffusionURL    string
	TranslatorURL   string
	RestoreTool     string
	RestoreToolArgs string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "8888"),
		DBPath:   getEnv("DB_PATH", "happysd.db"),
		LockPath: getEnv("LOCK_PATH", "happysd.db.lock"),
		ImageDir: os.Getenv("IMAGE_DIR"),

		PollInterval:   time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 1)),
		RunTimeout:     time.Second * time.Duration(getEnvInt("RUN_TIMEOUT_SECONDS", 0)),
		MaxPendingJobs: getEnvInt("MAX_PENDING_JOBS", 10),
		InlineImageMax: getEnvInt("INLINE_IMAGE_LIMIT_BYTES", 64*1024),
		// No default: an unset DIFFUSION_URL selects synthetic rendering,
		// which is how development machines run without a model process.
		DiffusionURL:    os.Getenv("DIFFUSION_URL"),
		TranslatorURL:   os.Getenv("TRANSLATOR_URL"),
		RestoreTool:     os.Getenv("RESTORE_TOOL"),
		RestoreToolArgs: os.Getenv("RESTORE_TOOL_ARGS"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	return cfg, nil
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
