package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// History backends supported by the service.
const (
	HistoryBackendFile     = "file"
	HistoryBackendPostgres = "postgres"
	HistoryBackendSQLite   = "sqlite"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	LogLevel      string
	Port          string
	PublicBaseURL string

	StoragePath string
	AssetRoots  []string
	StagingDir  string
	OutputsDir  string

	HistoryBackend string
	HistoryDir     string
	DatabaseURL    string
	SQLitePath     string

	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiImageModel string
	GeminiLLMModel   string

	KlingAccessKey  string
	KlingSecretKey  string
	KlingBaseURL    string
	KlingVideoModel string
	KlingVideoMode  string

	DescriptionTimeout   time.Duration
	ImageTimeout         time.Duration
	IdentityTimeout      time.Duration
	VideoPollInterval    time.Duration
	VideoTimeout         time.Duration
	MaxConcurrentJobs    int
	IdentityCheckEnabled bool
	ComparisonHeight     int

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	storagePath := getEnv("STORAGE_PATH", "./storage")

	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		LogLevel:      strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		Port:          port,
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),

		StoragePath: storagePath,
		AssetRoots:  getEnvList("ASSET_ROOTS", []string{filepath.Join(storagePath, "assets")}),
		StagingDir:  getEnv("STAGING_DIR", filepath.Join(storagePath, "inputs")),
		OutputsDir:  getEnv("OUTPUTS_DIR", filepath.Join(storagePath, "outputs")),

		HistoryBackend: strings.ToLower(getEnv("HISTORY_BACKEND", HistoryBackendFile)),
		HistoryDir:     getEnv("HISTORY_DIR", filepath.Join(storagePath, "history")),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getEnv("SQLITE_PATH", filepath.Join(storagePath, "history.db")),

		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:    os.Getenv("GEMINI_BASE_URL"),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiLLMModel:   getEnv("GEMINI_LLM_MODEL", "gemini-2.5-flash"),

		KlingAccessKey:  strings.TrimSpace(os.Getenv("KLINGAI_ACCESS_KEY")),
		KlingSecretKey:  strings.TrimSpace(os.Getenv("KLINGAI_SECRET_KEY")),
		KlingBaseURL:    getEnv("KLINGAI_BASE_URL", "https://api-singapore.klingai.com"),
		KlingVideoModel: getEnv("KLINGAI_VIDEO_MODEL", "kling-v2-5-turbo"),
		KlingVideoMode:  getEnv("KLINGAI_VIDEO_MODE", "std"),

		DescriptionTimeout:   getEnvDuration("DESCRIPTION_TIMEOUT", 60*time.Second),
		ImageTimeout:         getEnvDuration("IMAGE_TIMEOUT", 180*time.Second),
		IdentityTimeout:      getEnvDuration("IDENTITY_TIMEOUT", 45*time.Second),
		VideoPollInterval:    getEnvDuration("VIDEO_POLL_INTERVAL", 5*time.Second),
		VideoTimeout:         getEnvDuration("VIDEO_TIMEOUT", 10*time.Minute),
		MaxConcurrentJobs:    getEnvInt("MAX_CONCURRENT_JOBS", 4),
		IdentityCheckEnabled: getEnvBool("IDENTITY_CHECK_ENABLED", true),
		ComparisonHeight:     getEnvInt("COMPARISON_HEIGHT", 800),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
	}

	switch cfg.HistoryBackend {
	case HistoryBackendFile, HistoryBackendSQLite:
	case HistoryBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when HISTORY_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported HISTORY_BACKEND %q", cfg.HistoryBackend)
	}

	if cfg.MaxConcurrentJobs <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS must be positive")
	}
	if cfg.VideoPollInterval <= 0 || cfg.VideoTimeout <= 0 {
		return nil, fmt.Errorf("VIDEO_POLL_INTERVAL and VIDEO_TIMEOUT must be positive")
	}

	return cfg, nil
}

// HasKlingCredentials reports whether both KlingAI keys are configured.
func (c *Config) HasKlingCredentials() bool {
	return c.KlingAccessKey != "" && c.KlingSecretKey != ""
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

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
