package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTextModel  = "gemini-2.5-pro"
	DefaultImageModel = "gemini-2.5-flash-image"
)

type Config struct {
	TelegramToken string
	GeminiAPIKey  string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	WebAddr         string
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int

	MediaGroupDebounce time.Duration
	MaxConcurrent      int
	RequestTimeout     time.Duration
	ImageTimeout       time.Duration
	HTTPTimeout        time.Duration

	GeminiBaseURL    string
	GeminiAPIVersion string
	TextModel        string
	ImageModel       string
	ThinkingBudget   int

	DailyLimit         int
	MaxAttachments     int
	MaxAttachmentBytes int64
	HistoryLimit       int
	HistoryDBPath      string
	WorkspaceTTL       time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	UIVersion string
	ClientTZ  string
	Language  string
}

func Load() (Config, error) {
	cfg := Config{
		LogLevel:           strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:              getEnvBool("DEBUG", false),
		PreferIPv4:         getEnvBool("PREFER_IPV4", true),
		WebAddr:            getEnv("WEB_ADDR", ":8080"),
		ShutdownTimeout:    time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 30),
		MediaGroupDebounce: time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 4),
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,
		ImageTimeout:       time.Duration(getEnvInt("IMAGE_TIMEOUT_SECONDS", 120)) * time.Second,
		HTTPTimeout:        time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 300)) * time.Second,
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiAPIVersion:   getEnv("GEMINI_API_VERSION", "v1beta"),
		TextModel:          getEnv("GEMINI_TEXT_MODEL", DefaultTextModel),
		ImageModel:         getEnv("GEMINI_IMAGE_MODEL", DefaultImageModel),
		ThinkingBudget:     getEnvInt("THINKING_BUDGET", 16384),
		DailyLimit:         getEnvInt("DAILY_LIMIT", 2),
		MaxAttachments:     getEnvInt("MAX_ATTACHMENTS", 3),
		MaxAttachmentBytes: int64(getEnvInt("MAX_ATTACHMENT_MB", 5)) << 20,
		HistoryLimit:       getEnvInt("HISTORY_LIMIT", 10),
		HistoryDBPath:      getEnv("HISTORY_DB_PATH", "data/history.db"),
		WorkspaceTTL:       time.Duration(getEnvInt("WORKSPACE_TTL_MINUTES", 120)) * time.Minute,
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		UIVersion:          getEnv("UI_VERSION", "2.5.0"),
		ClientTZ:           getEnv("CLIENT_TZ", "UTC"),
		Language:           getEnv("SCRIPT_LANGUAGE", "English"),
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	// An empty key is not fatal here: every remote call reports it on its own.
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 240 * time.Second
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 120 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 300 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.ThinkingBudget < 0 {
		cfg.ThinkingBudget = 0
	}
	if cfg.DailyLimit < 0 {
		cfg.DailyLimit = 0
	}
	if cfg.MaxAttachments < 1 {
		cfg.MaxAttachments = 1
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = 5 << 20
	}
	if cfg.HistoryLimit < 1 {
		cfg.HistoryLimit = 1
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 2
	}
	if cfg.RateLimitBurst < 1 {
		cfg.RateLimitBurst = 1
	}

	return cfg, nil
}

// ValidateBot checks the settings the Telegram front-end cannot run without.
func ValidateBot(cfg Config) error {
	if cfg.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

// ValidateWeb checks the settings the HTTP front-end cannot run without.
func ValidateWeb(cfg Config) error {
	if strings.TrimSpace(cfg.WebAddr) == "" {
		return errors.New("WEB_ADDR is empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
