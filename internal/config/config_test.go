package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "", cfg.GeminiAPIKey)
	require.Equal(t, 2, cfg.DailyLimit)
	require.Equal(t, 3, cfg.MaxAttachments)
	require.Equal(t, int64(5<<20), cfg.MaxAttachmentBytes)
	require.Equal(t, 10, cfg.HistoryLimit)
	require.Equal(t, 16384, cfg.ThinkingBudget)
	require.Equal(t, DefaultTextModel, cfg.TextModel)
	require.Equal(t, DefaultImageModel, cfg.ImageModel)
	require.Equal(t, "2.5.0", cfg.UIVersion)
	require.Equal(t, "UTC", cfg.ClientTZ)
	require.Equal(t, 240*time.Second, cfg.RequestTimeout)
}

func TestLoad_OverridesAndClamps(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "  key-123  ")
	t.Setenv("DAILY_LIMIT", "7")
	t.Setenv("MAX_ATTACHMENTS", "0")
	t.Setenv("MAX_ATTACHMENT_MB", "2")
	t.Setenv("MAX_CONCURRENT", "-3")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "nope")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("LOG_LEVEL", " DEBUG ")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "key-123", cfg.GeminiAPIKey)
	require.Equal(t, 7, cfg.DailyLimit)
	require.Equal(t, 1, cfg.MaxAttachments)
	require.Equal(t, int64(2<<20), cfg.MaxAttachmentBytes)
	require.Equal(t, 1, cfg.MaxConcurrent)
	require.Equal(t, 240*time.Second, cfg.RequestTimeout)
	require.Equal(t, 0.5, cfg.RateLimitRPS)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateBot(t *testing.T) {
	require.Error(t, ValidateBot(Config{}))
	require.NoError(t, ValidateBot(Config{TelegramToken: "t"}))
}

func TestValidateWeb(t *testing.T) {
	require.Error(t, ValidateWeb(Config{WebAddr: " "}))
	require.NoError(t, ValidateWeb(Config{WebAddr: ":8080"}))
}
