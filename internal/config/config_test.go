package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lavrd/tiktok-dl-tg/internal/config"
	"github.com/lavrd/tiktok-dl-tg/internal/types"
)

func TestReadDefaults(t *testing.T) {
	r := require.New(t)

	// No .env file in package folder; clear what can come from environment.
	for _, key := range []string{
		"VERBOSE", "TG_BOT_TOKEN", "TG_UPDATES_TIMEOUT", "ADMIN_USERNAME", "SCRATCH_FOLDER",
		"MAX_FILE_SIZE", "DOWNLOAD_WORKERS", "ENGINE_WORKERS", "METRICS_ADDR", "CAPTION",
		"DATABASE_FILEPATH", "YTDLP_BINARY", "API_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.Read()
	r.NoError(err)
	r.False(cfg.Verbose)
	r.Equal(60, cfg.TgUpdatesTimeout)
	r.Equal("/tmp/tiktok_downloads", cfg.ScratchFolder)
	r.Equal(config.DefaultMaxFileSize, cfg.MaxFileSize)
	r.Equal(config.DefaultCaption, cfg.Caption)
	r.Equal("yt-dlp", cfg.YtDlpBinary)
	r.Equal(4, cfg.DownloadWorkers)
	r.Equal(2, cfg.EngineWorkers)
	r.Empty(cfg.MetricsAddr)

	// Token is required to run the bot.
	r.ErrorIs(cfg.Validate(), types.ErrInternal)
}

func TestRead(t *testing.T) {
	r := require.New(t)

	t.Setenv("VERBOSE", "1")
	t.Setenv("TG_BOT_TOKEN", "token")
	t.Setenv("ADMIN_USERNAME", "@themzv")
	t.Setenv("MAX_FILE_SIZE", "1024")
	t.Setenv("DOWNLOAD_WORKERS", "8")
	t.Setenv("METRICS_ADDR", ":9100")

	cfg, err := config.Read()
	r.NoError(err)
	r.True(cfg.Verbose)
	r.Equal("token", cfg.TgBotToken)
	r.Equal("themzv", cfg.AdminUsername)
	r.Equal(int64(1024), cfg.MaxFileSize)
	r.Equal(8, cfg.DownloadWorkers)
	r.Equal(":9100", cfg.MetricsAddr)
	r.NoError(cfg.Validate())
}

func TestReadBadNumber(t *testing.T) {
	r := require.New(t)

	t.Setenv("ENGINE_WORKERS", "many")
	_, err := config.Read()
	r.ErrorIs(err, types.ErrInternal)
	r.Contains(err.Error(), "ENGINE_WORKERS")
}
