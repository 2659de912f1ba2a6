package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lavrd/tiktok-dl-tg/internal/extract"
	"github.com/lavrd/tiktok-dl-tg/internal/types"
)

const (
	DefaultMaxFileSize int64 = 50 * 1024 * 1024 // 50mb, telegram bot api upload limit
	DefaultCaption           = "🚀 Downloaded with @tiktoksaveooffbot\nUse it and share with friends"
)

//nolint:govet // disable field aligment for better reading
type Config struct {
	Verbose          bool
	TgBotToken       string
	TgBotEndpoint    string
	TgUpdatesTimeout int
	AdminUsername    string
	DatabaseFilepath string
	ScratchFolder    string
	MaxFileSize      int64
	Caption          string
	YtDlpBinary      string
	APIEndpoint      string
	DownloadWorkers  int
	EngineWorkers    int
	MetricsAddr      string
}

// Read reads config from environment. Variables from .env file are used
// only when they are not set in environment already.
func Read() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var err error
	cfg := &Config{}
	cfg.Verbose = os.Getenv("VERBOSE") == "1"
	cfg.TgBotToken = os.Getenv("TG_BOT_TOKEN")
	cfg.TgBotEndpoint = os.Getenv("TG_BOT_ENDPOINT")
	if cfg.TgUpdatesTimeout, err = readInt("TG_UPDATES_TIMEOUT", 60); err != nil {
		return nil, err
	}
	// Username is compared without leading @.
	cfg.AdminUsername = strings.TrimPrefix(os.Getenv("ADMIN_USERNAME"), "@")
	cfg.DatabaseFilepath = readString("DATABASE_FILEPATH", "tiktok_dl_tg.db")
	cfg.ScratchFolder = readString("SCRATCH_FOLDER", "/tmp/tiktok_downloads")
	maxFileSize, err := readInt("MAX_FILE_SIZE", int(DefaultMaxFileSize))
	if err != nil {
		return nil, err
	}
	cfg.MaxFileSize = int64(maxFileSize)
	cfg.Caption = readString("CAPTION", DefaultCaption)
	cfg.YtDlpBinary = readString("YTDLP_BINARY", extract.DefaultYtDlpBinary)
	cfg.APIEndpoint = readString("API_ENDPOINT", extract.DefaultAPIEndpoint)
	if cfg.DownloadWorkers, err = readInt("DOWNLOAD_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.EngineWorkers, err = readInt("ENGINE_WORKERS", 2); err != nil {
		return nil, err
	}
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	return cfg, nil
}

// Validate checks things which are required only to run the bot.
func (c *Config) Validate() error {
	if c.TgBotToken == "" {
		return fmt.Errorf("TG_BOT_TOKEN env is required: %w", types.ErrInternal)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE env must be positive: %w", types.ErrInternal)
	}
	if c.DownloadWorkers <= 0 || c.EngineWorkers <= 0 {
		return fmt.Errorf("workers number must be positive: %w", types.ErrInternal)
	}
	return nil
}

func readString(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

func readInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s env: %w", key, types.ErrInternal)
	}
	return value, nil
}
