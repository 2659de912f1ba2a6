package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lavrd/tiktok-dl-tg/internal/config"
	"github.com/lavrd/tiktok-dl-tg/internal/extract"
	"github.com/lavrd/tiktok-dl-tg/internal/metrics"
	"github.com/lavrd/tiktok-dl-tg/internal/resolver"
	"github.com/lavrd/tiktok-dl-tg/internal/task"
)

// cfg is read before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:               "tiktok-dl-tg",
	Short:             "Telegram bot which downloads TikTok videos without watermark",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              serveRun,
}

func main() {
	rootCmd.AddCommand(serveCmd, resolveCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(_ *cobra.Command, _ []string) error {
	log.Logger = log.
		Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Caller().Logger().
		Level(zerolog.InfoLevel)
	// Code which takes logger from context without one gets the global logger.
	zerolog.DefaultContextLogger = &log.Logger

	var err error
	cfg, err = config.Read()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if cfg.Verbose {
		log.Logger = log.Level(zerolog.TraceLevel)
	}
	return nil
}

// engine is everything needed to resolve links.
type engine struct {
	resolver *resolver.Resolver
	pool     *task.Pool
}

func newEngine(m *metrics.Metrics) *engine {
	pool := task.NewPool(cfg.EngineWorkers)
	return &engine{
		pool: pool,
		resolver: resolver.New(&resolver.Options{
			Primary:       extract.NewYtDlp(cfg.YtDlpBinary, cfg.ScratchFolder, pool),
			Fallback:      extract.NewAPI(cfg.APIEndpoint, extract.NewHTTPClient()),
			ScratchFolder: cfg.ScratchFolder,
			Metrics:       m,
		}),
	}
}

func (e *engine) Close() {
	e.pool.Close()
}
