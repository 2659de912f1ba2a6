package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lavrd/tiktok-dl-tg/internal/bot"
	"github.com/lavrd/tiktok-dl-tg/internal/metrics"
	"github.com/lavrd/tiktok-dl-tg/internal/repo"
	"github.com/lavrd/tiktok-dl-tg/internal/task"
)

const (
	cleanInterval  = 10 * time.Minute
	cleanRetention = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot (default command)",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func serveRun(_ *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// We don't need to keep files in scratch folder after restart because nobody owns them.
	if err := os.RemoveAll(cfg.ScratchFolder); err != nil {
		return fmt.Errorf("failed to delete scratch folder: %w", err)
	}
	if err := os.MkdirAll(cfg.ScratchFolder, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create scratch folder: %w", err)
	}

	db, err := repo.OpenDBAndMigrate(cfg.DatabaseFilepath, repo.ModeRWC)
	if err != nil {
		return fmt.Errorf("failed to open database and do migrations: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database connection")
		}
	}()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		server := startMetricsServer(cfg.MetricsAddr, m)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("failed to stop metrics server")
			}
		}()
	}

	tg, err := tgbotapi.NewBotAPI(cfg.TgBotToken)
	if err != nil {
		return fmt.Errorf("failed to initialize new telegram client: %w", err)
	}
	if cfg.TgBotEndpoint != "" {
		tg.SetAPIEndpoint(cfg.TgBotEndpoint)
	}
	log.Info().Str("username", tg.Self.UserName).Msg("authorized in telegram")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := newEngine(m)
	downloadPool := task.NewPool(cfg.DownloadWorkers)
	b := bot.New(&bot.Options{
		Tg:            tg,
		UsersRepo:     repo.New(db),
		Resolver:      eng.resolver,
		Pool:          downloadPool,
		Metrics:       m,
		AdminUsername: cfg.AdminUsername,
		Caption:       cfg.Caption,
		MaxFileSize:   cfg.MaxFileSize,
	})
	if err = b.SetCommands(); err != nil {
		log.Error().Err(err).Msg("failed to set bot commands")
	}
	StartJob(ctx, &CleanJob{scratchFolder: cfg.ScratchFolder, retention: cleanRetention}, cleanInterval)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.TgUpdatesTimeout
	updatesC := tg.GetUpdatesChan(u)
	// Wait for updates and clear them, we don't want to handle a large backlog of old messages.
	time.Sleep(time.Second)
	updatesC.Clear()

	handlerDoneC := make(chan struct{})
	go func() {
		defer close(handlerDoneC)
		b.HandleUpdates(ctx, updatesC)
	}()

	interruptC := make(chan os.Signal, 1)
	signal.Notify(interruptC, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	<-interruptC
	signal.Stop(interruptC)
	log.Debug().Msg("handle SIGINT, SIGQUIT, SIGTERM")

	// Stop receiving updates.
	tg.StopReceivingUpdates()
	// Stop all downloads and other routines.
	cancel()
	<-handlerDoneC
	downloadPool.Close()
	eng.Close()
	log.Info().Msg("bot has been stopped")
	return nil
}

func startMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server has started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return server
}
