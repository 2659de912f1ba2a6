// Package bot handles Telegram updates: commands and links to download.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lavrd/tiktok-dl-tg/internal/link"
	"github.com/lavrd/tiktok-dl-tg/internal/metrics"
	"github.com/lavrd/tiktok-dl-tg/internal/repo"
	"github.com/lavrd/tiktok-dl-tg/internal/task"
	"github.com/lavrd/tiktok-dl-tg/internal/types"
)

// Telegram is a part of *tgbotapi.BotAPI used by the bot.
type Telegram interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Resolver interface {
	Resolve(ctx context.Context, uri string, maxSize int64, onFallback func()) types.DownloadResult
}

//nolint:govet // for better reading
type Options struct {
	Tg            Telegram
	UsersRepo     repo.UsersRepository
	Resolver      Resolver
	Pool          *task.Pool
	Metrics       *metrics.Metrics
	AdminUsername string
	Caption       string
	MaxFileSize   int64
}

type Bot struct {
	opts *Options
}

func New(opts *Options) *Bot {
	return &Bot{opts: opts}
}

// SetCommands registers commands shown in Telegram menu.
func (b *Bot) SetCommands() error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Start the bot"},
		tgbotapi.BotCommand{Command: "help", Description: "How to use the bot?"},
	)
	if _, err := b.opts.Tg.Request(cfg); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	return nil
}

// HandleUpdates blocks until context is done or updates channel is closed.
// Downloads started from here live as long as the context.
func (b *Bot) HandleUpdates(ctx context.Context, updatesC <-chan tgbotapi.Update) {
	log.Info().Msg("bot has started and is waiting for updates")
	for {
		select {
		case update, ok := <-updatesC:
			if !ok {
				return
			}
			if err := b.HandleUpdate(ctx, update); err != nil {
				log.Error().Err(err).Msg("failed to handle update")
				if update.Message != nil && update.Message.Chat != nil {
					b.Reply(update.Message, textInternalError)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	message := update.Message
	// Only text messages are interesting, everything else is skipped silently.
	if message == nil || message.Chat == nil || message.Text == "" {
		return nil
	}
	if message.IsCommand() {
		handled, err := b.HandleCommand(ctx, message)
		if err != nil {
			return fmt.Errorf("failed to handle command: %w", err)
		}
		if handled {
			return nil
		}
	}
	b.HandleLink(ctx, message)
	return nil
}

// HandleCommand returns false if command is unknown.
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) (bool, error) {
	command := message.Command()
	switch command {
	case "start":
		// Channel posts have no sender, there is nobody to register.
		if message.From != nil {
			if _, err := b.opts.UsersRepo.AddOrUpdate(ctx, message.From.ID, message.From.UserName); err != nil {
				return true, fmt.Errorf("failed to add user: %w", err)
			}
		}
		b.Reply(message, textWelcome)
	case "help":
		b.Reply(message, fmt.Sprintf(textHelp, b.opts.MaxFileSize/1024/1024))
	case "stats":
		if !b.isAdmin(message.From) {
			b.Reply(message, textNoAccess)
			break
		}
		count, err := b.opts.UsersRepo.Count(ctx)
		if err != nil {
			return true, fmt.Errorf("failed to count users: %w", err)
		}
		b.Reply(message, fmt.Sprintf(textStats, count))
	default:
		return false, nil
	}
	b.opts.Metrics.ObserveCommand(command)
	return true, nil
}

func (b *Bot) isAdmin(user *tgbotapi.User) bool {
	return user != nil && b.opts.AdminUsername != "" && user.UserName == b.opts.AdminUsername
}

// HandleLink validates link and schedules download.
func (b *Bot) HandleLink(ctx context.Context, message *tgbotapi.Message) {
	req := &types.VideoRequest{URL: strings.TrimSpace(message.Text)}
	if !link.IsSupported(req.URL) {
		b.Reply(message, textInvalidLink)
		return
	}

	status, err := b.opts.Tg.Send(tgbotapi.NewMessage(message.Chat.ID, textDownloading))
	if err != nil {
		log.Error().Err(err).Msg("failed to send status message")
		return
	}
	downloadTask := task.Func(func() { b.download(ctx, message, status.MessageID, req) })
	if !b.opts.Pool.TrySubmit(downloadTask) {
		b.Edit(message.Chat.ID, status.MessageID, textBusy)
	}
}

func (b *Bot) download(ctx context.Context, message *tgbotapi.Message, statusID int, req *types.VideoRequest) {
	chatID := message.Chat.ID
	logger := log.With().
		Str("request_id", uuid.NewString()).
		Int64("chat_id", chatID).Int("message_id", message.MessageID).
		Logger()
	ctx = logger.WithContext(ctx)

	result := b.opts.Resolver.Resolve(ctx, req.URL, b.opts.MaxFileSize, func() {
		b.Edit(chatID, statusID, textAlternative)
	})
	if !result.OK() {
		logger.Warn().Str("reason", string(result.Reason)).Msg("failed to download video")
		b.Edit(chatID, statusID, textDownloadFailed)
		return
	}
	// File must be removed whatever happens with upload.
	defer removeFile(logger, result.FilePath)

	logger = logger.With().
		Str("file_path", result.FilePath).Int64("file_size", result.SizeBytes).
		Str("strategy", string(result.Strategy)).
		Logger()
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(result.FilePath))
	video.Caption = b.opts.Caption
	video.ReplyToMessageID = message.MessageID
	video.SupportsStreaming = true
	logger.Info().Msg("reply video to chat")
	if _, err := b.opts.Tg.Send(video); err != nil {
		logger.Error().Err(err).Msg("failed to send video")
		b.Edit(chatID, statusID, textDownloadFailed)
		return
	}
	logger.Info().Msg("video sent to chat successfully")
	b.Delete(chatID, statusID)
}

func removeFile(logger zerolog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error().Err(err).Str("path", path).Msg("failed to remove file")
	}
}

func (b *Bot) Reply(message *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyToMessageID = message.MessageID
	msg.DisableWebPagePreview = true
	if _, err := b.opts.Tg.Send(msg); err != nil {
		log.Error().Err(err).Msg("failed to send message to user")
	}
}

func (b *Bot) Edit(chatID int64, messageID int, text string) {
	if _, err := b.opts.Tg.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		log.Error().Err(err).Msg("failed to edit message")
	}
}

func (b *Bot) Delete(chatID int64, messageID int) {
	if _, err := b.opts.Tg.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		log.Error().Err(err).Msg("failed to delete message")
	}
}
