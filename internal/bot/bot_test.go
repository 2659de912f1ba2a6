package bot_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/lavrd/tiktok-dl-tg/internal/bot"
	"github.com/lavrd/tiktok-dl-tg/internal/extract"
	"github.com/lavrd/tiktok-dl-tg/internal/repo"
	"github.com/lavrd/tiktok-dl-tg/internal/resolver"
	"github.com/lavrd/tiktok-dl-tg/internal/task"
	"github.com/lavrd/tiktok-dl-tg/internal/types"
)

const (
	chatID    int64 = 249191443
	admin           = "themzv"
	caption         = "caption"
	videoLink       = "https://www.tiktok.com/@user/video/1234567890"
)

type fakeTelegram struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	lastID   int
	// Fail sending videos.
	videoErr error
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if _, ok := c.(tgbotapi.VideoConfig); ok && f.videoErr != nil {
		return tgbotapi.Message{}, f.videoErr
	}
	f.lastID++
	return tgbotapi.Message{MessageID: f.lastID}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, 0, len(f.sent))
	for _, c := range f.sent {
		switch msg := c.(type) {
		case tgbotapi.MessageConfig:
			texts = append(texts, msg.Text)
		case tgbotapi.EditMessageTextConfig:
			texts = append(texts, msg.Text)
		}
	}
	return texts
}

func (f *fakeTelegram) videos() []tgbotapi.VideoConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var videos []tgbotapi.VideoConfig
	for _, c := range f.sent {
		if video, ok := c.(tgbotapi.VideoConfig); ok {
			videos = append(videos, video)
		}
	}
	return videos
}

// fakeResolver returns file with content or failure.
type fakeResolver struct {
	mu      sync.Mutex
	scratch string
	fail    bool
	calls   int
	blockC  chan struct{}
}

func (f *fakeResolver) Resolve(_ context.Context, _ string, _ int64, _ func()) types.DownloadResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.blockC != nil {
		<-f.blockC
	}
	if f.fail {
		return types.Failure(types.NoResultFromAnyStrategyReason)
	}
	path := filepath.Join(f.scratch, "7123.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o600); err != nil {
		panic(err)
	}
	return types.Success(path, 5, types.YtDlpStrategy)
}

type env struct {
	tg       *fakeTelegram
	resolver *fakeResolver
	pool     *task.Pool
	bot      *bot.Bot
	scratch  string
}

func newEnv(t *testing.T, res bot.Resolver, workers int) *env {
	t.Helper()
	db, err := repo.OpenDBAndMigrate(t.Name(), repo.ModeMemory)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	})
	e := &env{
		tg:      &fakeTelegram{},
		pool:    task.NewPool(workers),
		scratch: t.TempDir(),
	}
	if res == nil {
		e.resolver = &fakeResolver{scratch: e.scratch}
		res = e.resolver
	}
	e.bot = bot.New(&bot.Options{
		Tg:            e.tg,
		UsersRepo:     repo.New(db),
		Resolver:      res,
		Pool:          e.pool,
		AdminUsername: admin,
		Caption:       caption,
		MaxFileSize:   50 * 1024 * 1024,
	})
	return e
}

func textUpdate(username, text string) tgbotapi.Update {
	message := &tgbotapi.Message{
		MessageID: 100,
		From:      &tgbotapi.User{ID: chatID, UserName: username},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		length := len(text)
		if i := strings.Index(text, " "); i != -1 {
			length = i
		}
		message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	}
	return tgbotapi.Update{Message: message}
}

func TestCommands(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	e := newEnv(t, nil, 1)
	defer e.pool.Close()

	r.NoError(e.bot.HandleUpdate(ctx, textUpdate("user", "/start")))
	r.NoError(e.bot.HandleUpdate(ctx, textUpdate("user", "/start")))
	r.NoError(e.bot.HandleUpdate(ctx, textUpdate("", "/start")))
	r.NoError(e.bot.HandleUpdate(ctx, textUpdate("user", "/help")))
	r.NoError(e.bot.HandleUpdate(ctx, textUpdate("user", "/stats")))
	r.NoError(e.bot.HandleUpdate(ctx, textUpdate(admin, "/stats")))

	texts := e.tg.texts()
	r.Len(texts, 6)
	r.Contains(texts[0], "Hi!")
	r.Contains(texts[3], "Maximum video size: 50 MB")
	r.Contains(texts[4], "don't have access")
	// The same user pressed start several times.
	r.Contains(texts[5], "Total users: 1")
	r.Zero(e.resolver.calls)
}

func TestStartWithoutSender(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	e := newEnv(t, nil, 1)
	defer e.pool.Close()

	update := textUpdate("", "/start")
	update.Message.From = nil
	r.NoError(e.bot.HandleUpdate(ctx, update))
	r.NoError(e.bot.HandleUpdate(ctx, textUpdate(admin, "/stats")))

	texts := e.tg.texts()
	r.Len(texts, 2)
	r.Contains(texts[0], "Hi!")
	r.Contains(texts[1], "Total users: 0")
}

func TestInvalidLink(t *testing.T) {
	r := require.New(t)

	e := newEnv(t, nil, 1)
	for _, text := range []string{"https://example.com/video", "hello", "/unknown"} {
		r.NoError(e.bot.HandleUpdate(context.Background(), textUpdate("user", text)))
	}
	e.pool.Close()

	texts := e.tg.texts()
	r.Len(texts, 3)
	for _, text := range texts {
		r.Contains(text, "correct link to TikTok video")
	}
	r.Zero(e.resolver.calls)
}

func TestSkipNonText(t *testing.T) {
	r := require.New(t)

	e := newEnv(t, nil, 1)
	r.NoError(e.bot.HandleUpdate(context.Background(), tgbotapi.Update{}))
	r.NoError(e.bot.HandleUpdate(context.Background(), textUpdate("user", "")))
	e.pool.Close()
	r.Empty(e.tg.sent)
}

func TestDownload(t *testing.T) {
	r := require.New(t)

	e := newEnv(t, nil, 1)
	// Spaces around link are trimmed by the bot.
	r.NoError(e.bot.HandleUpdate(context.Background(), textUpdate("user", "  "+videoLink+"\n")))
	e.pool.Close()

	r.Equal(1, e.resolver.calls)
	videos := e.tg.videos()
	r.Len(videos, 1)
	r.Equal(caption, videos[0].Caption)
	r.Equal(chatID, videos[0].ChatID)
	r.Equal(100, videos[0].ReplyToMessageID)
	r.Equal(tgbotapi.FilePath(filepath.Join(e.scratch, "7123.mp4")), videos[0].File)

	// Status message is deleted after upload.
	r.Len(e.tg.requests, 1)
	deleteMsg, ok := e.tg.requests[0].(tgbotapi.DeleteMessageConfig)
	r.True(ok)
	r.Equal(1, deleteMsg.MessageID)

	// Scratch file is removed.
	entries, err := os.ReadDir(e.scratch)
	r.NoError(err)
	r.Empty(entries)
}

func TestDownloadFailure(t *testing.T) {
	r := require.New(t)

	e := newEnv(t, nil, 1)
	e.resolver.fail = true
	r.NoError(e.bot.HandleUpdate(context.Background(), textUpdate("user", videoLink)))
	e.pool.Close()

	texts := e.tg.texts()
	r.Equal([]string{
		"⏳ Downloading video, please wait...",
		"❌ Unfortunately, this video could not be downloaded. Try another link.",
	}, texts)
	r.Empty(e.tg.videos())
}

func TestUploadFailure(t *testing.T) {
	r := require.New(t)

	e := newEnv(t, nil, 1)
	e.tg.videoErr = errors.New("request entity too large")
	r.NoError(e.bot.HandleUpdate(context.Background(), textUpdate("user", videoLink)))
	e.pool.Close()

	texts := e.tg.texts()
	r.Contains(texts[len(texts)-1], "could not be downloaded")
	entries, err := os.ReadDir(e.scratch)
	r.NoError(err)
	r.Empty(entries)
}

func TestBusy(t *testing.T) {
	r := require.New(t)

	e := newEnv(t, nil, 1)
	e.resolver.blockC = make(chan struct{})
	r.NoError(e.bot.HandleUpdate(context.Background(), textUpdate("user", videoLink)))
	// Wait until the only worker takes the first download.
	r.Eventually(func() bool {
		e.resolver.mu.Lock()
		defer e.resolver.mu.Unlock()
		return e.resolver.calls == 1
	}, time.Second, 10*time.Millisecond)

	r.NoError(e.bot.HandleUpdate(context.Background(), textUpdate("user", videoLink)))
	close(e.resolver.blockC)
	e.pool.Close()

	r.Contains(e.tg.texts(), "⏳ All workers are busy, try again later.")
	r.Len(e.tg.videos(), 1)
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string) (*extract.Media, error) {
	return nil, types.ErrNoResult
}

type bytesExtractor struct{}

func (bytesExtractor) Fetch(context.Context, string) ([]byte, error) {
	return []byte("api video"), nil
}

func TestDownloadFallbackStatus(t *testing.T) {
	r := require.New(t)

	scratch := t.TempDir()
	res := resolver.New(&resolver.Options{
		Primary:       failingExtractor{},
		Fallback:      bytesExtractor{},
		ScratchFolder: scratch,
	})
	e := newEnv(t, res, 1)
	r.NoError(e.bot.HandleUpdate(context.Background(), textUpdate("user", videoLink)))
	e.pool.Close()

	r.Equal([]string{
		"⏳ Downloading video, please wait...",
		"⏳ Trying alternative method...",
	}, e.tg.texts())
	r.Len(e.tg.videos(), 1)
	entries, err := os.ReadDir(scratch)
	r.NoError(err)
	r.Empty(entries)
}

func TestHandleUpdates(t *testing.T) {
	r := require.New(t)

	e := newEnv(t, nil, 1)
	updatesC := make(chan tgbotapi.Update, 2)
	updatesC <- textUpdate("user", "/start")
	updatesC <- textUpdate("user", "/help")
	close(updatesC)

	// Returns when channel is closed.
	e.bot.HandleUpdates(context.Background(), updatesC)
	e.pool.Close()
	r.Len(e.tg.texts(), 2)
}

func TestSetCommands(t *testing.T) {
	r := require.New(t)

	e := newEnv(t, nil, 1)
	defer e.pool.Close()
	r.NoError(e.bot.SetCommands())
	r.Len(e.tg.requests, 1)
	cfg, ok := e.tg.requests[0].(tgbotapi.SetMyCommandsConfig)
	r.True(ok)
	r.Len(cfg.Commands, 2)
	r.Equal("start", cfg.Commands[0].Command)
	r.Equal("help", cfg.Commands[1].Command)
}
