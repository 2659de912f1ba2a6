package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lavrd/tiktok-dl-tg/internal/task"
	"github.com/lavrd/tiktok-dl-tg/internal/types"
)

const (
	DefaultYtDlpBinary   = "yt-dlp"
	DefaultSocketTimeout = 30 * time.Second

	defaultMediaID  = "video"
	defaultMediaExt = "mp4"
	// Engine substitutes media id and extension into output template.
	outputTemplate = "%(id)s.%(ext)s"
)

// YtDlp downloads media with yt-dlp binary.
// Process is started on the pool, so the number of parallel engine runs is bounded.
type YtDlp struct {
	pool          *task.Pool
	binary        string
	scratchFolder string
	socketTimeout time.Duration
}

func NewYtDlp(binary, scratchFolder string, pool *task.Pool) *YtDlp {
	if binary == "" {
		binary = DefaultYtDlpBinary
	}
	return &YtDlp{
		pool:          pool,
		binary:        binary,
		scratchFolder: scratchFolder,
		socketTimeout: DefaultSocketTimeout,
	}
}

// Extract downloads media in the best available format.
// Returned file is placed directly in scratch folder and belongs to the caller.
func (y *YtDlp) Extract(ctx context.Context, uri string) (*Media, error) {
	media, err := task.Run(ctx, y.pool, func() (*Media, error) {
		return y.download(ctx, uri)
	}, func(media *Media) {
		// Nobody waits for the media anymore.
		if err := os.Remove(media.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			zerolog.Ctx(ctx).Error().Err(err).Str("path", media.Path).Msg("failed to remove abandoned media")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download with yt-dlp: %w", err)
	}
	return media, nil
}

// info is a part of JSON which engine prints for downloaded media.
type info struct {
	ID  string `json:"id"`
	Ext string `json:"ext"`
}

func (y *YtDlp) download(ctx context.Context, uri string) (*Media, error) {
	// Every run has own staging folder. Engine can leave .part and other temporary files
	// on failure; they are removed together with the folder.
	key := uuid.NewString()
	staging := filepath.Join(y.scratchFolder, "."+key)
	if err := os.MkdirAll(staging, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create staging folder: %w", err)
	}
	logger := zerolog.Ctx(ctx).With().Str("staging", staging).Logger()
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			logger.Error().Err(err).Msg("failed to remove staging folder")
		}
	}()

	args := []string{
		"--format", "best",
		"--output", filepath.Join(staging, outputTemplate),
		"--quiet",
		"--no-warnings",
		"--no-progress",
		"--no-playlist",
		// File age is used by scratch cleaner, it must be the download time.
		"--no-mtime",
		"--socket-timeout", strconv.Itoa(int(y.socketTimeout.Seconds())),
		"--print-json",
		"--no-simulate",
		uri,
	}
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	//nolint:gosec // arguments are passed as slice, no shell involved
	cmd := exec.CommandContext(ctx, y.binary, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Engine children can keep output pipes open after the engine is killed.
	cmd.WaitDelay = time.Second

	logger.Trace().Strs("args", args).Msg("run yt-dlp")
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("yt-dlp was interrupted: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("yt-dlp exited with %d: %s: %w",
				exitErr.ExitCode(), strings.TrimSpace(stderr.String()), types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to run yt-dlp: %w", err)
	}

	meta, err := parseInfo(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	name := meta.ID + "." + meta.Ext
	size, err := fileSize(filepath.Join(staging, name))
	if err != nil {
		return nil, err
	}

	// Suffix keeps simultaneous downloads of the same video apart.
	path := filepath.Join(y.scratchFolder, fmt.Sprintf("%s-%s.%s", meta.ID, key[:8], meta.Ext))
	if err = os.Rename(filepath.Join(staging, name), path); err != nil {
		return nil, fmt.Errorf("failed to move media to scratch folder: %w", err)
	}
	return &Media{ID: meta.ID, Ext: meta.Ext, Path: path, Size: size}, nil
}

func parseInfo(output []byte) (*info, error) {
	lines := bytes.Split(bytes.TrimSpace(output), []byte("\n"))
	raw := bytes.TrimSpace(lines[len(lines)-1])
	if len(raw) == 0 {
		return nil, fmt.Errorf("yt-dlp printed nothing: %w", types.ErrNoResult)
	}
	meta := &info{}
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp output: %v: %w", err, types.ErrNoResult)
	}
	if meta.ID == "" {
		meta.ID = defaultMediaID
	}
	if meta.Ext == "" {
		meta.Ext = defaultMediaExt
	}
	// Values are used as a file name, they must not escape scratch folder.
	meta.ID = filepath.Base(meta.ID)
	meta.Ext = filepath.Base(meta.Ext)
	return meta, nil
}

func fileSize(path string) (int64, error) {
	stat, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("yt-dlp did not create media file: %w", types.ErrNoResult)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat media file: %w", err)
	}
	return stat.Size(), nil
}
