// Package resolver downloads a video by trying extraction strategies one by one.
package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/lavrd/tiktok-dl-tg/internal/extract"
	"github.com/lavrd/tiktok-dl-tg/internal/metrics"
	"github.com/lavrd/tiktok-dl-tg/internal/types"
)

// DefaultEngineTimeout limits the whole engine run; engine itself has only socket timeout.
const DefaultEngineTimeout = 5 * time.Minute

// FileExtractor downloads media to a file in scratch folder.
type FileExtractor interface {
	Extract(ctx context.Context, uri string) (*extract.Media, error)
}

// BytesExtractor returns media content.
type BytesExtractor interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

type Options struct {
	Primary       FileExtractor
	Fallback      BytesExtractor
	ScratchFolder string
	EngineTimeout time.Duration
	Metrics       *metrics.Metrics
}

// Resolver has no mutable state and can be used concurrently.
type Resolver struct {
	opts *Options
}

func New(opts *Options) *Resolver {
	if opts.EngineTimeout == 0 {
		opts.EngineTimeout = DefaultEngineTimeout
	}
	return &Resolver{opts: opts}
}

// Resolve never fails with error: every problem is reported as failure result.
// Successful result file is not bigger than maxSize and belongs to the caller.
// onFallback (optional) is called when primary strategy failed and fallback one starts.
func (r *Resolver) Resolve(
	ctx context.Context, uri string, maxSize int64, onFallback func(),
) types.DownloadResult {

	start := time.Now()
	logger := zerolog.Ctx(ctx).With().Str("url", uri).Int64("max_size", maxSize).Logger()

	lastReason := types.NoResultFromAnyStrategyReason
	if r.opts.Primary != nil {
		result := r.tryPrimary(ctx, logger, uri, maxSize)
		if result.OK() {
			r.opts.Metrics.ObserveResolution(result, "", time.Since(start))
			return result
		}
		lastReason = result.Reason
	}
	if r.opts.Fallback != nil {
		if onFallback != nil && r.opts.Primary != nil {
			onFallback()
		}
		result := r.tryFallback(ctx, logger, uri, maxSize)
		if result.OK() {
			r.opts.Metrics.ObserveResolution(result, "", time.Since(start))
			return result
		}
		lastReason = result.Reason
	}

	logger.Warn().Str("last_reason", string(lastReason)).Msg("no strategy could download media")
	result := types.Failure(types.NoResultFromAnyStrategyReason)
	r.opts.Metrics.ObserveResolution(result, lastReason, time.Since(start))
	return result
}

func (r *Resolver) tryPrimary(
	ctx context.Context, logger zerolog.Logger, uri string, maxSize int64,
) types.DownloadResult {

	logger = logger.With().Str("strategy", string(types.YtDlpStrategy)).Logger()
	ctx, cancel := context.WithTimeout(ctx, r.opts.EngineTimeout)
	defer cancel()

	logger.Info().Msg("try to download")
	media, err := r.opts.Primary.Extract(ctx, uri)
	if err != nil {
		return r.fail(logger, types.YtDlpStrategy, err)
	}
	if media.Size > maxSize {
		// Oversized file must not stay in scratch folder.
		if err = os.Remove(media.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Error().Err(err).Str("path", media.Path).Msg("failed to remove oversized media")
		}
		return r.fail(logger, types.YtDlpStrategy,
			fmt.Errorf("media size %d is more than %d: %w", media.Size, maxSize, types.ErrSizeExceeded))
	}
	r.opts.Metrics.ObserveAttempt(types.YtDlpStrategy, metrics.OutcomeSuccess)
	logger.Info().Str("path", media.Path).Int64("size", media.Size).Msg("media downloaded")
	return types.Success(media.Path, media.Size, types.YtDlpStrategy)
}

func (r *Resolver) tryFallback(
	ctx context.Context, logger zerolog.Logger, uri string, maxSize int64,
) types.DownloadResult {

	logger = logger.With().Str("strategy", string(types.APIStrategy)).Logger()

	logger.Info().Msg("try to download")
	data, err := r.opts.Fallback.Fetch(ctx, uri)
	if err != nil {
		return r.fail(logger, types.APIStrategy, err)
	}
	size := int64(len(data))
	if size > maxSize {
		return r.fail(logger, types.APIStrategy,
			fmt.Errorf("media size %d is more than %d: %w", size, maxSize, types.ErrSizeExceeded))
	}
	if size == 0 {
		return r.fail(logger, types.APIStrategy, fmt.Errorf("media is empty: %w", types.ErrNoResult))
	}
	path, err := r.save(uri, data)
	if err != nil {
		return r.fail(logger, types.APIStrategy, err)
	}
	r.opts.Metrics.ObserveAttempt(types.APIStrategy, metrics.OutcomeSuccess)
	logger.Info().Str("path", path).Int64("size", size).Msg("media downloaded")
	return types.Success(path, size, types.APIStrategy)
}

// save writes media to a file named by link hash. Random suffix keeps
// simultaneous downloads of the same link apart.
func (r *Resolver) save(uri string, data []byte) (string, error) {
	sum := sha256.Sum256([]byte(uri))
	pattern := fmt.Sprintf("tiktok_%s_*.mp4", hex.EncodeToString(sum[:8]))
	file, err := os.CreateTemp(r.opts.ScratchFolder, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	path := file.Name()
	_, err = file.Write(data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			err = errors.Join(err, removeErr)
		}
		return "", fmt.Errorf("failed to write media to file: %w", err)
	}
	return path, nil
}

func (r *Resolver) fail(logger zerolog.Logger, strategy types.Strategy, err error) types.DownloadResult {
	reason := Reason(err)
	r.opts.Metrics.ObserveAttempt(strategy, string(reason))
	logger.Warn().Err(err).Str("reason", string(reason)).Msg("strategy failed")
	return types.Failure(reason)
}

// Reason classifies extractor error.
func Reason(err error) types.FailureReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.TimeoutReason
	case errors.Is(err, types.ErrSizeExceeded):
		return types.TooLargeReason
	case errors.Is(err, types.ErrNoResult), errors.Is(err, types.ErrNotFound):
		return types.NotFoundReason
	default:
		return types.NetworkErrorReason
	}
}
