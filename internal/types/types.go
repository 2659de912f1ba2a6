package types

import (
	"errors"
	"time"
)

var (
	ErrInternal     = errors.New("internal error")
	ErrSizeExceeded = errors.New("size is exceeded")
	// ErrNoResult means extractor finished without error but found nothing to download.
	ErrNoResult = errors.New("no result")
	ErrNotFound = errors.New("not found")
)

type FailureReason string

const (
	NotFoundReason                FailureReason = "not_found"
	TooLargeReason                FailureReason = "too_large"
	NetworkErrorReason            FailureReason = "network_error"
	TimeoutReason                 FailureReason = "timeout"
	NoResultFromAnyStrategyReason FailureReason = "no_result_from_any_strategy"
)

type Strategy string

const (
	YtDlpStrategy Strategy = "ytdlp"
	APIStrategy   Strategy = "api"
)

type VideoRequest struct {
	URL string
}

// DownloadResult is either a success with a file in scratch folder or a failure with reason.
// Receiver of successful result owns the file and must delete it.
type DownloadResult struct {
	FilePath  string
	SizeBytes int64
	Strategy  Strategy
	Reason    FailureReason
}

func Success(filePath string, size int64, strategy Strategy) DownloadResult {
	return DownloadResult{FilePath: filePath, SizeBytes: size, Strategy: strategy}
}

func Failure(reason FailureReason) DownloadResult {
	return DownloadResult{Reason: reason}
}

func (r DownloadResult) OK() bool { return r.Reason == "" && r.FilePath != "" }

type User struct {
	FirstSeen  time.Time
	LastActive time.Time
	Username   string
	UserID     int64
}
