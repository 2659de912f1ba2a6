package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

type Job interface {
	Do() error
}

// StartJob runs job every interval until context is done.
func StartJob(ctx context.Context, job Job, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := job.Do(); err != nil {
					log.Error().Err(err).Msg("failed to do job")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CleanJob deletes scratch entries which are older than retention.
// Normally the bot removes its files itself, the job catches leftovers after crashes.
type CleanJob struct {
	scratchFolder string
	retention     time.Duration
}

func (j *CleanJob) Do() error {
	if err := filepath.Walk(j.scratchFolder, j.checkEntry); err != nil {
		return fmt.Errorf("failed to walk through scratch folder: %w", err)
	}
	return nil
}

func (j *CleanJob) checkEntry(path string, info fs.FileInfo, err error) error {
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}
	if path == j.scratchFolder {
		return nil
	}
	logger := log.With().
		Str("name", info.Name()).Str("last_modified_time", info.ModTime().String()).
		Logger()
	if time.Since(info.ModTime()) < j.retention {
		logger.Debug().Msg("entry is fresh")
		if info.IsDir() {
			// Staging folder of a running download.
			return filepath.SkipDir
		}
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		logger.Error().Err(err).Msg("failed to remove entry")
		return nil
	}
	logger.Debug().Msg("entry successfully deleted")
	if info.IsDir() {
		return filepath.SkipDir
	}
	return nil
}
