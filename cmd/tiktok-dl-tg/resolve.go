package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lavrd/tiktok-dl-tg/internal/link"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Download a single video to scratch folder and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  resolveRun,
}

type resolveOutput struct {
	FilePath  string `json:"file_path,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func resolveRun(cmd *cobra.Command, args []string) error {
	uri := strings.TrimSpace(args[0])
	if !link.IsSupported(uri) {
		return fmt.Errorf("link is not supported: %s", uri)
	}
	if err := os.MkdirAll(cfg.ScratchFolder, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create scratch folder: %w", err)
	}

	eng := newEngine(nil)
	defer eng.Close()
	ctx := log.Logger.WithContext(context.Background())
	result := eng.resolver.Resolve(ctx, uri, cfg.MaxFileSize, func() {
		log.Info().Msg("primary strategy failed, trying alternative one")
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(&resolveOutput{
		FilePath:  result.FilePath,
		SizeBytes: result.SizeBytes,
		Strategy:  string(result.Strategy),
		Reason:    string(result.Reason),
	}); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	if !result.OK() {
		return fmt.Errorf("failed to download video: %s", result.Reason)
	}
	return nil
}
