package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kapu/youtube-quota-broker-go/internal/app"
	"github.com/kapu/youtube-quota-broker-go/internal/config"
	"github.com/kapu/youtube-quota-broker-go/internal/constants"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.ProvideLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("YouTube quota broker starting...",
		slog.String("version", cfg.Version),
		slog.Int("credentialSets", len(cfg.Credentials.Sets)),
		slog.String("resetMode", cfg.Quota.ResetMode),
	)

	buildCtx, buildCancel := context.WithTimeout(context.Background(), constants.AppTimeout.Build)
	runtime, err := app.BuildRuntime(buildCtx, cfg, logger)
	buildCancel()
	if err != nil {
		logger.Error("Failed to assemble broker runtime", slog.Any("error", err))
		os.Exit(1)
	}

	runtime.Run()
}
