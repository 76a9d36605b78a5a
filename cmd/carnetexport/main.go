package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/carnetocr/carnetocr/internal/common"
	"github.com/carnetocr/carnetocr/internal/export"
	"github.com/carnetocr/carnetocr/internal/results"
)

func main() {
	out := flag.String("o", "results.xlsx", "output workbook path")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	ctx := context.Background()

	store, err := results.Open(ctx, cfg.Storage.ResultsDSN, logger)
	if err != nil {
		logger.Error("export.store_open_failed", "dsn", cfg.Storage.ResultsDSN, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	b, err := export.NewService(store, logger).ResultsXLSX(ctx)
	if err != nil {
		logger.Error("export.failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, b, 0o644); err != nil {
		logger.Error("export.write_failed", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("export.written", "path", *out, "bytes", len(b))
}
