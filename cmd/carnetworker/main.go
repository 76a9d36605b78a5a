package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/carnetocr/carnetocr/internal/broker"
	"github.com/carnetocr/carnetocr/internal/common"
	"github.com/carnetocr/carnetocr/internal/recognize"
	"github.com/carnetocr/carnetocr/internal/results"
	"github.com/carnetocr/carnetocr/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("workers.config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := results.Open(ctx, cfg.Storage.ResultsDSN, logger)
	if err != nil {
		logger.Error("workers.store_open_failed", "dsn", cfg.Storage.ResultsDSN, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client := recognize.NewClient(cfg.Recognition, logger)

	// Each worker dials its own broker connection so prefetch windows stay
	// per-worker.
	src := worker.Source(func(ctx context.Context) (broker.Consumer, error) {
		return broker.DialAMQP(cfg.Broker.URL(), cfg.Broker.Queue, logger)
	})

	var wg sync.WaitGroup
	for i := 1; i <= cfg.Worker.Count; i++ {
		w := worker.New(worker.Config{
			ID:             i,
			Source:         src,
			Recognizer:     client,
			Store:          store,
			ReconnectDelay: cfg.Broker.ReconnectDelay,
			Logger:         logger,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	logger.Info("workers.started",
		"count", cfg.Worker.Count,
		"queue", cfg.Broker.Queue,
		"model", cfg.Recognition.Model,
	)

	wg.Wait()
	logger.Info("workers.stopped")
}
