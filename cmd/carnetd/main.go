package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carnetocr/carnetocr/internal/broker"
	"github.com/carnetocr/carnetocr/internal/common"
	"github.com/carnetocr/carnetocr/internal/intake"
	"github.com/carnetocr/carnetocr/internal/results"
	"github.com/carnetocr/carnetocr/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("api.config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := results.Open(ctx, cfg.Storage.ResultsDSN, logger)
	if err != nil {
		logger.Error("api.store_open_failed", "dsn", cfg.Storage.ResultsDSN, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	queue, err := broker.DialAMQP(cfg.Broker.URL(), cfg.Broker.Queue, logger)
	if err != nil {
		logger.Error("api.broker_connect_failed", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	in, err := intake.NewService(cfg.Storage.UploadDir, queue, logger)
	if err != nil {
		logger.Error("api.intake_init_failed", "error", err)
		os.Exit(1)
	}

	h := server.New(in, results.NewLookup(store, logger), logger)
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api.listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api.serve_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("api.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("api.stopped")
}
