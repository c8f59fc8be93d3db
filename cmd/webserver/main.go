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

	"github.com/olgkv/bookmarkchecker/internal/app"
	"github.com/olgkv/bookmarkchecker/internal/config"
)

const shutdownTimeout = 15 * time.Second

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type waiter interface {
	Wait()
}

func runHTTPServer(ctx context.Context, srv httpServer, svc waiter) {
	go func() {
		slog.Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.Any("error", err))
	}

	// дожидаемся завершения уже начатых проверок
	svc.Wait()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg, os.Stderr)
	if err != nil {
		slog.Error("build logger", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	srv, svc, statsFn, err := app.NewServer(cfg, logger)
	if err != nil {
		slog.Error("init server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting", slog.String("addr", srv.Addr), slog.Int("max_concurrency", cfg.MaxConcurrency), slog.Duration("probe_timeout", cfg.ProbeTimeout))
	runHTTPServer(ctx, srv, svc)

	runs, checked := statsFn()
	slog.Info("shutdown summary", slog.Int("stored_runs", runs), slog.Int("checked_bookmarks", checked))
}
