package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"willhaben_watch/internal/api"
	"willhaben_watch/internal/config"
	"willhaben_watch/internal/extractor"
	"willhaben_watch/internal/fetcher"
	"willhaben_watch/internal/notify"
	"willhaben_watch/internal/proxy"
	"willhaben_watch/internal/scheduler"
	"willhaben_watch/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	st := store.New()
	rot := proxy.NewRotator(cfg.ProxyURLs)
	f := fetcher.New(rot, log)
	ex := extractor.New(cfg.PriceCeiling, log)
	dispatcher := notify.New(&http.Client{Timeout: 30 * time.Second}, cfg.PushEndpoint, st, log)
	sched := scheduler.New(st, f, ex, dispatcher, cfg.SearchURL, log)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(st, sched, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting scraper", "addr", cfg.ListenAddr, "proxies", rot.Len())

	go sched.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve http", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
