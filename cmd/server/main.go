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

	"tradedeck/config"
	"tradedeck/internal/cache"
	"tradedeck/internal/creds"
	"tradedeck/internal/gateway"
	"tradedeck/internal/journal"
	"tradedeck/internal/logger"
	"tradedeck/internal/metrics"
	"tradedeck/internal/scheduler"
	"tradedeck/internal/trader"
)

func main() {
	cfg := config.Load()
	log := logger.Init("tradedeck", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", slog.String("product", cfg.Product), slog.String("addr", cfg.ListenAddr))

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Error("create data dir", slog.String("error", err.Error()))
		os.Exit(1)
	}

	credStore, err := creds.NewStore(cfg.DataDir)
	if err != nil {
		log.Error("credential store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	jnl, err := journal.New(journal.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("open journal", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jnl.Close()

	var seriesCache cache.SeriesCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			log.Error("redis cache", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rc.Close()
		seriesCache = rc
		log.Info("series cache: redis", slog.String("addr", cfg.RedisAddr))
	} else {
		seriesCache = cache.NewMemory(cfg.CacheTTL)
		log.Info("series cache: in-process", slog.Duration("ttl", cfg.CacheTTL))
	}

	m := metrics.New()
	hub := gateway.NewHub(log, m)

	svc, err := trader.New(trader.Config{
		Product:             cfg.Product,
		CandleLimit:         cfg.CandleLimit,
		TradeAmountUSD:      cfg.TradeAmountUSD,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		ExchangeBaseURL:     cfg.ExchangeBaseURL,
	}, credStore, seriesCache, jnl, m, hub, log)
	if err != nil {
		log.Error("trader init", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sched, err := scheduler.New(cfg.StrategyCron, func(ctx context.Context) error {
		if !svc.Configured() {
			log.Info("scheduled strategy skipped: not configured")
			return nil
		}
		_, err := svc.RunStrategy(ctx)
		return err
	}, log)
	if err != nil {
		log.Error("scheduler init", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gateway.NewServer(svc, hub, cfg.Product, m.Handler(), jnl.Ping, log).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http listening", slog.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("shutdown", slog.String("error", err.Error()))
	}
}
