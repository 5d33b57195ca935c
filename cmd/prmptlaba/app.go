package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/LazyMisha/prmptlaba/internal/cache"
	"github.com/LazyMisha/prmptlaba/internal/config"
	"github.com/LazyMisha/prmptlaba/internal/enhance"
	"github.com/LazyMisha/prmptlaba/internal/library"
	"github.com/LazyMisha/prmptlaba/internal/metrics"
	"github.com/LazyMisha/prmptlaba/internal/provider"
	"github.com/LazyMisha/prmptlaba/internal/retry"
	"github.com/LazyMisha/prmptlaba/internal/storage"
)

// app is the wired core shared by serve and mcp.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	cache       *cache.Cache[string]
	gateway     *enhance.Gateway
	db          *storage.Manager
	history     *storage.HistoryStore
	collections *storage.CollectionStore
	prompts     *storage.SavedPromptStore
	library     *library.Library
}

// newLogger builds the process logger from the log settings.
func newLogger(w io.Writer, lc config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	c, err := cache.New[string](cfg.Cache.TTL, cfg.Cache.SweepInterval)
	if err != nil {
		return nil, err
	}
	a.cache = c
	a.metrics.RegisterCacheSize(c.Size)

	client := provider.NewClient(cfg.Provider.APIKey,
		provider.WithBaseURL(cfg.Provider.BaseURL),
		provider.WithModel(cfg.Provider.Model),
	)

	opts := []enhance.Option{
		enhance.WithPolicy(retry.Policy{
			Attempts:   cfg.Retry.Attempts,
			BaseDelay:  cfg.Retry.BaseDelay,
			Multiplier: cfg.Retry.Multiplier,
		}),
		enhance.WithTimeout(cfg.Server.RequestTimeout),
		enhance.WithSampling(cfg.Provider.Model, cfg.Provider.MaxTokens, cfg.Provider.Temperature),
		enhance.WithMetrics(a.metrics),
		enhance.WithLogger(logger.With("component", "enhance")),
	}
	if cfg.Provider.RateLimit > 0 {
		burst := cfg.Provider.RateBurst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, enhance.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Provider.RateLimit), burst)))
	}
	a.gateway = enhance.New(client, c, opts...)

	a.db = storage.NewManager(cfg.DBPath(), storage.WithLogger(logger.With("component", "storage")))
	a.history = storage.NewHistoryStore(a.db, cfg.Storage.HistoryLimit,
		storage.WithEvictionObserver(a.metrics.HistoryEvicted),
		storage.WithHistoryLogger(logger.With("component", "history")),
	)
	a.collections = storage.NewCollectionStore(a.db)
	a.prompts = storage.NewSavedPromptStore(a.db)
	a.library = library.New(a.collections, a.prompts)
	return a, nil
}

// open runs migrations up front so a broken database fails at startup.
func (a *app) open(ctx context.Context) error {
	if _, err := a.db.DB(ctx); err != nil {
		return err
	}
	v, err := a.db.Version(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("storage ready", "path", a.db.Path(), "schema_version", v)
	return nil
}

func (a *app) close() {
	a.cache.Stop()
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}
