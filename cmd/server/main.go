package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github-user-proxy/internal/cache"
	"github-user-proxy/internal/config"
	apphttp "github-user-proxy/internal/http"
	"github-user-proxy/internal/metrics"
	"github-user-proxy/internal/repository"
	"github-user-proxy/internal/repository/memory"
	"github-user-proxy/internal/repository/redis"
	"github-user-proxy/internal/repository/sqlite"
	"github-user-proxy/internal/service"
	"github-user-proxy/internal/upstream"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	configureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	client, closeClient := upstream.NewClient(upstream.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		Token:     cfg.Upstream.Token,
		UserAgent: cfg.Upstream.UserAgent,
		Timeout:   cfg.Upstream.Timeout,
		Logger:    logger,
		Metrics:   collector,
	})
	defer closeClient()

	store, err := buildProfileStore(cfg, logger)
	if err != nil {
		logger.Fatalf("setup profile store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		logger.Fatalf("init profile store: %v", err)
	}
	defer store.Close()

	profileCache := cache.New(store, cache.Options{
		TTL:            cfg.Cache.TTL,
		ComputeTimeout: cfg.Cache.ComputeTimeout,
		Logger:         logger,
		Metrics:        collector,
	})
	profiles := profileCache.Wrap(service.NewProfileService(client, logger))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	var invalidator apphttp.CacheInvalidator
	if cfg.Cache.AdminEndpoint {
		invalidator = profileCache
	}
	handler := apphttp.NewHandler(profiles, invalidator, logger, collector)
	handler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s (cache backend %s, ttl %s)", cfg.Server.Addr, cfg.Cache.Backend, cfg.Cache.TTL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func buildProfileStore(cfg config.Config, logger *logrus.Logger) (repository.ProfileRepository, error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return memory.NewStore(memory.Config{
			MaxEntries:      cfg.Cache.MaxEntries,
			CleanupInterval: cfg.Cache.CleanupInterval,
		}), nil
	case "redis":
		return redis.NewStore(redis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return sqlite.NewProfileRepository(db, cfg.Cache.CleanupInterval, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrUnknownBackend, cfg.Cache.Backend)
	}
}
