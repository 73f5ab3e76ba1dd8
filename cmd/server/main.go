package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"exchange-rate-resolver/internal/adapter/cache"
	httpRouter "exchange-rate-resolver/internal/adapter/http"
	"exchange-rate-resolver/internal/adapter/repository"
	"exchange-rate-resolver/internal/config"
	"exchange-rate-resolver/internal/domain/model"
	"exchange-rate-resolver/internal/domain/ports"
	"exchange-rate-resolver/internal/metrics"
	"exchange-rate-resolver/internal/service"
	"exchange-rate-resolver/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger(os.Getenv("LOG_LEVEL")).Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	log.Info("Starting exchange rate resolver")

	pivot, err := model.ParseCurrency(cfg.PrimaryAPI.Pivot)
	if err != nil {
		log.Error("Invalid pivot currency", "pivot", cfg.PrimaryAPI.Pivot, "error", err)
		os.Exit(1)
	}

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	rateCache := newRateCache(cfg.Cache, log)

	retryPolicy := repository.RetryPolicy{
		MaxRetries: cfg.Retry.MaxRetries,
		Backoff:    cfg.Retry.Backoff,
	}

	primary := repository.NewMonobankAPI(repository.MonobankConfig{
		BaseURL:     cfg.PrimaryAPI.BaseURL,
		Token:       cfg.PrimaryAPI.Token,
		TokenHeader: cfg.PrimaryAPI.TokenHeader,
		Timeout:     cfg.PrimaryAPI.Timeout,
		TableTTL:    cfg.PrimaryAPI.TableTTL,
		Pivot:       pivot,
		Codes:       model.DefaultCodeTable(),
		Retry:       retryPolicy,
	}, log)

	fallback := repository.NewOpenERAPI(
		cfg.FallbackAPI.BaseURL,
		cfg.FallbackAPI.Timeout,
		retryPolicy,
		log,
	)

	resolver := service.NewRateResolver(primary, fallback, rateCache, cfg.Cache.TTL, appMetrics, log)
	exchangeService := service.NewExchangeService(resolver, log)
	handler := httpRouter.NewHandler(exchangeService, log, appMetrics)

	router := httpRouter.NewRouter(handler, log, appMetrics, prometheus.DefaultGatherer)
	routes := router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      routes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancelJanitor := context.WithCancel(context.Background())
	go clearExpired(ctx, rateCache, cfg.Cache.CleanupInterval, log)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port, "cache_backend", cfg.Cache.Backend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	cancelJanitor()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}

func newRateCache(cfg config.CacheConfig, log *logger.Logger) ports.RateCache {
	if cfg.Backend == config.CacheBackendFreeCache {
		return cache.NewFreeCache(cfg.SizeBytes, log)
	}
	return cache.NewMemoryCache(log)
}

// clearExpired evicts stale cache entries until ctx is cancelled.
func clearExpired(ctx context.Context, rateCache ports.RateCache, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := rateCache.ClearExpired(ctx); err != nil {
				log.Error("Failed to clear expired cache entries", "error", err)
			}
		case <-ctx.Done():
			log.Info("Stopping cache janitor")
			return
		}
	}
}
