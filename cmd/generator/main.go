// Command generator serves the tracked-document generator over HTTP.
//
// Operators upload a spreadsheet to POST /upload and receive a zip with one
// PDF per row, each carrying a QR code that resolves to GET /documento/{id}.
// PostgreSQL (API keys), Redis (shared rate limits) and Kafka (batch events)
// are optional; the defaults run standalone.
//
// Usage:
//
//	go run ./cmd/generator [-config configs/generator.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/handler"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/pipeline"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/router"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and TD_* env when empty)")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting generator",
		"port", cfg.Server.Port,
		"base_url", cfg.Generation.BaseURL,
		"required_columns", cfg.Generation.RequiredColumns,
		"failure_policy", cfg.Generation.FailurePolicy,
		"workers", cfg.Generation.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}
	checker := health.NewChecker("generator")

	var publisher analytics.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.BatchEvents)
		defer producer.Close()
		publisher = producer
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.BatchEvents)
	}
	collector := analytics.NewCollector(publisher, nil, analytics.CollectorOptions{
		Breaker: resilience.NewCircuitBreaker("batch-events", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, to resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		}),
		OnPublish: func(status string) {
			if m != nil {
				m.EventsPublishedTotal.WithLabelValues(status).Inc()
			}
		},
	})
	collector.Start(ctx)
	defer collector.Close()

	trusted, err := cfg.Auth.TrustedPrefixes()
	if err != nil {
		slog.Error("invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	deps := router.Deps{
		Health:         checker,
		Metrics:        m,
		Analytics:      analytics.NewHandler(collector.Aggregator()),
		RequestTimeout: cfg.Server.RequestTimeout,
		CORS:           middleware.DefaultCORSConfig(),
		RatePerMinute:  cfg.Auth.RateLimitPerMinute,
		TrustedProxies: trusted,
	}

	if cfg.Auth.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := apikey.EnsureSchema(ctx, db); err != nil {
			slog.Error("failed to prepare api key schema", "error", err)
			os.Exit(1)
		}
		deps.Validator = apikey.NewValidator(db)
		checker.Register("postgres", health.PingCheck(db, health.StatusDown))
		slog.Info("api key authentication enabled")
	}

	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		deps.Limiter = ratelimit.NewRedis(rdb, time.Minute)
		checker.Register("redis", health.PingCheck(rdb, health.StatusDegraded))
		slog.Info("redis rate limiter enabled", "per_minute", cfg.Auth.RateLimitPerMinute)
	} else if cfg.Auth.RateLimitPerMinute > 0 {
		limiter := ratelimit.NewMemory(time.Minute)
		defer limiter.Close()
		deps.Limiter = limiter
	}

	p := pipeline.New(cfg.Generation, m, collector)
	deps.Upload = handler.New(p, cfg.Generation.ArchiveName, cfg.Server.MaxUploadBytes)
	deps.Pages = handler.NewPages(p, cfg.Generation.IdentifierColumn, cfg.Server.MaxUploadBytes)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("generator listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("generator stopped")
}
