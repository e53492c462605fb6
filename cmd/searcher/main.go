package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/reload"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/blob"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; built-in defaults when empty (see configs/development.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "fields", cfg.Index.Fields)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		srv, err := metrics.Listen(cfg.Metrics.Port, reg)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer srv.Shutdown(context.Background())
	}

	remote, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		slog.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}
	if c, ok := remote.(blob.Closer); ok {
		defer c.Close()
	}
	var breaker *resilience.CircuitBreaker
	if cfg.Blob.FailureThreshold > 0 {
		breaker = resilience.NewCircuitBreaker("blob-store", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Blob.FailureThreshold,
			ResetTimeout:     cfg.Blob.ResetTimeout,
			IsFailure:        blob.BreakerFailure,
			OnStateChange: func(name string, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		})
	}
	store := blob.Guarded(remote, cfg.Blob.Timeout, breaker)

	loader := bootstrap.NewLoader(cfg.Search, cfg.Index.Fields, store)
	ic, err := loader.Load(ctx)
	if err != nil {
		slog.Error("failed to load index", "error", err)
		os.Exit(1)
	}
	engine := executor.New(ic, cfg.Search, executor.Options{
		Metrics: m,
		Tracer:  tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate),
	})

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("search cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if !engine.Ready() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no index loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("loaded %s", engine.Context().LoadedAt.Format(time.RFC3339)),
		}
	})
	if breaker != nil {
		checker.Register("blob_store", func(ctx context.Context) health.ComponentHealth {
			c := breaker.Counts()
			msg := fmt.Sprintf("%d requests, %d failures, %d rejected", c.Requests, c.Failures, c.Rejected)
			if state := breaker.GetState(); state != resilience.StateClosed {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String() + ": " + msg}
			}
			return health.ComponentHealth{Status: health.StatusUp, Message: msg}
		})
	}
	if redisClient != nil {
		checker.Register("redis", health.Optional(redisClient.Ping))
	}

	if cfg.Kafka.Enabled {
		var invalidator reload.Invalidator
		if queryCache != nil {
			invalidator = queryCache
		}
		reloader := reload.New(loader, engine, invalidator, cfg.Index.Fields, m)
		kafkaCfg := cfg.Kafka
		// every replica must see every event, so each gets its own group
		if host, err := os.Hostname(); err == nil {
			kafkaCfg.ConsumerGroup = kafkaCfg.ConsumerGroup + "-" + host
		}
		consumer := kafka.NewConsumer(kafkaCfg, cfg.Kafka.Topics.IndexComplete, reloader.MessageHandler())
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index reload consumer error", "error", err)
			}
		}()
		slog.Info("index reload consumer started",
			"topic", cfg.Kafka.Topics.IndexComplete,
			"group", kafkaCfg.ConsumerGroup,
		)
	}

	h := handler.New(engine, queryCache)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		chain = middleware.RateLimit(middleware.NewLimiter(ctx, cfg.Server.RateLimit, cfg.Server.RateWindow))(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
