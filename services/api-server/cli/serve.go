package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-task-tracker/internal/kafka"
	"github.com/ramiqadoumi/go-task-tracker/internal/lifecycle"
	"github.com/ramiqadoumi/go-task-tracker/internal/postgres"
	redisstore "github.com/ramiqadoumi/go-task-tracker/internal/redis"
	"github.com/ramiqadoumi/go-task-tracker/pkg/telemetry"
	"github.com/ramiqadoumi/go-task-tracker/services/api-server/config"
	"github.com/ramiqadoumi/go-task-tracker/services/api-server/handler"
	"github.com/ramiqadoumi/go-task-tracker/services/api-server/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses; empty disables event publishing")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().Int("rate-limit", 60, "mutating requests allowed per actor per window; 0 disables limiting")
	serveCmd.Flags().Duration("rate-window", time.Minute, "rate limiting window")
	serveCmd.Flags().Duration("cache-ttl", redisstore.DefaultTaskTTL, "lifetime of cached task snapshots")
	serveCmd.Flags().Duration("tx-max-wait", lifecycle.DefaultTxMaxWait, "longest wait for a database connection per transaction")
	serveCmd.Flags().Duration("tx-timeout", lifecycle.DefaultTxTimeout, "total budget of a transaction")
	serveCmd.Flags().String("tx-isolation", "read_committed", "read_committed | repeatable_read | serializable")
	serveCmd.Flags().Int("page-size", lifecycle.DefaultPageSize, "default items per listing page")
	serveCmd.Flags().Int("max-page-size", lifecycle.MaxPageSize, "largest allowed listing page")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("rate_limit", serveCmd.Flags(), "rate-limit")
	bindFlag("rate_window", serveCmd.Flags(), "rate-window")
	bindFlag("cache_ttl", serveCmd.Flags(), "cache-ttl")
	bindFlag("tx_max_wait", serveCmd.Flags(), "tx-max-wait")
	bindFlag("tx_timeout", serveCmd.Flags(), "tx-timeout")
	bindFlag("tx_isolation", serveCmd.Flags(), "tx-isolation")
	bindFlag("page_size", serveCmd.Flags(), "page-size")
	bindFlag("max_page_size", serveCmd.Flags(), "max-page-size")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "api-server")

	txOpts, err := cfg.TxOptions()
	if err != nil {
		return err
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "api-server", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	opts := []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithTxOptions(txOpts),
		lifecycle.WithCache(redisstore.NewTaskCache(redisClient, cfg.CacheTTL)),
		lifecycle.WithPageSize(cfg.PageSize, cfg.MaxPageSize),
	}
	if cfg.KafkaBrokers != "" {
		producer := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
		defer func() { _ = producer.Close() }()
		opts = append(opts, lifecycle.WithPublisher(kafka.NewEventPublisher(producer, logger)))
	}
	svc := lifecycle.NewService(store.Repositories(), store, opts...)

	ready := func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}
	restHandler := handler.NewREST(svc, ready, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB limit
	r.Get("/healthz", restHandler.Healthz)
	r.Get("/readyz", restHandler.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity)
		if cfg.RateLimit > 0 {
			limiter := redisstore.NewRateLimiter(redisClient, cfg.RateLimit, cfg.RateWindow)
			r.Use(middleware.RateLimit(limiter, cfg.RateWindow, logger))
		}
		restHandler.Routes(r)
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger, ready)

	go func() {
		logger.Info("api-server HTTP starting",
			slog.String("addr", httpSrv.Addr),
			slog.Duration("tx_timeout", txOpts.Timeout),
			slog.String("tx_isolation", string(txOpts.IsoLevel)),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	// Let committed changes finish announcing themselves before the producer closes.
	svc.Wait()
	logger.Info("stopped")
	return nil
}
