package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/kafka"
	"github.com/ramiqadoumi/go-task-tracker/internal/notify"
	redisstore "github.com/ramiqadoumi/go-task-tracker/internal/redis"
	"github.com/ramiqadoumi/go-task-tracker/pkg/telemetry"
	"github.com/ramiqadoumi/go-task-tracker/services/projector"
	"github.com/ramiqadoumi/go-task-tracker/services/projector/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the projector",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("group-id", "projector", "Kafka consumer group")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().Int("max-retries", 3, "retries per delivery after the first attempt")
	serveCmd.Flags().Duration("retry-delay", time.Second, "backoff base between delivery attempts")
	serveCmd.Flags().Duration("handler-timeout", 15*time.Second, "per-attempt delivery timeout")
	serveCmd.Flags().String("webhook-url", "", "endpoint notified of status changes; empty disables notifications")
	serveCmd.Flags().String("metrics-addr", ":9096", "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("group_id", serveCmd.Flags(), "group-id")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("max_retries", serveCmd.Flags(), "max-retries")
	bindFlag("retry_delay", serveCmd.Flags(), "retry-delay")
	bindFlag("handler_timeout", serveCmd.Flags(), "handler-timeout")
	bindFlag("webhook_url", serveCmd.Flags(), "webhook-url")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	projectorID := "projector-" + uuid.New().String()[:8]

	logger := buildLogger(cfg.LogLevel, "projector").With(slog.String("projector_id", projectorID))

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "projector", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return fmt.Errorf("kafka_brokers is required")
	}

	consumer := kafka.NewConsumer(brokers, kafka.EventsTopic, cfg.GroupID, logger)
	defer func() { _ = consumer.Close() }()

	producer := kafka.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	cache := redisstore.NewTaskCache(redisClient, redisstore.DefaultTaskTTL)

	registry := notify.NewRegistry()
	if cfg.WebhookURL != "" {
		registry.Register(notify.NewWebhookHandler(domain.EventTaskStatusChanged, notify.WebhookConfig{
			URL:     cfg.WebhookURL,
			Headers: cfg.WebhookHeaders,
			Timeout: cfg.HandlerTimeout,
		}))
	}

	p := projector.NewProjector(
		projectorID, consumer, producer, cache, registry,
		projector.WithLogger(logger),
		projector.WithRetries(cfg.MaxRetries),
		projector.WithBaseDelay(cfg.RetryDelay),
		projector.WithTimeout(cfg.HandlerTimeout),
	)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down, draining in-flight deliveries...")
		runCancel()
	}()

	logger.Info("projector starting",
		slog.String("topic", kafka.EventsTopic),
		slog.String("group_id", cfg.GroupID),
		slog.Bool("webhook_enabled", cfg.WebhookURL != ""),
		slog.Int("max_retries", cfg.MaxRetries),
	)

	if err := p.Run(runCtx); err != nil {
		return fmt.Errorf("projector: %w", err)
	}

	p.Wait()
	logger.Info("stopped cleanly")
	return nil
}
