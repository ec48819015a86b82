package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-task-tracker/internal/postgres"
)

// Config holds typed configuration for the api-server service.
type Config struct {
	LogLevel     string
	HTTPPort     string
	MetricsAddr  string
	KafkaBrokers string
	RedisAddr    string
	PostgresDSN  string
	OTelEndpoint string

	// Mutations allowed per actor per RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
	CacheTTL   time.Duration

	TxMaxWait   time.Duration
	TxTimeout   time.Duration
	TxIsolation string

	PageSize    int
	MaxPageSize int
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		HTTPPort:     v.GetString("http_port"),
		MetricsAddr:  v.GetString("metrics_addr"),
		KafkaBrokers: v.GetString("kafka_brokers"),
		RedisAddr:    v.GetString("redis_addr"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		OTelEndpoint: v.GetString("otel_endpoint"),
		RateLimit:    v.GetInt("rate_limit"),
		RateWindow:   v.GetDuration("rate_window"),
		CacheTTL:     v.GetDuration("cache_ttl"),
		TxMaxWait:    v.GetDuration("tx_max_wait"),
		TxTimeout:    v.GetDuration("tx_timeout"),
		TxIsolation:  v.GetString("tx_isolation"),
		PageSize:     v.GetInt("page_size"),
		MaxPageSize:  v.GetInt("max_page_size"),
	}
}

// TxOptions converts the transaction settings for the lifecycle engine.
func (c Config) TxOptions() (postgres.TxOptions, error) {
	opts := postgres.TxOptions{MaxWait: c.TxMaxWait, Timeout: c.TxTimeout}
	switch strings.ToLower(strings.ReplaceAll(c.TxIsolation, "_", " ")) {
	case "", "read committed":
		opts.IsoLevel = pgx.ReadCommitted
	case "repeatable read":
		opts.IsoLevel = pgx.RepeatableRead
	case "serializable":
		opts.IsoLevel = pgx.Serializable
	default:
		return postgres.TxOptions{}, fmt.Errorf("unsupported tx_isolation %q", c.TxIsolation)
	}
	if opts.MaxWait <= 0 || opts.Timeout <= 0 {
		return postgres.TxOptions{}, fmt.Errorf("tx_max_wait and tx_timeout must be positive, got %s and %s", opts.MaxWait, opts.Timeout)
	}
	return opts, nil
}
