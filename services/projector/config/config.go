package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the projector service.
type Config struct {
	LogLevel       string
	KafkaBrokers   string
	GroupID        string
	RedisAddr      string
	MaxRetries     int
	RetryDelay     time.Duration
	HandlerTimeout time.Duration
	WebhookURL     string
	WebhookHeaders map[string]string
	MetricsAddr    string
	OTelEndpoint   string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:       v.GetString("log_level"),
		KafkaBrokers:   v.GetString("kafka_brokers"),
		GroupID:        v.GetString("group_id"),
		RedisAddr:      v.GetString("redis_addr"),
		MaxRetries:     v.GetInt("max_retries"),
		RetryDelay:     v.GetDuration("retry_delay"),
		HandlerTimeout: v.GetDuration("handler_timeout"),
		WebhookURL:     strings.TrimSpace(v.GetString("webhook_url")),
		WebhookHeaders: v.GetStringMapString("webhook_headers"),
		MetricsAddr:    v.GetString("metrics_addr"),
		OTelEndpoint:   v.GetString("otel_endpoint"),
	}
}

// Brokers splits KafkaBrokers into addresses, dropping blanks.
func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
