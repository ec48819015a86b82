package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	v := viper.New()
	v.Set("kafka_brokers", "k1:9092, k2:9092,")
	v.Set("max_retries", 5)
	v.Set("retry_delay", "250ms")
	v.Set("webhook_url", "  https://hooks.example.com/tasks ")
	v.Set("webhook_headers", map[string]any{"Authorization": "Bearer x"})

	cfg := Load(v)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers())
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, "https://hooks.example.com/tasks", cfg.WebhookURL)
	assert.Equal(t, "Bearer x", cfg.WebhookHeaders["authorization"])
}

func TestBrokers_Empty(t *testing.T) {
	assert.Empty(t, Config{}.Brokers())
}
