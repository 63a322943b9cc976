package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Consumer.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Consumer.BatchTimeout())
	assert.True(t, cfg.Consumer.EnableAuditWrites)
	assert.Equal(t, 3, cfg.Consumer.MaxRetries)
	assert.EqualValues(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreaker.Timeout())
	assert.EqualValues(t, 2, cfg.CircuitBreaker.HalfOpenSuccesses)
	assert.Equal(t, "transactions", cfg.Broker.Kafka.Topic)
	assert.Equal(t, "transaction_indexer", cfg.Broker.Kafka.GroupID)
	assert.Equal(t, "transactions.dlq", cfg.Broker.Kafka.DLQTopic)
	assert.Equal(t, 24*time.Hour, cfg.Consumer.ProcessedTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Broker.Kafka.PollInterval)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
consumer:
  batch_size: 50
  max_retries: 5
broker:
  kafka:
    brokers: ["kafka-1:9092"]
enrichment:
  rules:
    card:
      - "tx.amount < 100000.0"
`), 0o600))

	t.Setenv("CONSUMER_BATCH_TIMEOUT", "2.5")
	t.Setenv("CONSUMER_ENABLE_AUDIT_DB", "false")
	t.Setenv("BROKER_KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Consumer.BatchSize)
	assert.Equal(t, 5, cfg.Consumer.MaxRetries)
	assert.Equal(t, 2500*time.Millisecond, cfg.Consumer.BatchTimeout())
	assert.False(t, cfg.Consumer.EnableAuditWrites)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, []string{"tx.amount < 100000.0"}, cfg.Enrichment.Rules["card"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateStatic(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "zero batch", mutate: func(c *Config) { c.Consumer.BatchSize = 0 }, field: "consumer.batch_size"},
		{name: "negative retries", mutate: func(c *Config) { c.Consumer.MaxRetries = -1 }, field: "consumer.max_retries"},
		{name: "dlq equals topic", mutate: func(c *Config) { c.Broker.Kafka.DLQTopic = c.Broker.Kafka.Topic }, field: "broker.kafka.dlq_topic"},
		{name: "unknown rule category", mutate: func(c *Config) { c.Enrichment.Rules = map[string][]string{"wire": {"true"}} }, field: "enrichment.rules.wire"},
		{name: "no breaker threshold", mutate: func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }, field: "circuit_breaker.failure_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cfg
			tt.mutate(&c)
			err := ValidateStatic(&c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "transactions.dlq", cfg.Broker.Kafka.DLQTopic)
	assert.Equal(t, "parentbased_traceidratio", cfg.Tracing.Sampler.Type)
	assert.Len(t, cfg.Enrichment.Rules["crypto"], 1)
}
