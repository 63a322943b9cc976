package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"txindexer/internal/constants"
)

// LoadConfig reads configFile (optional) and applies environment overrides.
// Every key has a default, so an empty file path yields a runnable config.
func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", 10)
	viper.SetDefault("server.write_timeout_seconds", 10)

	viper.SetDefault("database.postgres.host", "localhost")
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.user", "postgres")
	viper.SetDefault("database.postgres.password", "postgres")
	viper.SetDefault("database.postgres.dbname", "transactions")
	viper.SetDefault("database.postgres.sslmode", "disable")
	viper.SetDefault("database.redis.host", "localhost")
	viper.SetDefault("database.redis.port", 6379)
	viper.SetDefault("database.redis.password", "")
	viper.SetDefault("database.redis.db", 0)
	viper.SetDefault("database.mongodb.uri", "")
	viper.SetDefault("database.mongodb.database", "transactions")
	viper.SetDefault("database.run_migrations", true)

	viper.SetDefault("broker.kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("broker.kafka.group_id", "transaction_indexer")
	viper.SetDefault("broker.kafka.topic", "transactions")
	viper.SetDefault("broker.kafka.dlq_topic", "")
	viper.SetDefault("broker.kafka.start_offset", "earliest")
	viper.SetDefault("broker.kafka.poll_interval", "500ms")
	viper.SetDefault("broker.kafka.min_bytes", 1)
	viper.SetDefault("broker.kafka.max_bytes", 10000000)
	viper.SetDefault("broker.kafka.write_timeout", "10s")
	viper.SetDefault("broker.kafka.session_timeout", "30s")

	viper.SetDefault("search.addresses", []string{"http://localhost:9200"})
	viper.SetDefault("search.index", "transactions")
	viper.SetDefault("search.username", "")
	viper.SetDefault("search.password", "")
	viper.SetDefault("search.create_index", true)

	viper.SetDefault("consumer.batch_size", 10)
	viper.SetDefault("consumer.batch_timeout_seconds", 5.0)
	viper.SetDefault("consumer.enable_audit_writes", true)
	viper.SetDefault("consumer.max_retries", 3)
	viper.SetDefault("consumer.retry.initial_interval", "200ms")
	viper.SetDefault("consumer.retry.max_interval", "5s")
	viper.SetDefault("consumer.retry.multiplier", 2.0)
	viper.SetDefault("consumer.shutdown_timeout", "30s")
	viper.SetDefault("consumer.processed_ttl", "24h")
	viper.SetDefault("consumer.local_cache_size", 100000)
	viper.SetDefault("consumer.version_cache_size", 100000)
	viper.SetDefault("consumer.audit_queue_size", 1000)
	viper.SetDefault("consumer.audit_workers", 4)

	viper.SetDefault("circuit_breaker.failure_threshold", 5)
	viper.SetDefault("circuit_breaker.timeout_seconds", 60.0)
	viper.SetDefault("circuit_breaker.half_open_successes", 2)
	viper.SetDefault("circuit_breaker.call_timeout", "5s")

	viper.SetDefault("enrichment.catalog_collection", "merchant_categories")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", "indexer-service")
	viper.SetDefault("tracing.otlp.endpoint", "localhost:4317")
	viper.SetDefault("tracing.otlp.insecure", true)
	viper.SetDefault("tracing.sampler.type", "always")
	viper.SetDefault("tracing.sampler.param", 1.0)
}

func bindEnvVariables() {
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS", "KAFKA_BOOTSTRAP_SERVERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID", "KAFKA_CONSUMER_GROUP")
	viper.BindEnv("broker.kafka.topic", "BROKER_KAFKA_TOPIC", "KAFKA_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("search.addresses", "SEARCH_ADDRESSES", "ELASTICSEARCH_URL")
	viper.BindEnv("search.index", "SEARCH_INDEX", "ELASTICSEARCH_INDEX")

	viper.BindEnv("consumer.batch_size", "CONSUMER_BATCH_SIZE")
	viper.BindEnv("consumer.batch_timeout_seconds", "CONSUMER_BATCH_TIMEOUT_SECONDS", "CONSUMER_BATCH_TIMEOUT")
	viper.BindEnv("consumer.enable_audit_writes", "CONSUMER_ENABLE_AUDIT_WRITES", "CONSUMER_ENABLE_AUDIT_DB")
	viper.BindEnv("consumer.max_retries", "CONSUMER_MAX_RETRIES")

	viper.BindEnv("circuit_breaker.failure_threshold", "CIRCUIT_BREAKER_FAILURE_THRESHOLD")
	viper.BindEnv("circuit_breaker.timeout_seconds", "CIRCUIT_BREAKER_TIMEOUT_SECONDS")
	viper.BindEnv("circuit_breaker.half_open_successes", "CIRCUIT_BREAKER_HALF_OPEN_SUCCESSES")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) {
	if brokers := splitList(viper.GetString("broker.kafka.brokers")); len(brokers) > 0 {
		cfg.Broker.Kafka.Brokers = brokers
	}

	if addrs := splitList(viper.GetString("search.addresses")); len(addrs) > 0 {
		cfg.Search.Addresses = addrs
	}

	if cfg.Broker.Kafka.DLQTopic == "" {
		cfg.Broker.Kafka.DLQTopic = cfg.Broker.Kafka.Topic + constants.DLQTopicSuffix
	}
}

// splitList turns a comma separated env value into a trimmed list.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
