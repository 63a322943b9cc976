package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Search         SearchConfig         `mapstructure:"search"`
	Consumer       ConsumerConfig       `mapstructure:"consumer"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Enrichment     EnrichmentConfig     `mapstructure:"enrichment"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

// ServerConfig is the operational endpoint (health, metrics, breaker reset).
type ServerConfig struct {
	Port                int `mapstructure:"port"`
	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MongoDBConfig is optional; an empty URI keeps the built-in category catalog.
type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	GroupID        string        `mapstructure:"group_id"`
	Topic          string        `mapstructure:"topic"`
	DLQTopic       string        `mapstructure:"dlq_topic"`
	StartOffset    string        `mapstructure:"start_offset"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MinBytes       int           `mapstructure:"min_bytes"`
	MaxBytes       int           `mapstructure:"max_bytes"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
}

type SearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	// CreateIndex creates the index with its mapping at startup when missing.
	CreateIndex bool `mapstructure:"create_index"`
}

type ConsumerConfig struct {
	BatchSize           int           `mapstructure:"batch_size"`
	BatchTimeoutSeconds float64       `mapstructure:"batch_timeout_seconds"`
	EnableAuditWrites   bool          `mapstructure:"enable_audit_writes"`
	MaxRetries          int           `mapstructure:"max_retries"`
	Retry               RetryConfig   `mapstructure:"retry"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
	ProcessedTTL        time.Duration `mapstructure:"processed_ttl"`
	LocalCacheSize      int           `mapstructure:"local_cache_size"`
	VersionCacheSize    int           `mapstructure:"version_cache_size"`
	AuditQueueSize      int           `mapstructure:"audit_queue_size"`
	AuditWorkers        int           `mapstructure:"audit_workers"`
}

func (c ConsumerConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSeconds * float64(time.Second))
}

type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type CircuitBreakerConfig struct {
	FailureThreshold  uint32        `mapstructure:"failure_threshold"`
	TimeoutSeconds    float64       `mapstructure:"timeout_seconds"`
	HalfOpenSuccesses uint32        `mapstructure:"half_open_successes"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
}

func (c CircuitBreakerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

type EnrichmentConfig struct {
	// Rules are extra CEL expressions per category ("card", "p2p", "crypto",
	// "default"); each must evaluate to true for the event to be valid.
	Rules             map[string][]string `mapstructure:"rules"`
	CatalogCollection string              `mapstructure:"catalog_collection"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
