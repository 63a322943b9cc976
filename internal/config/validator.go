package config

import (
	"fmt"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	for _, validate := range []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateKafka(c.Broker.Kafka) },
		func(c *Config) error { return validateSearch(c.Search) },
		func(c *Config) error { return validateConsumer(c.Consumer) },
		func(c *Config) error { return validateCircuitBreaker(c.CircuitBreaker) },
		func(c *Config) error { return validateEnrichment(c.Enrichment) },
	} {
		if err := validate(cfg); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}
	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Topic == "" {
		return &ValidationError{
			Field:   "broker.kafka.topic",
			Message: "source topic is required",
		}
	}

	if cfg.DLQTopic == cfg.Topic {
		return &ValidationError{
			Field:   "broker.kafka.dlq_topic",
			Message: "dead-letter topic must differ from the source topic",
		}
	}

	switch cfg.StartOffset {
	case "earliest", "latest":
	default:
		return &ValidationError{
			Field:   "broker.kafka.start_offset",
			Message: fmt.Sprintf("unknown start offset %q (supported: earliest, latest)", cfg.StartOffset),
		}
	}

	if cfg.PollInterval <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.poll_interval",
			Message: "poll interval must be positive",
		}
	}

	return nil
}

func validateSearch(cfg SearchConfig) error {
	if len(cfg.Addresses) == 0 {
		return &ValidationError{
			Field:   "search.addresses",
			Message: "at least one search store address is required",
		}
	}

	if cfg.Index == "" {
		return &ValidationError{
			Field:   "search.index",
			Message: "index name is required",
		}
	}

	return nil
}

func validateConsumer(cfg ConsumerConfig) error {
	if cfg.BatchSize < 1 {
		return &ValidationError{
			Field:   "consumer.batch_size",
			Message: fmt.Sprintf("batch size must be at least 1, got %d", cfg.BatchSize),
		}
	}

	if cfg.BatchTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "consumer.batch_timeout_seconds",
			Message: "batch timeout must be positive",
		}
	}

	if cfg.MaxRetries < 0 {
		return &ValidationError{
			Field:   "consumer.max_retries",
			Message: "max_retries must be non-negative",
		}
	}

	if cfg.Retry.InitialInterval < 0 || cfg.Retry.MaxInterval < 0 {
		return &ValidationError{
			Field:   "consumer.retry",
			Message: "retry intervals must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "consumer.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "consumer.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	if cfg.LocalCacheSize < 1 || cfg.VersionCacheSize < 1 {
		return &ValidationError{
			Field:   "consumer.local_cache_size",
			Message: "cache sizes must be at least 1",
		}
	}

	if cfg.AuditQueueSize < 1 || cfg.AuditWorkers < 1 {
		return &ValidationError{
			Field:   "consumer.audit_queue_size",
			Message: "audit queue size and worker count must be at least 1",
		}
	}

	if cfg.ProcessedTTL <= 0 {
		return &ValidationError{
			Field:   "consumer.processed_ttl",
			Message: "processed marker TTL must be positive",
		}
	}

	return nil
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if cfg.FailureThreshold < 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_threshold",
			Message: "failure threshold must be at least 1",
		}
	}

	if cfg.TimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "circuit_breaker.timeout_seconds",
			Message: "open timeout must be positive",
		}
	}

	if cfg.HalfOpenSuccesses < 1 {
		return &ValidationError{
			Field:   "circuit_breaker.half_open_successes",
			Message: "half-open success threshold must be at least 1",
		}
	}

	return nil
}

func validateEnrichment(cfg EnrichmentConfig) error {
	for category := range cfg.Rules {
		switch category {
		case "card", "p2p", "crypto", "default":
		default:
			return &ValidationError{
				Field:   "enrichment.rules." + category,
				Message: "unknown category (supported: card, p2p, crypto, default)",
			}
		}
	}
	return nil
}
