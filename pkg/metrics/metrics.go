package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_messages_consumed_total",
			Help: "Total number of messages read from the source topic (count)",
		},
		[]string{"topic", "partition"},
	)

	MessagesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_messages_processed_total",
			Help: "Total number of messages resolved by outcome (indexed, duplicate, skipped, dead_lettered) (count)",
		},
		[]string{"outcome"},
	)

	DocumentsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_documents_indexed_total",
			Help: "Total number of documents written to the search store (count)",
		},
		[]string{"event_type"},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_batch_size",
			Help:    "Number of records per flushed batch (count)",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	FlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_flush_duration_ms",
			Help:    "Duration of a batch flush including retries in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_retry_attempts_total",
			Help: "Total number of record retry attempts (count)",
		},
		[]string{"reason"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_dlq_messages_total",
			Help: "Total number of messages sent to the dead-letter topic (count)",
		},
		[]string{"topic", "reason"},
	)

	DLQPublishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_dlq_publish_failures_total",
			Help: "Total number of dead-letter publishes that failed and withheld a commit (count)",
		},
	)

	OffsetsCommittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_offsets_committed_total",
			Help: "Total number of offset commits (count)",
		},
		[]string{"topic", "partition"},
	)

	PartitionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_partition_state",
			Help: "Current consumer loop state per partition (state code)",
		},
		[]string{"partition"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	CircuitBreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejections_total",
			Help: "Total number of calls rejected by an open or busy circuit breaker (count)",
		},
		[]string{"name"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	IdempotencyLocalCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_idempotency_local_cache_size",
			Help: "Number of fingerprints held in the local recency set (count)",
		},
	)

	VersionCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_version_cache_size",
			Help: "Number of document versions held in the shared version cache (count)",
		},
	)

	AuditQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_audit_queue_size",
			Help: "Current number of audit writes waiting in the queue (count)",
		},
	)

	AuditWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_audit_writes_total",
			Help: "Total number of audit writes by status (ok, failed, rejected, dropped) (count)",
		},
		[]string{"status"},
	)

	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_validation_failures_total",
			Help: "Total number of events rejected by metadata validation (count)",
		},
		[]string{"category"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"database", "operation"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		MessagesConsumedTotal,
		MessagesProcessedTotal,
		DocumentsIndexedTotal,
		BatchSize,
		FlushDuration,
		RetryAttemptsTotal,
		DLQMessagesTotal,
		DLQPublishFailuresTotal,
		OffsetsCommittedTotal,
		PartitionState,
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
		CircuitBreakerRejections,
		FallbackUsageTotal,
		IdempotencyLocalCacheSize,
		VersionCacheSize,
		AuditQueueSize,
		AuditWritesTotal,
		ValidationFailuresTotal,
		KafkaReadDuration,
		KafkaWriteDuration,
		DatabaseQueryDuration,
	}
}

// Register adds every indexer collector to reg. Passing a fresh registry
// keeps tests isolated from the default one.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func MustRegister(reg prometheus.Registerer) {
	if err := Register(reg); err != nil {
		panic(err)
	}
}

func IncConsumed(topic string, partition int) {
	MessagesConsumedTotal.WithLabelValues(topic, strconv.Itoa(partition)).Inc()
}

func IncProcessed(outcome string) {
	MessagesProcessedTotal.WithLabelValues(outcome).Inc()
}

func IncIndexed(eventType string) {
	DocumentsIndexedTotal.WithLabelValues(eventType).Inc()
}

func ObserveBatchSize(n int) {
	BatchSize.Observe(float64(n))
}

func ObserveFlushDuration(duration time.Duration, status string) {
	FlushDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncRetry(reason string) {
	RetryAttemptsTotal.WithLabelValues(reason).Inc()
}

func IncDLQ(topic, reason string) {
	DLQMessagesTotal.WithLabelValues(topic, reason).Inc()
}

func IncDLQPublishFailure() {
	DLQPublishFailuresTotal.Inc()
}

func IncOffsetCommitted(topic string, partition int) {
	OffsetsCommittedTotal.WithLabelValues(topic, strconv.Itoa(partition)).Inc()
}

func SetPartitionState(partition int, code int) {
	PartitionState.WithLabelValues(strconv.Itoa(partition)).Set(float64(code))
}

func IncFallback(service, strategy, reason string) {
	FallbackUsageTotal.WithLabelValues(service, strategy, reason).Inc()
}

func SetIdempotencyLocalCacheSize(size int) {
	IdempotencyLocalCacheSize.Set(float64(size))
}

func SetVersionCacheSize(size int) {
	VersionCacheSize.Set(float64(size))
}

func SetAuditQueueSize(size int) {
	AuditQueueSize.Set(float64(size))
}

func IncAuditWrite(status string) {
	AuditWritesTotal.WithLabelValues(status).Inc()
}

func IncValidationFailure(category string) {
	ValidationFailuresTotal.WithLabelValues(category).Inc()
}

func ObserveKafkaReadDuration(topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}

func ObserveDatabaseQueryDuration(database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(database, operation).Observe(float64(duration.Milliseconds()))
}
