package constants

import "time"

const (
	ServiceName = "indexer-service"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaFetchMaxWait = 250 * time.Millisecond
)

const (
	DLQTopicSuffix = ".dlq"
)

const (
	ProcessedKeyPrefix  = "message:processed:"
	DefaultProcessedTTL = 24 * time.Hour
)

const (
	DefaultShutdownTimeout = 30 * time.Second
	DefaultHTTPTimeout     = 10 * time.Second
)

const (
	HTTPStatusOKMin    = 200
	HTTPStatusOKMax    = 300
	HTTPStatusConflict = 409
)

const (
	OutcomeIndexed      = "indexed"
	OutcomeDuplicate    = "duplicate"
	OutcomeSkipped      = "skipped"
	OutcomeDeadLettered = "dead_lettered"
)

const (
	FallbackStrategyFailOpen = "fail_open"
	FallbackStrategyDrop     = "drop"
)

const (
	DefaultCatalogCollection = "merchant_categories"
)
