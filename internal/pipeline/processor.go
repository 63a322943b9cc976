package pipeline

import (
	"context"
	"time"

	"txindexer/internal/audit"
	"txindexer/internal/deadletter"
	"txindexer/internal/enrichment"
	"txindexer/internal/logger"
	"txindexer/internal/search"
	"txindexer/internal/versioning"
	"txindexer/pkg/models"
	"txindexer/pkg/retry"
)

type IdempotencyTracker interface {
	IsProcessed(ctx context.Context, fingerprint string) bool
	MarkProcessedMany(ctx context.Context, fingerprints []string, ttl time.Duration) error
}

type Enricher interface {
	ValidateMetadata(ctx context.Context, tx models.Transaction, eventType models.EventType) enrichment.Validation
	BuildDocument(tx models.Transaction, enrichedAt time.Time) models.IndexedDocument
}

type Versioner interface {
	VersionFor(ctx context.Context, docID string, eventType models.EventType, eventTime time.Time, explicit int64) (versioning.Decision, error)
	Forget(docID string)
	Purge()
	Len() int
}

type SearchWriter interface {
	BulkIndex(ctx context.Context, items []search.BulkItem) ([]search.BulkItemResult, error)
}

type AuditSink interface {
	Enqueue(entry audit.Entry) bool
}

type DeadLetterSink interface {
	Send(ctx context.Context, msg deadletter.Message, cause error) error
}

type Config struct {
	BatchSize    int
	BatchTimeout time.Duration
	// MaxRetries is the number of write retries after the first attempt.
	MaxRetries      int
	Retry           retry.Policy
	ShutdownTimeout time.Duration
	ProcessedTTL    time.Duration
	// RewindDelay is the pause before re-reading from a withheld offset.
	RewindDelay time.Duration
}

// Dependencies are shared by every partition worker of the process.
type Dependencies struct {
	Tracker    IdempotencyTracker
	Enricher   Enricher
	Versioner  Versioner
	Search     SearchWriter
	Audit      AuditSink
	DeadLetter DeadLetterSink
	Logger     logger.Logger
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Retry.InitialInterval <= 0 {
		c.Retry = retry.DefaultPolicy()
	}
	c.Retry.MaxRetries = c.MaxRetries
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.RewindDelay <= 0 {
		c.RewindDelay = time.Second
	}
	return c
}
