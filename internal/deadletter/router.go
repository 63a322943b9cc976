package deadletter

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"txindexer/internal/logger"
	"txindexer/pkg/circuitbreaker"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/metrics"
	"txindexer/pkg/models"
)

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers []kafka.Header) error
}

// Message is a poisoned or exhausted record on its way to the dead-letter topic.
type Message struct {
	// Envelope is nil when the record could not be decoded.
	Envelope    *models.EventEnvelope
	Raw         []byte
	Fingerprint string
	Topic       string
	Partition   int
	Offset      int64
	FirstSeenAt time.Time
	Attempts    int
}

type Router struct {
	publisher Publisher
	cb        *circuitbreaker.Breaker
	topic     string
	log       logger.Logger
	now       func() time.Time
}

// NewRouter accepts a nil breaker for an unguarded publisher.
func NewRouter(publisher Publisher, cb *circuitbreaker.Breaker, topic string, log logger.Logger) *Router {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Router{publisher: publisher, cb: cb, topic: topic, log: log, now: time.Now}
}

// Send publishes the dead-letter record for msg. Any failure is returned as
// a fatal local error: the caller must not commit past msg.Offset.
func (r *Router) Send(ctx context.Context, msg Message, cause error) error {
	record := r.buildRecord(msg, cause)

	value, err := json.Marshal(record)
	if err != nil {
		return r.fail(ctx, record, err)
	}

	headers := []kafka.Header{
		{Key: "failure_type", Value: []byte(record.FailureType)},
		{Key: "source_topic", Value: []byte(record.SourceTopic)},
		{Key: "source_partition", Value: []byte(strconv.Itoa(record.Partition))},
		{Key: "source_offset", Value: []byte(strconv.FormatInt(record.Offset, 10))},
	}

	publish := func(ctx context.Context) (interface{}, error) {
		return nil, r.publisher.Publish(ctx, r.key(msg), value, headers)
	}
	if r.cb != nil {
		_, err = r.cb.Execute(ctx, publish)
	} else {
		_, err = publish(ctx)
	}
	if err != nil {
		return r.fail(ctx, record, err)
	}

	metrics.IncDLQ(msg.Topic, record.FailureType)
	r.log.WarnwCtx(ctx, "Message sent to dead-letter topic",
		"dlq_topic", r.topic,
		"dead_letter_id", record.ID,
		"failure_type", record.FailureType,
		"reason", record.FailureReason,
		"attempt_count", record.AttemptCount,
		"offset", msg.Offset,
	)
	return nil
}

func (r *Router) fail(ctx context.Context, record models.DeadLetterRecord, err error) error {
	metrics.IncDLQPublishFailure()
	r.log.ErrorwCtx(ctx, "Failed to publish dead-letter record",
		"error", err,
		"dlq_topic", r.topic,
		"dead_letter_id", record.ID,
		"offset", record.Offset,
	)
	return apperrors.Wrap(err, apperrors.ErrFatalLocal.
		WithMessage("dead-letter publish failed").
		WithDetail("offset", record.Offset))
}

func (r *Router) key(msg Message) []byte {
	if msg.Envelope != nil && msg.Envelope.Transaction.ID != "" {
		return []byte(msg.Envelope.Transaction.ID)
	}
	return nil
}

func (r *Router) buildRecord(msg Message, cause error) models.DeadLetterRecord {
	now := r.now().UTC()
	firstSeen := msg.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = now
	}

	record := models.DeadLetterRecord{
		ID:             uuid.NewString(),
		Envelope:       msg.Envelope,
		FailureReason:  reason(cause),
		FailureType:    failureType(cause),
		AttemptCount:   msg.Attempts,
		FirstSeenAt:    firstSeen.UTC(),
		DeadLetteredAt: now,
		SourceTopic:    msg.Topic,
		Partition:      msg.Partition,
		Offset:         msg.Offset,
		Fingerprint:    msg.Fingerprint,
	}

	if json.Valid(msg.Raw) {
		record.RawMessage = json.RawMessage(msg.Raw)
	} else if len(msg.Raw) > 0 {
		record.RawText = string(msg.Raw)
	}
	return record
}

func reason(cause error) string {
	if cause == nil {
		return "unknown failure"
	}
	return cause.Error()
}

func failureType(cause error) string {
	switch apperrors.Classify(cause) {
	case "validation":
		return models.FailureTypeValidation
	case "transient", "internal":
		return models.FailureTypeTransient
	case "breaker_rejection":
		return models.FailureTypeRejected
	default:
		return models.FailureTypeUnknown
	}
}
