package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txindexer/pkg/circuitbreaker"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/models"
)

type published struct {
	key     []byte
	value   []byte
	headers []kafka.Header
}

type fakePublisher struct {
	sent []published
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, key, value []byte, headers []kafka.Header) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key: key, value: value, headers: headers})
	return nil
}

func decode(t *testing.T, p published) models.DeadLetterRecord {
	t.Helper()
	var record models.DeadLetterRecord
	require.NoError(t, json.Unmarshal(p.value, &record))
	return record
}

func TestSendValidationFailure(t *testing.T) {
	pub := &fakePublisher{}
	router := NewRouter(pub, nil, "transactions.dlq", nil)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	router.now = func() time.Time { return fixed }

	raw := []byte(`{"event_type":"created","transaction":{"id":"tx-1"}}`)
	env := &models.EventEnvelope{EventType: models.EventCreated, Transaction: models.Transaction{ID: "tx-1"}}

	err := router.Send(context.Background(), Message{
		Envelope:    env,
		Raw:         raw,
		Fingerprint: "fp",
		Topic:       "transactions",
		Partition:   2,
		Offset:      41,
	}, apperrors.ErrValidation.WithMessage("user_id is required"))
	require.NoError(t, err)

	require.Len(t, pub.sent, 1)
	assert.Equal(t, []byte("tx-1"), pub.sent[0].key)

	record := decode(t, pub.sent[0])
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.FailureTypeValidation, record.FailureType)
	assert.Contains(t, record.FailureReason, "user_id is required")
	assert.Equal(t, 0, record.AttemptCount)
	assert.Equal(t, "transactions", record.SourceTopic)
	assert.Equal(t, 2, record.Partition)
	assert.Equal(t, int64(41), record.Offset)
	assert.True(t, fixed.Equal(record.DeadLetteredAt))
	assert.True(t, fixed.Equal(record.FirstSeenAt))
	assert.JSONEq(t, string(raw), string(record.RawMessage))
	require.NotNil(t, record.Envelope)
	assert.Equal(t, "tx-1", record.Envelope.Transaction.ID)
}

func TestSendMalformedKeepsRawText(t *testing.T) {
	pub := &fakePublisher{}
	router := NewRouter(pub, nil, "transactions.dlq", nil)

	err := router.Send(context.Background(), Message{Raw: []byte("{not json"), Topic: "transactions"},
		apperrors.ErrValidation.WithMessage("malformed envelope"))
	require.NoError(t, err)

	record := decode(t, pub.sent[0])
	assert.Nil(t, record.Envelope)
	assert.Empty(t, record.RawMessage)
	assert.Equal(t, "{not json", record.RawText)
	assert.Nil(t, pub.sent[0].key)
}

func TestSendExhaustedRetries(t *testing.T) {
	pub := &fakePublisher{}
	router := NewRouter(pub, nil, "transactions.dlq", nil)
	firstSeen := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	cause := apperrors.Wrap(errors.New("es unavailable"), apperrors.ErrTransientDependency)
	err := router.Send(context.Background(), Message{
		Raw:         []byte(`{}`),
		Topic:       "transactions",
		Attempts:    4,
		FirstSeenAt: firstSeen,
	}, cause)
	require.NoError(t, err)

	record := decode(t, pub.sent[0])
	assert.Equal(t, models.FailureTypeTransient, record.FailureType)
	assert.Equal(t, 4, record.AttemptCount)
	assert.True(t, firstSeen.Equal(record.FirstSeenAt))
}

func TestFailureTypes(t *testing.T) {
	assert.Equal(t, models.FailureTypeRejected, failureType(apperrors.ErrBreakerRejection))
	assert.Equal(t, models.FailureTypeTransient, failureType(apperrors.RecoverPanic("boom")))
	assert.Equal(t, models.FailureTypeUnknown, failureType(errors.New("other")))
}

func TestPublishFailureIsFatalLocal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	router := NewRouter(pub, nil, "transactions.dlq", nil)

	err := router.Send(context.Background(), Message{Raw: []byte(`{}`), Offset: 9}, apperrors.ErrValidation)
	require.Error(t, err)
	assert.True(t, apperrors.IsFatalLocal(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestPublishThroughOpenBreakerIsFatalLocal(t *testing.T) {
	pub := &fakePublisher{}
	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 1
	cb := circuitbreaker.NewBreaker("deadletter-test", cfg, nil)
	_, _ = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("trip")
	})
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	router := NewRouter(pub, cb, "transactions.dlq", nil)
	err := router.Send(context.Background(), Message{Raw: []byte(`{}`)}, apperrors.ErrValidation)
	require.Error(t, err)
	assert.True(t, apperrors.IsFatalLocal(err))
	assert.Empty(t, pub.sent)
}
