package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"txindexer/pkg/models"
)

// Fingerprint derives the idempotency key of an envelope from the
// transaction id, the event type as sent, and the raw event timestamp.
func Fingerprint(env models.EventEnvelope) string {
	eventType := env.RawEventType
	if eventType == "" {
		eventType = string(env.EventType)
	}
	return ComputeHash(env.Transaction.ID, eventType, env.Timestamp.Raw)
}

func ComputeHash(transactionID, eventType, timestamp string) string {
	var builder strings.Builder
	builder.Grow(len(transactionID) + len(eventType) + len(timestamp) + 2)
	builder.WriteString(transactionID)
	builder.WriteByte(':')
	builder.WriteString(eventType)
	builder.WriteByte(':')
	builder.WriteString(timestamp)

	sum := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(sum[:])
}
