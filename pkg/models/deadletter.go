package models

import (
	"encoding/json"
	"time"
)

// Failure types carried on dead-letter records.
const (
	FailureTypeValidation = "validation"
	FailureTypeTransient  = "transient"
	FailureTypeRejected   = "breaker_rejection"
	FailureTypeUnknown    = "unknown"
)

// DeadLetterRecord is written once and never re-read by the pipeline.
type DeadLetterRecord struct {
	ID             string          `json:"id"`
	Envelope       *EventEnvelope  `json:"envelope,omitempty"`
	RawMessage     json.RawMessage `json:"raw_message,omitempty"`
	RawText        string          `json:"raw_text,omitempty"`
	FailureReason  string          `json:"failure_reason"`
	FailureType    string          `json:"failure_type"`
	AttemptCount   int             `json:"attempt_count"`
	FirstSeenAt    time.Time       `json:"first_seen_at"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at"`
	SourceTopic    string          `json:"source_topic"`
	Partition      int             `json:"partition"`
	Offset         int64           `json:"offset"`
	Fingerprint    string          `json:"fingerprint,omitempty"`
}
