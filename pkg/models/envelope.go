package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// ParseEventType accepts both "updated" and the producer's "transaction.updated".
func ParseEventType(s string) (EventType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "transaction.")
	switch EventType(s) {
	case EventCreated, EventUpdated, EventDeleted:
		return EventType(s), nil
	default:
		return "", fmt.Errorf("unknown event type %q", s)
	}
}

// EventEnvelope is immutable once decoded from the log.
type EventEnvelope struct {
	EventType   EventType   `json:"event_type"`
	Transaction Transaction `json:"transaction"`
	Timestamp   Timestamp   `json:"timestamp"`
	Source      string      `json:"source,omitempty"`
	// Version is an optional producer-assigned document version.
	Version int64 `json:"version,omitempty"`
	// RawEventType is event_type exactly as it appeared on the wire.
	RawEventType string `json:"-"`
}

type rawEnvelope struct {
	EventType   string          `json:"event_type"`
	Transaction json.RawMessage `json:"transaction"`
	Timestamp   Timestamp       `json:"timestamp"`
	Source      string          `json:"source"`
	Version     int64           `json:"version"`
}

// DecodeEnvelope parses a log record value. Errors are never transient.
func DecodeEnvelope(data []byte) (EventEnvelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return EventEnvelope{}, fmt.Errorf("malformed envelope: %w", err)
	}

	eventType, err := ParseEventType(raw.EventType)
	if err != nil {
		return EventEnvelope{}, err
	}

	if len(raw.Transaction) == 0 || string(raw.Transaction) == "null" {
		return EventEnvelope{}, fmt.Errorf("envelope is missing transaction data")
	}

	var tx Transaction
	if err := json.Unmarshal(raw.Transaction, &tx); err != nil {
		return EventEnvelope{}, fmt.Errorf("malformed transaction: %w", err)
	}

	return EventEnvelope{
		EventType:    eventType,
		Transaction:  tx,
		Timestamp:    raw.Timestamp,
		Source:       raw.Source,
		Version:      raw.Version,
		RawEventType: raw.EventType,
	}, nil
}
