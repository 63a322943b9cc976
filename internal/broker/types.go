package broker

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrPollTimeout is returned by Fetch when no record arrived within the
// poll interval.
var ErrPollTimeout = errors.New("no record within poll interval")

type Record struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []kafka.Header
	Time      time.Time
}

// PartitionSource is one assigned partition. It is used by a single goroutine.
type PartitionSource interface {
	Topic() string
	Partition() int
	Fetch(ctx context.Context) (Record, error)
	// Commit records next as the next offset to be consumed.
	Commit(ctx context.Context, next int64) error
	// Seek repositions the source so offset is the next record fetched.
	Seek(offset int64) error
}

// PartitionHandler owns a source until ctx is cancelled by a rebalance or
// shutdown. It must return promptly after cancellation.
type PartitionHandler func(ctx context.Context, src PartitionSource)

type Producer interface {
	Publish(ctx context.Context, key, value []byte, headers []kafka.Header) error
	Close() error
}

type Consumer interface {
	Run(ctx context.Context, handle PartitionHandler) error
	Close() error
}
