package pipeline

import (
	"context"
	"sort"
	"sync"

	"txindexer/internal/broker"
	"txindexer/internal/logger"
)

// Consumer runs one PartitionWorker per assigned partition.
type Consumer struct {
	source broker.Consumer
	cfg    Config
	deps   Dependencies
	log    logger.Logger

	mu      sync.Mutex
	workers map[int]*PartitionWorker
}

func NewConsumer(source broker.Consumer, cfg Config, deps Dependencies) *Consumer {
	log := deps.Logger
	if log == nil {
		log = logger.NopLogger()
	}
	return &Consumer{
		source:  source,
		cfg:     cfg,
		deps:    deps,
		log:     log,
		workers: make(map[int]*PartitionWorker),
	}
}

// Run blocks until ctx is cancelled or the source is closed. Workers may
// still be draining when it returns; closing the source waits for them.
func (c *Consumer) Run(ctx context.Context) error {
	return c.source.Run(ctx, func(ctx context.Context, src broker.PartitionSource) {
		w := NewPartitionWorker(src, c.cfg, c.deps)

		c.mu.Lock()
		c.workers[src.Partition()] = w
		c.mu.Unlock()

		defer func() {
			c.mu.Lock()
			if c.workers[src.Partition()] == w {
				delete(c.workers, src.Partition())
			}
			c.mu.Unlock()
		}()

		if err := w.Run(ctx); err != nil {
			c.log.Errorw("Partition worker exited", "error", err, "partition", src.Partition())
		}
	})
}

type PartitionStatus struct {
	Partition int    `json:"partition"`
	State     string `json:"state"`
}

// Partitions reports the state of every running worker, ordered by partition.
func (c *Consumer) Partitions() []PartitionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PartitionStatus, 0, len(c.workers))
	for p, w := range c.workers {
		out = append(out, PartitionStatus{Partition: p, State: w.State().String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Partition < out[j].Partition })
	return out
}
