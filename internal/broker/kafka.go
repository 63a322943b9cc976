package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"txindexer/internal/config"
	"txindexer/internal/constants"
	"txindexer/internal/logger"
	"txindexer/pkg/metrics"
	"txindexer/pkg/tracing"
)

type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, topic string, log logger.Logger) *KafkaProducer {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = constants.KafkaWriteTimeout
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaProducer{writer: w, topic: topic, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, key, value []byte, headers []kafka.Header) error {
	start := time.Now()
	headers = tracing.InjectHeaders(ctx, headers)

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    start,
	})
	metrics.ObserveKafkaWriteDuration(p.topic, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to write kafka message to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// GroupConsumer joins the consumer group and hands every assigned partition
// of one generation to its own handler goroutine.
type GroupConsumer struct {
	cfg    config.KafkaConfig
	group  *kafka.ConsumerGroup
	logger logger.Logger
	wg     sync.WaitGroup
}

func NewGroupConsumer(cfg config.KafkaConfig, startOffset int64, log logger.Logger) (*GroupConsumer, error) {
	groupCfg := kafka.ConsumerGroupConfig{
		ID:          cfg.GroupID,
		Brokers:     cfg.Brokers,
		Topics:      []string{cfg.Topic},
		StartOffset: startOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Warnf("kafka group: "+msg, args...)
		}),
	}
	if cfg.SessionTimeout > 0 {
		groupCfg.SessionTimeout = cfg.SessionTimeout
	}

	group, err := kafka.NewConsumerGroup(groupCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return &GroupConsumer{cfg: cfg, group: group, logger: log}, nil
}

// Run blocks until ctx is cancelled or the group is closed.
func (c *GroupConsumer) Run(ctx context.Context, handle PartitionHandler) error {
	c.logger.Infow("Joining consumer group",
		"topic", c.cfg.Topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
	)

	for {
		gen, err := c.group.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrGroupClosed) {
				c.logger.Infow("Stopped consuming", "topic", c.cfg.Topic)
				return nil
			}
			c.logger.Errorw("Failed to join generation", "error", err, "group_id", c.cfg.GroupID)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		assignments := gen.Assignments[c.cfg.Topic]
		c.logger.Infow("Partitions assigned",
			"generation", gen.ID,
			"member_id", gen.MemberID,
			"partitions", len(assignments),
		)

		for _, assignment := range assignments {
			src := &partitionSource{
				topic:     c.cfg.Topic,
				partition: assignment.ID,
				offset:    assignment.Offset,
				gen:       gen,
				cfg:       c.cfg,
			}
			c.wg.Add(1)
			gen.Start(func(genCtx context.Context) {
				defer c.wg.Done()
				if err := src.open(); err != nil {
					c.logger.Errorw("Failed to open partition reader",
						"error", err,
						"partition", src.partition,
					)
					return
				}
				defer src.close()
				handle(genCtx, src)
			})
		}
	}
}

func (c *GroupConsumer) Close() error {
	err := c.group.Close()
	c.wg.Wait()
	return err
}

type partitionSource struct {
	topic     string
	partition int
	offset    int64
	gen       *kafka.Generation
	cfg       config.KafkaConfig
	reader    *kafka.Reader
}

func (s *partitionSource) open() error {
	minBytes, maxBytes := s.cfg.MinBytes, s.cfg.MaxBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	if maxBytes <= 0 {
		maxBytes = 10e6
	}
	s.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:   s.cfg.Brokers,
		Topic:     s.topic,
		Partition: s.partition,
		MinBytes:  minBytes,
		MaxBytes:  maxBytes,
		MaxWait:   constants.KafkaFetchMaxWait,
	})
	if err := s.reader.SetOffset(s.offset); err != nil {
		_ = s.reader.Close()
		return fmt.Errorf("seek partition %d to %d: %w", s.partition, s.offset, err)
	}
	return nil
}

func (s *partitionSource) close() {
	_ = s.reader.Close()
}

func (s *partitionSource) Topic() string  { return s.topic }
func (s *partitionSource) Partition() int { return s.partition }

func (s *partitionSource) Fetch(ctx context.Context) (Record, error) {
	pollCtx := ctx
	if s.cfg.PollInterval > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, s.cfg.PollInterval)
		defer cancel()
	}

	start := time.Now()
	m, err := s.reader.FetchMessage(pollCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return Record{}, ErrPollTimeout
		}
		return Record{}, err
	}
	metrics.ObserveKafkaReadDuration(s.topic, time.Since(start))

	return Record{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   m.Headers,
		Time:      m.Time,
	}, nil
}

func (s *partitionSource) Commit(ctx context.Context, next int64) error {
	if err := s.gen.CommitOffsets(map[string]map[int]int64{s.topic: {s.partition: next}}); err != nil {
		return fmt.Errorf("commit partition %d offset %d: %w", s.partition, next, err)
	}
	return nil
}

func (s *partitionSource) Seek(offset int64) error {
	if err := s.reader.SetOffset(offset); err != nil {
		return fmt.Errorf("seek partition %d to %d: %w", s.partition, offset, err)
	}
	return nil
}
