package broker

import (
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"txindexer/internal/config"
	"txindexer/internal/logger"
)

func NewConsumer(cfg config.KafkaConfig, log logger.Logger) (Consumer, error) {
	start, err := parseStartOffset(cfg.StartOffset)
	if err != nil {
		return nil, err
	}
	return NewGroupConsumer(cfg, start, log)
}

func NewProducer(cfg config.KafkaConfig, log logger.Logger) (Producer, error) {
	if cfg.DLQTopic == "" {
		return nil, fmt.Errorf("dead-letter topic is not configured")
	}
	return NewKafkaProducer(cfg, cfg.DLQTopic, log), nil
}

func parseStartOffset(s string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "earliest", "first":
		return kafka.FirstOffset, nil
	case "latest", "last":
		return kafka.LastOffset, nil
	default:
		return 0, fmt.Errorf("unknown start offset %q", s)
	}
}
