package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"txindexer/internal/constants"
)

type Repository interface {
	Exists(ctx context.Context, fingerprint string) (bool, error)
	MarkMany(ctx context.Context, fingerprints []string, processedAt time.Time, ttl time.Duration) error
}

type marker struct {
	ProcessedAt string `json:"processed_at"`
}

type RedisRepository struct {
	client *redis.Client
}

func NewRepository(client *redis.Client) Repository {
	return &RedisRepository{client: client}
}

func key(fingerprint string) string {
	return constants.ProcessedKeyPrefix + fingerprint
}

func (r *RedisRepository) Exists(ctx context.Context, fingerprint string) (bool, error) {
	n, err := r.client.Exists(ctx, key(fingerprint)).Result()
	if err != nil {
		return false, fmt.Errorf("redis EXISTS failed: %w", err)
	}
	return n > 0, nil
}

// MarkMany writes one marker per fingerprint in a single pipeline.
func (r *RedisRepository) MarkMany(ctx context.Context, fingerprints []string, processedAt time.Time, ttl time.Duration) error {
	if len(fingerprints) == 0 {
		return nil
	}

	value, err := json.Marshal(marker{ProcessedAt: processedAt.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return fmt.Errorf("encode processed marker: %w", err)
	}

	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, fp := range fingerprints {
			pipe.Set(ctx, key(fp), value, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline SET failed: %w", err)
	}
	return nil
}
