package idempotency

import (
	"context"
	"time"

	"txindexer/pkg/circuitbreaker"
)

type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Breaker
}

func NewCircuitBreakerRepository(repo Repository, cb *circuitbreaker.Breaker) *CircuitBreakerRepository {
	return &CircuitBreakerRepository{repo: repo, cb: cb}
}

func (r *CircuitBreakerRepository) Exists(ctx context.Context, fingerprint string) (bool, error) {
	return circuitbreaker.Call(ctx, r.cb, func(ctx context.Context) (bool, error) {
		return r.repo.Exists(ctx, fingerprint)
	})
}

func (r *CircuitBreakerRepository) MarkMany(ctx context.Context, fingerprints []string, processedAt time.Time, ttl time.Duration) error {
	_, err := r.cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, r.repo.MarkMany(ctx, fingerprints, processedAt, ttl)
	})
	return err
}

func (r *CircuitBreakerRepository) State() string {
	return r.cb.State().String()
}
