package search

import (
	"context"

	"txindexer/pkg/circuitbreaker"
)

type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Breaker
}

func NewCircuitBreakerRepository(repo Repository, cb *circuitbreaker.Breaker) *CircuitBreakerRepository {
	return &CircuitBreakerRepository{repo: repo, cb: cb}
}

// BulkIndex trips the breaker only on call-level failures. Per-item
// failures are reported in the results and leave the breaker alone.
func (r *CircuitBreakerRepository) BulkIndex(ctx context.Context, items []BulkItem) ([]BulkItemResult, error) {
	return circuitbreaker.Call(ctx, r.cb, func(ctx context.Context) ([]BulkItemResult, error) {
		return r.repo.BulkIndex(ctx, items)
	})
}

func (r *CircuitBreakerRepository) GetVersion(ctx context.Context, id string) (StoredVersion, error) {
	return circuitbreaker.Call(ctx, r.cb, func(ctx context.Context) (StoredVersion, error) {
		return r.repo.GetVersion(ctx, id)
	})
}

func (r *CircuitBreakerRepository) State() string {
	return r.cb.State().String()
}
