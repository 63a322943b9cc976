package audit

import (
	"context"

	"txindexer/pkg/circuitbreaker"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/models"
)

type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Breaker
}

func NewCircuitBreakerRepository(repo Repository, cb *circuitbreaker.Breaker) *CircuitBreakerRepository {
	return &CircuitBreakerRepository{repo: repo, cb: cb}
}

func (r *CircuitBreakerRepository) Upsert(ctx context.Context, doc models.IndexedDocument) error {
	return r.guard(ctx, func(ctx context.Context) error { return r.repo.Upsert(ctx, doc) })
}

func (r *CircuitBreakerRepository) Delete(ctx context.Context, id string, version int64) error {
	return r.guard(ctx, func(ctx context.Context) error { return r.repo.Delete(ctx, id, version) })
}

// guard keeps row-level rejections from tripping the breaker.
func (r *CircuitBreakerRepository) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	var rowErr error
	_, err := r.cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		err := fn(ctx)
		if apperrors.IsValidation(err) {
			rowErr = err
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		return err
	}
	return rowErr
}
