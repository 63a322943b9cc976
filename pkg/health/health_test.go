package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"txindexer/pkg/circuitbreaker"
)

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                    { return s.name }
func (s stubChecker) Check(ctx context.Context) error { return s.err }

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestRegistryAggregatesStatus(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"all healthy", []Checker{stubChecker{name: "a"}, stubChecker{name: "b"}}, StatusHealthy},
		{"one degraded", []Checker{stubChecker{name: "a"}, stubChecker{name: "b", err: ErrDegraded}}, StatusDegraded},
		{"unhealthy wins", []Checker{
			stubChecker{name: "a", err: ErrDegraded},
			stubChecker{name: "b", err: errors.New("down")},
		}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			for _, c := range tt.checkers {
				r.Register(c)
			}
			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, len(tt.checkers))
		})
	}
}

func TestElasticsearchChecker(t *testing.T) {
	assert.NoError(t, NewElasticsearchChecker(stubPinger{}).Check(context.Background()))

	err := NewElasticsearchChecker(stubPinger{err: errors.New("refused")}).Check(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrDegraded))
}

func TestBreakerCheckerDegradedWhenOpen(t *testing.T) {
	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 1
	b := circuitbreaker.NewBreaker("search", cfg, nil)
	checker := NewBreakerChecker(b)

	assert.Equal(t, "breaker_search", checker.Name())
	assert.NoError(t, checker.Check(context.Background()))

	_, _ = b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("fail")
	})

	err := checker.Check(context.Background())
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Contains(t, err.Error(), "OPEN")
}

func TestOptionalPingDegrades(t *testing.T) {
	c := &pingChecker{
		name:     "redis",
		ping:     func(ctx context.Context) error { return errors.New("refused") },
		optional: true,
	}
	err := c.Check(context.Background())
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Contains(t, err.Error(), "redis ping failed")
}
