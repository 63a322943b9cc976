package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"txindexer/internal/logger"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/metrics"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

type Config struct {
	FailureThreshold  uint32
	Timeout           time.Duration
	HalfOpenSuccesses uint32
	CallTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		Timeout:           60 * time.Second,
		HalfOpenSuccesses: 2,
		CallTimeout:       5 * time.Second,
	}
}

type Snapshot struct {
	Name                 string     `json:"name"`
	State                string     `json:"state"`
	ConsecutiveFailures  uint32     `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32     `json:"consecutive_successes"`
	OpenedAt             *time.Time `json:"opened_at,omitempty"`
}

// Breaker guards one external dependency. It is safe for concurrent use by
// all partition workers.
type Breaker struct {
	name string
	cfg  Config
	log  logger.Logger

	mu sync.RWMutex
	cb *gobreaker.CircuitBreaker

	// trial admits a single call while the breaker is not closed.
	trial sync.Mutex

	stateMu  sync.Mutex
	openedAt time.Time
}

func NewBreaker(name string, cfg Config, log logger.Logger) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.HalfOpenSuccesses == 0 {
		cfg.HalfOpenSuccesses = DefaultConfig().HalfOpenSuccesses
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if log == nil {
		log = logger.NopLogger()
	}

	b := &Breaker{
		name: name,
		cfg:  cfg,
		log:  log.With("breaker", name),
	}
	b.cb = b.newGobreaker()
	updateStateMetric(name, StateClosed)
	return b
}

func (b *Breaker) newGobreaker() *gobreaker.CircuitBreaker {
	threshold := b.cfg.FailureThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.cfg.HalfOpenSuccesses,
		Interval:    0,
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller abandoning the call says nothing about the dependency.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: b.onStateChange,
	})
}

// onStateChange runs under gobreaker's lock and must not call back into it.
func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	f, t := fromGobreaker(from), fromGobreaker(to)

	b.stateMu.Lock()
	switch t {
	case StateOpen:
		b.openedAt = time.Now().UTC()
	case StateClosed:
		b.openedAt = time.Time{}
	}
	b.stateMu.Unlock()

	updateStateMetric(name, t)

	if t == StateOpen {
		b.log.Warnw("circuit breaker opened", "from", f.String(), "to", t.String())
		return
	}
	b.log.Infow("circuit breaker state changed", "from", f.String(), "to", t.String())
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) current() *gobreaker.CircuitBreaker {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cb
}

func (b *Breaker) State() State {
	return fromGobreaker(b.current().State())
}

// Execute runs fn under the breaker with the per-call timeout applied.
// Rejections are returned as BREAKER_REJECTION, other failures as
// TRANSIENT_DEPENDENCY_FAILURE unless fn already returned a taxonomy error.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	cb := b.current()

	if cb.State() != gobreaker.StateClosed {
		if !b.trial.TryLock() {
			return nil, b.reject(gobreaker.ErrTooManyRequests)
		}
		defer b.trial.Unlock()
	}

	result, err := cb.Execute(func() (interface{}, error) {
		callCtx := ctx
		if b.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
			defer cancel()
		}
		return fn(callCtx)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, b.reject(err)
	}

	b.recordRequest(err == nil)
	if err != nil {
		return nil, b.classify(err)
	}
	return result, nil
}

func (b *Breaker) reject(cause error) error {
	metrics.CircuitBreakerRejections.WithLabelValues(b.name).Inc()
	return apperrors.ErrBreakerRejection.
		WithDetail("dependency", b.name).
		WithCause(cause)
}

func (b *Breaker) classify(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.ErrTransientDependency.
		WithDetail("dependency", b.name).
		WithCause(err)
}

func (b *Breaker) recordRequest(success bool) {
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, b.State().String()).Inc()
	if !success {
		metrics.CircuitBreakerFailures.WithLabelValues(b.name).Inc()
	}
}

// Reset forces the breaker back to CLOSED with cleared counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.cb.State()
	b.cb = b.newGobreaker()
	b.mu.Unlock()

	b.stateMu.Lock()
	b.openedAt = time.Time{}
	b.stateMu.Unlock()

	updateStateMetric(b.name, StateClosed)
	b.log.Infow("circuit breaker reset", "from", fromGobreaker(from).String())
}

func (b *Breaker) Snapshot() Snapshot {
	cb := b.current()
	state := fromGobreaker(cb.State())
	counts := cb.Counts()

	b.stateMu.Lock()
	openedAt := b.openedAt
	b.stateMu.Unlock()

	snap := Snapshot{
		Name:                 b.name,
		State:                state.String(),
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
	if !openedAt.IsZero() {
		snap.OpenedAt = &openedAt
	}
	return snap
}

// Call is the typed form of Breaker.Execute.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := b.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	v, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return v, nil
}

func updateStateMetric(name string, state State) {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
