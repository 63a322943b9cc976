package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"txindexer/pkg/circuitbreaker"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

// ErrDegraded marks a check failure that reduces service without stopping it.
var ErrDegraded = errors.New("degraded")

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult, len(r.checkers))
	allHealthy := true
	anyDegraded := false

	for _, checker := range r.checkers {
		err := checker.Check(ctx)
		result := CheckResult{
			Timestamp: time.Now(),
		}

		switch {
		case err == nil:
			result.Status = StatusHealthy
		case errors.Is(err, ErrDegraded):
			result.Status = StatusDegraded
			result.Message = err.Error()
			anyDegraded = true
		default:
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			allHealthy = false
		}

		results[checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	} else if anyDegraded {
		overallStatus = StatusDegraded
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// pingChecker adapts a store ping to Checker. Optional stores report
// degraded: the pipeline keeps indexing without them.
type pingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

func (c *pingChecker) Name() string {
	return c.name
}

func (c *pingChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	err := c.ping(ctx)
	switch {
	case err == nil:
		return nil
	case c.optional:
		return fmt.Errorf("%w: %s ping failed: %v", ErrDegraded, c.name, err)
	default:
		return fmt.Errorf("%s ping failed: %w", c.name, err)
	}
}

// NewPostgreSQLChecker covers the audit store.
func NewPostgreSQLChecker(db *sql.DB) Checker {
	return &pingChecker{name: "postgresql", ping: db.PingContext, optional: true}
}

// NewRedisChecker covers the distributed idempotency tier.
func NewRedisChecker(client *redis.Client) Checker {
	return &pingChecker{
		name:     "redis",
		ping:     func(ctx context.Context) error { return client.Ping(ctx).Err() },
		optional: true,
	}
}

func NewMongoDBChecker(client *mongo.Client) Checker {
	return &pingChecker{
		name:     "mongodb",
		ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
		optional: true,
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewElasticsearchChecker is the only hard dependency: without the search
// cluster no offset moves.
func NewElasticsearchChecker(client Pinger) Checker {
	return &pingChecker{name: "elasticsearch", ping: client.Ping}
}

// BreakerChecker reports degraded while the named breaker is not closed.
type BreakerChecker struct {
	breaker *circuitbreaker.Breaker
}

func NewBreakerChecker(breaker *circuitbreaker.Breaker) *BreakerChecker {
	return &BreakerChecker{breaker: breaker}
}

func (c *BreakerChecker) Name() string {
	return "breaker_" + c.breaker.Name()
}

func (c *BreakerChecker) Check(ctx context.Context) error {
	switch state := c.breaker.State(); state {
	case circuitbreaker.StateClosed:
		return nil
	default:
		return fmt.Errorf("%w: circuit breaker %s is %s", ErrDegraded, c.breaker.Name(), state)
	}
}
