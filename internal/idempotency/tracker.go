package idempotency

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"txindexer/internal/constants"
	"txindexer/internal/logger"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/metrics"
)

type Config struct {
	LocalCacheSize int
	TTL            time.Duration
}

// Tracker answers "was this fingerprint already written?" from a bounded
// local recency set first and the distributed store second. Any distributed
// failure is answered with "not processed"; the versioned write downstream
// makes a replay harmless.
type Tracker struct {
	local  *expirable.LRU[string, struct{}]
	remote Repository
	ttl    time.Duration
	log    logger.Logger
	now    func() time.Time
	warn   rate.Sometimes
}

// NewTracker accepts a nil remote for a local-only tracker.
func NewTracker(cfg Config, remote Repository, log logger.Logger) *Tracker {
	if cfg.TTL <= 0 {
		cfg.TTL = constants.DefaultProcessedTTL
	}
	if cfg.LocalCacheSize <= 0 {
		cfg.LocalCacheSize = 100000
	}
	if log == nil {
		log = logger.NopLogger()
	}

	return &Tracker{
		local:  expirable.NewLRU[string, struct{}](cfg.LocalCacheSize, nil, cfg.TTL),
		remote: remote,
		ttl:    cfg.TTL,
		log:    log,
		now:    time.Now,
		warn:   rate.Sometimes{Interval: 10 * time.Second},
	}
}

func (t *Tracker) TTL() time.Duration {
	return t.ttl
}

func (t *Tracker) IsProcessed(ctx context.Context, fingerprint string) bool {
	if t.local.Contains(fingerprint) {
		return true
	}
	if t.remote == nil {
		return false
	}

	found, err := t.remote.Exists(ctx, fingerprint)
	if err != nil {
		t.failOpen(ctx, "check", err)
		return false
	}
	if found {
		t.local.Add(fingerprint, struct{}{})
	}
	return found
}

func (t *Tracker) MarkProcessed(ctx context.Context, fingerprint string, ttl time.Duration) error {
	return t.MarkProcessedMany(ctx, []string{fingerprint}, ttl)
}

// MarkProcessedMany always records the local tier. A distributed failure is
// logged and returned but must not hold back an offset commit.
func (t *Tracker) MarkProcessedMany(ctx context.Context, fingerprints []string, ttl time.Duration) error {
	if len(fingerprints) == 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = t.ttl
	}

	for _, fp := range fingerprints {
		t.local.Add(fp, struct{}{})
	}
	metrics.SetIdempotencyLocalCacheSize(t.local.Len())

	if t.remote == nil {
		return nil
	}

	if err := t.remote.MarkMany(ctx, fingerprints, t.now(), ttl); err != nil {
		t.failOpen(ctx, "mark", err)
		return err
	}
	return nil
}

func (t *Tracker) failOpen(ctx context.Context, op string, err error) {
	metrics.IncFallback("idempotency", constants.FallbackStrategyFailOpen, apperrors.Classify(err))
	t.warn.Do(func() {
		t.log.WarnwCtx(ctx, "idempotency store unavailable, continuing without it",
			"operation", op,
			"error", err,
		)
	})
}
