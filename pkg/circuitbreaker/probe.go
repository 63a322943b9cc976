package circuitbreaker

import (
	"context"
	"time"
)

const DefaultProbeInterval = 30 * time.Second

// Probe closes an OPEN breaker early once check succeeds, instead of
// waiting out the full open timeout.
type Probe struct {
	breaker  *Breaker
	check    func(ctx context.Context) error
	interval time.Duration
}

func NewProbe(b *Breaker, check func(ctx context.Context) error, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Probe{breaker: b, check: check, interval: interval}
}

// Run ticks until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick reports whether the breaker was reset.
func (p *Probe) Tick(ctx context.Context) bool {
	if p.breaker.State() != StateOpen {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	if err := p.check(ctx); err != nil {
		p.breaker.log.Debugw("Recovery probe failed", "error", err)
		return false
	}

	p.breaker.Reset()
	p.breaker.log.Infow("Circuit breaker reset by recovery probe")
	return true
}
