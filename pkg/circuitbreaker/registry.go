package circuitbreaker

import (
	"fmt"
	"sort"

	"txindexer/internal/logger"
)

const (
	NameSearch      = "search"
	NameAudit       = "audit"
	NameIdempotency = "idempotency"
	NameDeadLetter  = "deadletter"
)

// Registry owns one breaker per dependency for the life of the process.
// It is built once at startup and passed to every component that needs it.
type Registry struct {
	breakers map[string]*Breaker
}

func NewRegistry(cfg Config, log logger.Logger, names ...string) *Registry {
	if len(names) == 0 {
		names = []string{NameSearch, NameAudit, NameIdempotency, NameDeadLetter}
	}

	r := &Registry{breakers: make(map[string]*Breaker, len(names))}
	for _, name := range names {
		r.breakers[name] = NewBreaker(name, cfg, log)
	}
	return r
}

func (r *Registry) Get(name string) (*Breaker, bool) {
	b, ok := r.breakers[name]
	return b, ok
}

// MustGet panics on unknown names; use it only for the fixed dependency set.
func (r *Registry) MustGet(name string) *Breaker {
	b, ok := r.breakers[name]
	if !ok {
		panic(fmt.Sprintf("circuit breaker %q is not registered", name))
	}
	return b
}

func (r *Registry) Reset(name string) error {
	b, ok := r.breakers[name]
	if !ok {
		return fmt.Errorf("circuit breaker %q is not registered", name)
	}
	b.Reset()
	return nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Snapshots() []Snapshot {
	names := r.Names()
	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		out = append(out, r.breakers[name].Snapshot())
	}
	return out
}
