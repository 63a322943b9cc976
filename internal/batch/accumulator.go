package batch

import "time"

type Option func(*config)

type config struct {
	now func() time.Time
}

// WithClock replaces time.Now for age tracking.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// Accumulator collects records until either the size or the age trigger
// fires. It is owned by a single partition worker and is not safe for
// concurrent use.
type Accumulator[T any] struct {
	maxSize  int
	maxAge   time.Duration
	now      func() time.Time
	items    []T
	oldestAt time.Time
}

func NewAccumulator[T any](maxSize int, maxAge time.Duration, opts ...Option) *Accumulator[T] {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Accumulator[T]{
		maxSize: maxSize,
		maxAge:  maxAge,
		now:     cfg.now,
		items:   make([]T, 0, maxSize),
	}
}

func (a *Accumulator[T]) Add(item T) {
	if len(a.items) == 0 {
		a.oldestAt = a.now()
	}
	a.items = append(a.items, item)
}

func (a *Accumulator[T]) ShouldFlush(now time.Time) bool {
	if len(a.items) == 0 {
		return false
	}
	if len(a.items) >= a.maxSize {
		return true
	}
	return a.maxAge > 0 && now.Sub(a.oldestAt) >= a.maxAge
}

// Drain hands the buffered records to the caller and resets the accumulator.
func (a *Accumulator[T]) Drain() []T {
	if len(a.items) == 0 {
		return nil
	}
	out := a.items
	a.items = make([]T, 0, a.maxSize)
	a.oldestAt = time.Time{}
	return out
}

func (a *Accumulator[T]) Len() int {
	return len(a.items)
}

// Age is how long the oldest buffered record has waited.
func (a *Accumulator[T]) Age(now time.Time) time.Duration {
	if len(a.items) == 0 {
		return 0
	}
	return now.Sub(a.oldestAt)
}

// Deadline is when the age trigger fires, zero when nothing is buffered.
func (a *Accumulator[T]) Deadline() time.Time {
	if len(a.items) == 0 || a.maxAge <= 0 {
		return time.Time{}
	}
	return a.oldestAt.Add(a.maxAge)
}
