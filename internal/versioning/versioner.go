package versioning

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"txindexer/internal/logger"
	"txindexer/internal/search"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/metrics"
	"txindexer/pkg/models"
)

// Decision is the outcome of versioning one event.
type Decision struct {
	Version int64
	Apply   bool
	// Remove marks the document as a tombstone.
	Remove bool
}

// Lookup reads the version currently held by the search store.
type Lookup interface {
	GetVersion(ctx context.Context, id string) (search.StoredVersion, error)
}

type entry struct {
	version   int64
	eventTime time.Time
}

type Versioner struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, entry]
	lookup Lookup
	log    logger.Logger
}

func NewVersioner(size int, lookup Lookup, log logger.Logger) (*Versioner, error) {
	if size <= 0 {
		size = 100000
	}
	if log == nil {
		log = logger.NopLogger()
	}
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Versioner{cache: cache, lookup: lookup, log: log}, nil
}

// VersionFor assigns the next version for docID. explicit is the
// producer-assigned version, zero when absent. A store lookup failure is
// returned as a transient error and leaves the cache untouched.
func (v *Versioner) VersionFor(ctx context.Context, docID string, eventType models.EventType, eventTime time.Time, explicit int64) (Decision, error) {
	current, known, err := v.current(ctx, docID)
	if err != nil {
		return Decision{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// Another caller may have advanced the entry while the lookup ran.
	if cached, ok := v.cache.Get(docID); ok && cached.version > current.version {
		current, known = cached, true
	}

	decision := decide(current, known, eventType, eventTime, explicit)
	if !decision.Apply {
		v.log.Debugw("Skipping stale event",
			"document_id", docID,
			"event_type", string(eventType),
			"current_version", current.version,
			"explicit_version", explicit,
		)
		return decision, nil
	}

	next := entry{version: decision.Version, eventTime: current.eventTime}
	if eventTime.After(next.eventTime) {
		next.eventTime = eventTime
	}
	v.cache.Add(docID, next)
	metrics.SetVersionCacheSize(v.cache.Len())
	return decision, nil
}

func decide(current entry, known bool, eventType models.EventType, eventTime time.Time, explicit int64) Decision {
	remove := eventType == models.EventDeleted

	if explicit > 0 {
		if explicit < current.version {
			return Decision{Version: current.version}
		}
		return Decision{Version: explicit, Apply: true, Remove: remove}
	}

	if known && !eventTime.IsZero() && eventTime.Before(current.eventTime) {
		return Decision{Version: current.version}
	}

	if !known && eventType == models.EventCreated {
		return Decision{Version: 1, Apply: true}
	}
	return Decision{Version: current.version + 1, Apply: true, Remove: remove}
}

func (v *Versioner) current(ctx context.Context, docID string) (entry, bool, error) {
	if cached, ok := v.cache.Get(docID); ok {
		return cached, true, nil
	}
	if v.lookup == nil {
		return entry{}, false, nil
	}

	stored, err := v.lookup.GetVersion(ctx, docID)
	if err != nil {
		if apperrors.IsRejection(err) || apperrors.IsTransient(err) {
			return entry{}, false, err
		}
		return entry{}, false, apperrors.Wrap(err, apperrors.ErrTransientDependency.WithDetail("document_id", docID))
	}
	if !stored.Found {
		return entry{}, false, nil
	}
	return entry{version: stored.Version, eventTime: stored.EventTime}, true, nil
}

// Forget drops the cached entry for docID so the next event re-reads the store.
func (v *Versioner) Forget(docID string) {
	v.cache.Remove(docID)
	metrics.SetVersionCacheSize(v.cache.Len())
}

// Purge drops every cached entry. Called when partitions are reassigned,
// since another instance may have written those documents meanwhile.
func (v *Versioner) Purge() {
	v.cache.Purge()
	metrics.SetVersionCacheSize(0)
}

func (v *Versioner) Len() int {
	return v.cache.Len()
}
