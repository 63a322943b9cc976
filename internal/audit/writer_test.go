package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txindexer/pkg/circuitbreaker"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/models"
)

type fakeRepo struct {
	mu      sync.Mutex
	upserts []string
	deletes []string
	ops     []string
	err     error
	block   chan struct{}
}

func (f *fakeRepo) Upsert(ctx context.Context, doc models.IndexedDocument) error {
	if f.block != nil {
		<-f.block
	}
	if doc.ID == "panic" {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, doc.ID)
	f.ops = append(f.ops, "upsert "+doc.ID)
	return f.err
}

func (f *fakeRepo) Delete(ctx context.Context, id string, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	f.ops = append(f.ops, "delete "+id)
	return f.err
}

func (f *fakeRepo) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.upserts...), append([]string(nil), f.deletes...)
}

func entry(id string, eventType models.EventType) Entry {
	return Entry{Document: models.IndexedDocument{ID: id, Version: 1}, EventType: eventType}
}

func TestWriterAppliesUpsertsAndDeletes(t *testing.T) {
	repo := &fakeRepo{}
	w := NewWriter(repo, Config{QueueSize: 10, Workers: 2}, nil)
	w.Start()

	assert.True(t, w.Enqueue(entry("a", models.EventCreated)))
	assert.True(t, w.Enqueue(entry("b", models.EventUpdated)))
	assert.True(t, w.Enqueue(entry("c", models.EventDeleted)))

	require.NoError(t, w.Close(context.Background()))

	upserts, deletes := repo.snapshot()
	assert.ElementsMatch(t, []string{"a", "b"}, upserts)
	assert.Equal(t, []string{"c"}, deletes)
}

func TestWriterDropsWhenFull(t *testing.T) {
	repo := &fakeRepo{block: make(chan struct{})}
	w := NewWriter(repo, Config{QueueSize: 1, Workers: 1}, nil)
	w.Start()

	require.True(t, w.Enqueue(entry("a", models.EventCreated)))
	// The worker holds "a"; wait until the queue slot is free again.
	require.Eventually(t, func() bool { return w.Len() == 0 }, time.Second, time.Millisecond)

	assert.True(t, w.Enqueue(entry("b", models.EventCreated)))
	assert.False(t, w.Enqueue(entry("c", models.EventCreated)))

	close(repo.block)
	require.NoError(t, w.Close(context.Background()))

	upserts, _ := repo.snapshot()
	assert.ElementsMatch(t, []string{"a", "b"}, upserts)
}

func TestWriterKeepsPerDocumentOrder(t *testing.T) {
	repo := &fakeRepo{block: make(chan struct{})}
	w := NewWriter(repo, Config{QueueSize: 16, Workers: 4}, nil)
	w.Start()

	updated := Entry{Document: models.IndexedDocument{ID: "tx-1", Version: 2}, EventType: models.EventUpdated}
	deleted := Entry{Document: models.IndexedDocument{ID: "tx-1", Version: 3}, EventType: models.EventDeleted}
	require.True(t, w.Enqueue(updated))
	require.True(t, w.Enqueue(deleted))

	// The upsert is held; the delete must wait behind it on the same worker.
	assert.Never(t, func() bool {
		_, deletes := repo.snapshot()
		return len(deletes) > 0
	}, 50*time.Millisecond, time.Millisecond)

	close(repo.block)
	require.NoError(t, w.Close(context.Background()))

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, []string{"upsert tx-1", "delete tx-1"}, repo.ops)
}

func TestWriterRejectsAfterClose(t *testing.T) {
	w := NewWriter(&fakeRepo{}, Config{}, nil)
	w.Start()
	require.NoError(t, w.Close(context.Background()))
	assert.False(t, w.Enqueue(entry("a", models.EventCreated)))
}

func TestWriterSurvivesFailuresAndPanics(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	w := NewWriter(repo, Config{QueueSize: 4, Workers: 1}, nil)
	w.Start()

	assert.True(t, w.Enqueue(entry("panic", models.EventCreated)))
	assert.True(t, w.Enqueue(entry("a", models.EventCreated)))
	require.NoError(t, w.Close(context.Background()))

	upserts, _ := repo.snapshot()
	assert.Equal(t, []string{"a"}, upserts)
}

func TestCircuitBreakerRepositoryIgnoresRowRejections(t *testing.T) {
	repo := &fakeRepo{err: apperrors.ErrValidation.WithMessage("invalid uuid")}
	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 1
	cb := circuitbreaker.NewBreaker("audit-test", cfg, nil)
	guarded := NewCircuitBreakerRepository(repo, cb)

	err := guarded.Upsert(context.Background(), models.IndexedDocument{ID: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())

	repo.err = errors.New("connection reset")
	require.Error(t, guarded.Delete(context.Background(), "x", 1))
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	err = guarded.Upsert(context.Background(), models.IndexedDocument{ID: "y"})
	assert.True(t, apperrors.IsRejection(err))
}
