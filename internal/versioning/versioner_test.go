package versioning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txindexer/internal/search"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/models"
)

type fakeLookup struct {
	docs  map[string]search.StoredVersion
	err   error
	calls int
}

func (f *fakeLookup) GetVersion(ctx context.Context, id string) (search.StoredVersion, error) {
	f.calls++
	if f.err != nil {
		return search.StoredVersion{}, f.err
	}
	return f.docs[id], nil
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newVersioner(t *testing.T, lookup Lookup) *Versioner {
	t.Helper()
	v, err := NewVersioner(16, lookup, nil)
	require.NoError(t, err)
	return v
}

func TestCreatedOnUnknownDocumentStartsAtOne(t *testing.T) {
	v := newVersioner(t, &fakeLookup{})

	d, err := v.VersionFor(context.Background(), "tx-1", models.EventCreated, base, 0)
	require.NoError(t, err)
	assert.Equal(t, Decision{Version: 1, Apply: true}, d)
}

func TestDerivedVersionsIncrease(t *testing.T) {
	v := newVersioner(t, &fakeLookup{})
	ctx := context.Background()

	_, err := v.VersionFor(ctx, "tx-1", models.EventCreated, base, 0)
	require.NoError(t, err)

	d, err := v.VersionFor(ctx, "tx-1", models.EventUpdated, base.Add(time.Second), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Version)
	assert.True(t, d.Apply)

	d, err = v.VersionFor(ctx, "tx-1", models.EventDeleted, base.Add(2*time.Second), 0)
	require.NoError(t, err)
	assert.Equal(t, Decision{Version: 3, Apply: true, Remove: true}, d)
}

func TestOlderEventIsSkipped(t *testing.T) {
	v := newVersioner(t, &fakeLookup{})
	ctx := context.Background()

	_, err := v.VersionFor(ctx, "tx-1", models.EventUpdated, base, 0)
	require.NoError(t, err)

	d, err := v.VersionFor(ctx, "tx-1", models.EventUpdated, base.Add(-time.Minute), 0)
	require.NoError(t, err)
	assert.False(t, d.Apply)
	assert.Equal(t, int64(1), d.Version)
}

func TestExplicitVersionBelowCurrentAfterDeleteIsSkipped(t *testing.T) {
	v := newVersioner(t, &fakeLookup{})
	ctx := context.Background()

	d, err := v.VersionFor(ctx, "tx-1", models.EventDeleted, base, 4)
	require.NoError(t, err)
	assert.Equal(t, Decision{Version: 4, Apply: true, Remove: true}, d)

	d, err = v.VersionFor(ctx, "tx-1", models.EventUpdated, base.Add(time.Second), 3)
	require.NoError(t, err)
	assert.False(t, d.Apply)
	assert.Equal(t, int64(4), d.Version)
}

func TestExplicitVersionEqualToCurrentApplies(t *testing.T) {
	lookup := &fakeLookup{docs: map[string]search.StoredVersion{
		"tx-1": {Found: true, Version: 5, EventTime: base},
	}}
	v := newVersioner(t, lookup)

	d, err := v.VersionFor(context.Background(), "tx-1", models.EventUpdated, base, 5)
	require.NoError(t, err)
	assert.True(t, d.Apply)
	assert.Equal(t, int64(5), d.Version)
}

func TestWarmsFromStoreOnce(t *testing.T) {
	lookup := &fakeLookup{docs: map[string]search.StoredVersion{
		"tx-1": {Found: true, Version: 7, EventTime: base},
	}}
	v := newVersioner(t, lookup)
	ctx := context.Background()

	d, err := v.VersionFor(ctx, "tx-1", models.EventUpdated, base.Add(time.Second), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), d.Version)

	d, err = v.VersionFor(ctx, "tx-1", models.EventUpdated, base.Add(2*time.Second), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), d.Version)
	assert.Equal(t, 1, lookup.calls)
}

func TestRecreateAfterStoredDeleteContinuesVersioning(t *testing.T) {
	lookup := &fakeLookup{docs: map[string]search.StoredVersion{
		"tx-1": {Found: true, Version: 3, EventTime: base, Deleted: true},
	}}
	v := newVersioner(t, lookup)

	d, err := v.VersionFor(context.Background(), "tx-1", models.EventCreated, base.Add(time.Second), 0)
	require.NoError(t, err)
	assert.Equal(t, Decision{Version: 4, Apply: true}, d)
}

func TestLookupFailureIsTransient(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("connection refused")}
	v := newVersioner(t, lookup)

	_, err := v.VersionFor(context.Background(), "tx-1", models.EventUpdated, base, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
	assert.Equal(t, 0, v.Len())
}

func TestLookupRejectionPassesThrough(t *testing.T) {
	lookup := &fakeLookup{err: apperrors.ErrBreakerRejection.WithDetail("dependency", "search")}
	v := newVersioner(t, lookup)

	_, err := v.VersionFor(context.Background(), "tx-1", models.EventUpdated, base, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsRejection(err))
}

func TestForgetRereadsStore(t *testing.T) {
	lookup := &fakeLookup{docs: map[string]search.StoredVersion{}}
	v := newVersioner(t, lookup)
	ctx := context.Background()

	_, err := v.VersionFor(ctx, "tx-1", models.EventCreated, base, 0)
	require.NoError(t, err)

	v.Forget("tx-1")
	lookup.docs["tx-1"] = search.StoredVersion{Found: true, Version: 10, EventTime: base}

	d, err := v.VersionFor(ctx, "tx-1", models.EventUpdated, base.Add(time.Second), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(11), d.Version)
	assert.Equal(t, 2, lookup.calls)
}

func TestPurgeDropsEveryEntry(t *testing.T) {
	lookup := &fakeLookup{docs: map[string]search.StoredVersion{}}
	v := newVersioner(t, lookup)
	ctx := context.Background()

	for _, id := range []string{"tx-1", "tx-2"} {
		_, err := v.VersionFor(ctx, id, models.EventCreated, base, 0)
		require.NoError(t, err)
	}
	require.Equal(t, 2, v.Len())

	v.Purge()
	assert.Equal(t, 0, v.Len())

	lookup.docs["tx-2"] = search.StoredVersion{Found: true, Version: 4, EventTime: base}
	d, err := v.VersionFor(ctx, "tx-2", models.EventUpdated, base.Add(time.Second), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.Version)
}

func TestVersionsNeverDecrease(t *testing.T) {
	v := newVersioner(t, &fakeLookup{})
	ctx := context.Background()

	events := []struct {
		eventType models.EventType
		offset    time.Duration
		explicit  int64
	}{
		{models.EventCreated, 0, 0},
		{models.EventUpdated, time.Second, 0},
		{models.EventUpdated, -time.Hour, 0},
		{models.EventUpdated, 2 * time.Second, 10},
		{models.EventUpdated, 3 * time.Second, 2},
		{models.EventDeleted, 4 * time.Second, 0},
	}

	var last int64
	for _, e := range events {
		d, err := v.VersionFor(ctx, "tx-1", e.eventType, base.Add(e.offset), e.explicit)
		require.NoError(t, err)
		if d.Apply {
			assert.GreaterOrEqual(t, d.Version, last)
			last = d.Version
		}
	}
	assert.Equal(t, int64(11), last)
}
