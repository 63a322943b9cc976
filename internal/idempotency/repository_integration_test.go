//go:build integration

package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txindexer/internal/testinfra"
)

func TestRedisRepository_MarkAndExists(t *testing.T) {
	client := testinfra.Redis(t)
	repo := NewRepository(client)
	ctx := context.Background()

	found, err := repo.Exists(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.MarkMany(ctx, []string{"fp-1", "fp-2"}, time.Now(), time.Hour))

	for _, fp := range []string{"fp-1", "fp-2"} {
		found, err := repo.Exists(ctx, fp)
		require.NoError(t, err)
		assert.True(t, found)
	}

	raw, err := client.Get(ctx, "message:processed:fp-1").Bytes()
	require.NoError(t, err)
	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.NotEmpty(t, m["processed_at"])

	ttl, err := client.TTL(ctx, "message:processed:fp-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestRedisRepository_MarkerExpires(t *testing.T) {
	client := testinfra.Redis(t)
	repo := NewRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.MarkMany(ctx, []string{"short"}, time.Now(), time.Second))
	time.Sleep(2 * time.Second)

	found, err := repo.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found)
}
