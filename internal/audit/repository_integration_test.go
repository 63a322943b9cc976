//go:build integration

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txindexer/internal/testinfra"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/models"
)

func document(id string, version int64, status string) models.IndexedDocument {
	now := time.Now().UTC()
	return models.IndexedDocument{
		ID:              id,
		UserID:          "user-1",
		TransactionType: "card",
		Product:         "Card",
		Status:          status,
		Currency:        "USD",
		Amount:          12.5,
		Metadata:        map[string]interface{}{"merchant": "Starbucks"},
		CreatedAt:       now,
		UpdatedAt:       now,
		SearchContent:   "Card payment 12.5 USD",
		Version:         version,
		EventTimestamp:  now,
	}
}

func TestPostgresRepository_VersionGuardedUpsert(t *testing.T) {
	db := testinfra.Postgres(t)
	repo := NewRepository(db)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, repo.Upsert(ctx, document(id, 2, "pending")))
	require.NoError(t, repo.Upsert(ctx, document(id, 1, "stale")))

	var status string
	var version int64
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT status, doc_version FROM transactions WHERE id = $1`, id).Scan(&status, &version))
	assert.Equal(t, "pending", status)
	assert.Equal(t, int64(2), version)

	require.NoError(t, repo.Upsert(ctx, document(id, 3, "completed")))
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT status FROM transactions WHERE id = $1`, id).Scan(&status))
	assert.Equal(t, "completed", status)

	require.NoError(t, repo.Delete(ctx, id, 4))
	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM transactions WHERE id = $1`, id).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestPostgresRepository_InvalidIDIsValidation(t *testing.T) {
	db := testinfra.Postgres(t)
	repo := NewRepository(db)

	err := repo.Upsert(context.Background(), document("not-a-uuid", 1, "pending"))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}
