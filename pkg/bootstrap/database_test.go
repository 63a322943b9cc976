package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txindexer/internal/config"
	"txindexer/internal/logger"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host:     "db",
		Port:     5432,
		User:     "indexer",
		Password: "secret",
		DBName:   "transactions",
	})
	assert.Equal(t, "postgres://indexer:secret@db:5432/transactions?sslmode=disable", dsn)
}

func TestOptionalStoresSkippedWhenUnconfigured(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())
	ctx := context.Background()

	rdb, err := dc.InitRedis(ctx)
	require.NoError(t, err)
	assert.Nil(t, rdb)

	db, err := dc.InitPostgreSQL(ctx)
	require.NoError(t, err)
	assert.Nil(t, db)

	mc, err := dc.InitMongoDB(ctx)
	require.NoError(t, err)
	assert.Nil(t, mc)

	assert.Empty(t, dc.ShutdownDatabases(ctx, nil, nil, nil))
}

func TestInitElasticsearchRequiresAddresses(t *testing.T) {
	_, err := InitElasticsearch(context.Background(), config.SearchConfig{}, logger.NopLogger())
	assert.Error(t, err)
}
