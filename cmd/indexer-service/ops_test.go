package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txindexer/internal/logger"
	"txindexer/internal/pipeline"
	"txindexer/pkg/circuitbreaker"
	"txindexer/pkg/health"
)

type stubChecks struct{ status health.Status }

func (s stubChecks) Check(ctx context.Context) health.Health {
	return health.Health{Status: s.status, Timestamp: time.Now(), Checks: map[string]health.CheckResult{}}
}

type stubPartitions []pipeline.PartitionStatus

func (s stubPartitions) Partitions() []pipeline.PartitionStatus { return s }

func newTestRegistry() *circuitbreaker.Registry {
	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 1
	return circuitbreaker.NewRegistry(cfg, logger.NopLogger())
}

func TestHealthIncludesBreakersAndPartitions(t *testing.T) {
	breakers := newTestRegistry()
	parts := stubPartitions{{Partition: 0, State: "POLLING"}}
	h := newOpsHandler(stubChecks{status: health.StatusDegraded}, breakers, parts, logger.NopLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status     string                     `json:"status"`
		Breakers   []circuitbreaker.Snapshot  `json:"circuit_breakers"`
		Partitions []pipeline.PartitionStatus `json:"partitions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Len(t, body.Breakers, 4)
	assert.Equal(t, parts[0], body.Partitions[0])
}

func TestHealthUnhealthyReturns503(t *testing.T) {
	h := newOpsHandler(stubChecks{status: health.StatusUnhealthy}, newTestRegistry(), stubPartitions{}, logger.NopLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestResetBreaker(t *testing.T) {
	breakers := newTestRegistry()
	b := breakers.MustGet(circuitbreaker.NameSearch)
	_, _ = b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("down")
	})
	require.Equal(t, circuitbreaker.StateOpen, b.State())

	h := newOpsHandler(stubChecks{status: health.StatusHealthy}, breakers, stubPartitions{}, logger.NopLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/breakers/search/reset", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, circuitbreaker.StateClosed, b.State())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/breakers/unknown/reset", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetRequiresPost(t *testing.T) {
	h := newOpsHandler(stubChecks{status: health.StatusHealthy}, newTestRegistry(), stubPartitions{}, logger.NopLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/breakers/search/reset", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
