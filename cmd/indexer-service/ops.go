package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"txindexer/internal/logger"
	"txindexer/internal/pipeline"
	"txindexer/pkg/circuitbreaker"
	"txindexer/pkg/health"
)

type healthChecker interface {
	Check(ctx context.Context) health.Health
}

type partitionLister interface {
	Partitions() []pipeline.PartitionStatus
}

type healthResponse struct {
	health.Health
	Breakers   []circuitbreaker.Snapshot  `json:"circuit_breakers"`
	Partitions []pipeline.PartitionStatus `json:"partitions"`
}

func newOpsHandler(checks healthChecker, breakers *circuitbreaker.Registry, partitions partitionLister, log logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		h := checks.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, healthResponse{
			Health:     h,
			Breakers:   breakers.Snapshots(),
			Partitions: partitions.Partitions(),
		})
	})

	mux.HandleFunc("POST /breakers/{name}/reset", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if err := breakers.Reset(name); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		log.InfowCtx(r.Context(), "Circuit breaker reset by operator", "breaker", name)
		b := breakers.MustGet(name)
		writeJSON(w, http.StatusOK, b.Snapshot())
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
