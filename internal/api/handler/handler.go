// Package handler implements the HTTP handlers of the pricewatch API. Handlers
// decode and validate the request shape, call a service and map its errors onto
// the response envelope.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/pricewatch/internal/api/middleware"
	"github.com/kiranshivaraju/pricewatch/internal/api/response"
	"github.com/kiranshivaraju/pricewatch/internal/elasticity"
	"github.com/kiranshivaraju/pricewatch/internal/jobs"
	"github.com/kiranshivaraju/pricewatch/internal/pager"
	"github.com/kiranshivaraju/pricewatch/internal/simulation"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

const maxBodyBytes = 1 << 20

// WatchlistJobs is the job lifecycle the watchlist handlers drive.
type WatchlistJobs interface {
	Submit(ctx context.Context, tenantID uuid.UUID, params models.WatchlistParams, createdBy *string) (*models.Job, error)
	Status(ctx context.Context, id, tenantID uuid.UUID) (*jobs.StatusView, error)
	Cancel(ctx context.Context, id, tenantID uuid.UUID) error
	Results(ctx context.Context, id, tenantID uuid.UUID, req pager.Request) (*jobs.ResultsView, error)
}

// Simulator runs a single-SKU price simulation.
type Simulator interface {
	Simulate(ctx context.Context, req simulation.SimulateRequest) (*models.SimulationResult, error)
}

var _ WatchlistJobs = (*jobs.Manager)(nil)
var _ Simulator = (*simulation.Service)(nil)

func tenantFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
	}
	return tenantID, ok
}

func jobIDFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID format", nil)
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody reads a JSON object into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

func invalidFields(w http.ResponseWriter, fields []string) {
	response.InvalidFields(w, fmt.Sprintf("Invalid request parameters: %v", fields), fields)
}

// writeError maps service errors to the response envelope. conflictCode is the
// code used when the job is in the wrong state for the operation.
func writeError(w http.ResponseWriter, r *http.Request, err error, conflictCode string) {
	var (
		jobFields *jobs.ValidationError
		simFields *simulation.ValidationError
		state     *jobs.InvalidStateError
	)
	switch {
	case errors.As(err, &jobFields):
		invalidFields(w, jobFields.Fields)
	case errors.As(err, &simFields):
		invalidFields(w, simFields.Fields)
	case errors.As(err, &state):
		response.Error(w, http.StatusConflict, conflictCode, state.Error(),
			map[string]string{"status": state.Status})
	case errors.Is(err, jobs.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
	case errors.Is(err, simulation.ErrSKUNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "SKU not found", nil)
	case errors.Is(err, jobs.ErrShuttingDown):
		response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN",
			"The server is shutting down and not accepting jobs", nil)
	case errors.Is(err, elasticity.ErrEstimatorUnreachable),
		errors.Is(err, elasticity.ErrEstimatorTimeout),
		errors.Is(err, elasticity.ErrEstimatorBadResponse):
		response.Error(w, http.StatusBadGateway, "ELASTICITY_UNAVAILABLE",
			"The elasticity estimator is not available", nil)
	default:
		slog.Error("request failed",
			"request_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
