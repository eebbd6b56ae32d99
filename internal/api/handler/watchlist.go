package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/pricewatch/internal/api/middleware"
	"github.com/kiranshivaraju/pricewatch/internal/api/response"
	"github.com/kiranshivaraju/pricewatch/internal/pager"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

const dateLayout = "2006-01-02"

type submitRequest struct {
	Marcas           []string `json:"marcas"`
	Categorias       []string `json:"categorias"`
	Generos          []string `json:"generos"`
	Tiendas          []string `json:"tiendas"`
	Search           string   `json:"search"`
	Desde            string   `json:"desde"`
	Hasta            string   `json:"hasta"`
	RitmoVentanaDias int      `json:"ritmoVentanaDias"`
	CycleDays        int      `json:"cycleDays"`
	CreatedBy        string   `json:"createdBy"`
}

type submitResponse struct {
	JobID   uuid.UUID `json:"jobId"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

type cancelResponse struct {
	JobID   uuid.UUID `json:"jobId"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

// NewSubmitJobHandler returns the handler for POST /api/v1/watchlist/jobs.
// The job is created pending and runs in the background; the response is 202.
func NewSubmitJobHandler(svc WatchlistJobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}

		var req submitRequest
		if !decodeBody(w, r, &req) {
			return
		}

		params := models.WatchlistParams{
			Marcas:           trimAll(req.Marcas),
			Categorias:       trimAll(req.Categorias),
			Generos:          trimAll(req.Generos),
			Tiendas:          trimAll(req.Tiendas),
			Search:           strings.TrimSpace(req.Search),
			RitmoVentanaDias: req.RitmoVentanaDias,
			CycleDays:        req.CycleDays,
		}
		var bad []string
		var err error
		if params.Desde, err = parseDate(req.Desde); err != nil {
			bad = append(bad, "desde")
		}
		if params.Hasta, err = parseDate(req.Hasta); err != nil {
			bad = append(bad, "hasta")
		}
		if len(bad) > 0 {
			invalidFields(w, bad)
			return
		}

		createdBy := creator(r, req.CreatedBy)
		job, err := svc.Submit(r.Context(), tenantID, params, createdBy)
		if err != nil {
			writeError(w, r, err, "")
			return
		}

		w.Header().Set("Location", "/api/v1/watchlist/jobs/"+job.ID.String())
		response.Accepted(w, submitResponse{
			JobID:   job.ID,
			Status:  job.Status,
			Message: "Watchlist job queued; poll the job status until it completes",
		})
	}
}

// NewJobStatusHandler returns the handler for GET /api/v1/watchlist/jobs/{jobID}.
func NewJobStatusHandler(svc WatchlistJobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}
		jobID, ok := jobIDFrom(w, r)
		if !ok {
			return
		}

		view, err := svc.Status(r.Context(), jobID, tenantID)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		response.JSON(w, view)
	}
}

// NewCancelJobHandler returns the handler for POST /api/v1/watchlist/jobs/{jobID}/cancel.
func NewCancelJobHandler(svc WatchlistJobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}
		jobID, ok := jobIDFrom(w, r)
		if !ok {
			return
		}

		if err := svc.Cancel(r.Context(), jobID, tenantID); err != nil {
			writeError(w, r, err, "CANNOT_CANCEL")
			return
		}
		response.JSON(w, cancelResponse{
			JobID:   jobID,
			Status:  models.JobStatusCancelled,
			Message: "Watchlist job cancelled",
		})
	}
}

// NewJobResultsHandler returns the handler for GET /api/v1/watchlist/jobs/{jobID}/results.
// Query parameters: page, pageSize, sortColumn, sortDirection.
func NewJobResultsHandler(svc WatchlistJobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}
		jobID, ok := jobIDFrom(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		req := pager.Request{
			SortColumn:    q.Get("sortColumn"),
			SortDirection: strings.ToLower(q.Get("sortDirection")),
		}
		var bad []string
		var err error
		if req.Page, err = queryInt(q.Get("page")); err != nil {
			bad = append(bad, "page")
		}
		if req.PageSize, err = queryInt(q.Get("pageSize")); err != nil {
			bad = append(bad, "pageSize")
		}
		if len(bad) > 0 {
			invalidFields(w, bad)
			return
		}

		view, err := svc.Results(r.Context(), jobID, tenantID, req)
		if err != nil {
			writeError(w, r, err, "RESULTS_NOT_AVAILABLE")
			return
		}
		response.JSON(w, view)
	}
}

// creator prefers the explicit createdBy and falls back to the API key name.
func creator(r *http.Request, explicit string) *string {
	if s := strings.TrimSpace(explicit); s != "" {
		return &s
	}
	if name, ok := mw.GetKeyName(r); ok {
		return &name
	}
	return nil
}

// parseDate accepts a calendar date or an RFC3339 timestamp. Empty is nil.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
	}
	t = t.UTC()
	return &t, nil
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
