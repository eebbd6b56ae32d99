package handler

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/pricewatch/internal/api/response"
	"github.com/kiranshivaraju/pricewatch/internal/simulation"
)

// NewSimulateHandler returns the handler for POST /api/v1/simulations. It is
// synchronous and never creates a job.
func NewSimulateHandler(svc Simulator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenantFrom(w, r); !ok {
			return
		}

		var req simulation.SimulateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.BaseCol = strings.TrimSpace(req.BaseCol)

		result, err := svc.Simulate(r.Context(), req)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		response.JSON(w, result)
	}
}
