package httpx

import (
	"net/http"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/service"
)

// DistributionHandlers provides HTTP handlers for content distribution.
type DistributionHandlers struct {
	Svc *service.DispatchService
}

// Dispatch fans a piece of content out to the requested channels. The
// response always enumerates per-channel outcomes; a request where some
// channels enqueue and others fail still returns 200.
func (h *DistributionHandlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req service.DispatchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.Svc.Dispatch(r.Context(), req)
	if err != nil {
		RenderError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// GetJob returns one distribution job, including its delivery outcome.
func (h *DistributionHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := PathUUID(w, r, "jobID")
	if !ok {
		return
	}
	job, err := h.Svc.GetJob(r.Context(), jobID)
	if err != nil {
		RenderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
