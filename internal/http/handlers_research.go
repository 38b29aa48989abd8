package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/service"
)

// defaultSSEHeartbeat is the idle-comment interval that keeps proxies from
// dropping event streams during long reasoning gaps.
const defaultSSEHeartbeat = 15 * time.Second

// ResearchHandlers provides HTTP handlers for the research pipeline.
type ResearchHandlers struct {
	Svc *service.ResearchService

	// Heartbeat overrides the SSE keep-alive interval; zero means the default.
	Heartbeat time.Duration
}

// createResearchRequest accepts both documented shapes: topic-driven
// `{prompt, businessId}` and URL-driven `{businessId, urls, researchTopic}`.
type createResearchRequest struct {
	BusinessID    string   `json:"businessId"    validate:"required"`
	UserID        string   `json:"userId"`
	Prompt        string   `json:"prompt"`
	ResearchTopic string   `json:"researchTopic"`
	URLs          []string `json:"urls"          validate:"omitempty,dive,url"`
}

func (req *createResearchRequest) topic() string {
	if req.ResearchTopic != "" {
		return req.ResearchTopic
	}
	return req.Prompt
}

type createResearchResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// Create enqueues a research job and acknowledges immediately; the pipeline
// runs asynchronously.
func (h *ResearchHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createResearchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: err})
		return
	}

	job, err := h.Svc.Create(r.Context(), &model.CreateResearchJobParams{
		BusinessID: req.BusinessID,
		UserID:     req.UserID,
		Topic:      req.topic(),
		SourceURLs: req.URLs,
	})
	if err != nil {
		RenderError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, createResearchResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	})
}

// Get returns a research job with its status, result, and cost.
func (h *ResearchHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := PathUUID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		RenderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Events streams a job's progress as server-sent events. The persisted
// timeline replays first so reconnecting clients see everything; the
// subscription is opened before the replay so no event falls between the
// two. Already-terminal jobs get the replay and an immediate close.
func (h *ResearchHandlers) Events(w http.ResponseWriter, r *http.Request) {
	jobID, ok := PathUUID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.Svc.Get(r.Context(), jobID)
	if err != nil {
		RenderError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var live <-chan model.StageEvent
	if !job.Status.Terminal() {
		ch, cancel, subErr := h.Svc.Subscribe(r.Context(), jobID)
		if subErr != nil {
			RenderError(w, subErr)
			return
		}
		defer cancel()
		live = ch
	}

	history, err := h.Svc.Timeline(r.Context(), jobID)
	if err != nil {
		RenderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for i := range history {
		writeSSE(w, &history[i])
	}
	flusher.Flush()

	if live == nil {
		return
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultSSEHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-live:
			if !open {
				return
			}
			writeSSE(w, &ev)
			flusher.Flush()
			if ev.Step == model.StepDone || ev.Step == model.StepError {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev *model.StageEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Step, data)
}
