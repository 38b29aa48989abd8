// Package httpx provides the JSON API for the market peak distribution and
// research system.
package httpx

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/service"
)

// validate is the shared request validator. validator.Validate is safe for
// concurrent use.
var validate = validator.New()

// CredentialHandlers provides HTTP handlers for channel credential management.
type CredentialHandlers struct {
	Svc *service.CredentialService
}

type saveCredentialRequest struct {
	BusinessID string            `json:"business_id" validate:"required"`
	Fields     map[string]string `json:"fields"      validate:"required,min=1"`
}

// saveCredentialResponse reports whether the upsert inserted a new row or
// replaced an existing one.
type saveCredentialResponse struct {
	Operation string `json:"operation"`
}

// Save handles PUT-style credential upserts for one (business, channel) pair.
func (h *CredentialHandlers) Save(w http.ResponseWriter, r *http.Request) {
	channel, err := model.ParseChannel(r.PathValue("channel"))
	if err != nil {
		RenderError(w, apperrors.ValidationField("channel", err.Error()))
		return
	}

	var req saveCredentialRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		RenderError(w, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid credential request"))
		return
	}

	created, err := h.Svc.Save(r.Context(), model.SaveCredentialRequest{
		BusinessID: req.BusinessID,
		Channel:    channel,
		Fields:     model.CredentialFields(req.Fields),
	})
	if err != nil {
		RenderError(w, err)
		return
	}

	status := http.StatusOK
	operation := "updated"
	if created {
		status = http.StatusCreated
		operation = "created"
	}
	WriteJSON(w, status, saveCredentialResponse{Operation: operation})
}

// ListByBusiness returns credential summaries for a business. Secret material
// is never included.
func (h *CredentialHandlers) ListByBusiness(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Svc.List(r.Context(), r.PathValue("businessID"))
	if err != nil {
		RenderError(w, err)
		return
	}
	if summaries == nil {
		summaries = []model.CredentialSummary{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"credentials": summaries})
}

// Delete removes a credential by id. Deleting an absent credential still
// returns 204.
func (h *CredentialHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	credentialID, ok := PathUUID(w, r, "credentialID")
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), credentialID); err != nil {
		RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
