package httpx

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"
)

// apiError is the JSON error body returned by every endpoint.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// RenderError maps an application error to its HTTP status and writes the
// JSON error body. Unknown errors render as 500 without leaking internals.
func RenderError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		WriteJSON(w, statusForCode(appErr.Code), apiError{
			Error:   string(appErr.Code),
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		WriteJSON(w, http.StatusGatewayTimeout, apiError{
			Error: string(apperrors.ErrCodeTimeout), Message: "request timed out",
		})
		return
	}

	WriteJSON(w, http.StatusInternalServerError, apiError{
		Error: string(apperrors.ErrCodeInternal), Message: "internal server error",
	})
}

func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict, apperrors.ErrCodeForeignKey:
		return http.StatusConflict
	case apperrors.ErrCodeProvider:
		return http.StatusBadGateway
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
