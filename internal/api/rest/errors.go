package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/ColisTrack/internal/services/colis"
	"github.com/BearBump/ColisTrack/internal/services/history"
	"github.com/BearBump/ColisTrack/internal/services/notifications"
	"github.com/BearBump/ColisTrack/internal/services/trackings"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

var (
	errMissingUser      = errors.New("X-User-ID header is required")
	errInvalidSignature = errors.New("Invalid signature")
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors onto HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errMissingUser):
		return http.StatusUnauthorized
	case errors.Is(err, colis.ErrNotFound),
		errors.Is(err, trackings.ErrNotFound),
		errors.Is(err, history.ErrNotFound),
		errors.Is(err, notifications.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, colis.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, colis.ErrInvalidInput),
		errors.Is(err, trackings.ErrInvalidInput),
		errors.Is(err, history.ErrInvalidInput),
		errors.Is(err, history.ErrUnsupportedFormat),
		errors.Is(err, notifications.ErrInvalidInput),
		errors.Is(err, errInvalidSignature),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, trackings.ErrProofUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, RequestID: middleware.GetReqID(r.Context())})
}
