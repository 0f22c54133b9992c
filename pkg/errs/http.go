package errs

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// ErrResponse is the wire shape for errors, shared by the emulator
// and the client's classifier.
type ErrResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
	Issues  []string            `json:"issues,omitempty"`
}

// HTTPStatus maps an error kind to the HTTP status the emulator
// responds with. The client's classifier is its inverse.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidRequest:
		return http.StatusBadRequest
	case Validation:
		return http.StatusUnprocessableEntity
	case Unauthenticated:
		return http.StatusUnauthorized
	case Unauthorized:
		return http.StatusForbidden
	case NotExist:
		return http.StatusNotFound
	case Exist:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case Timeout:
		return http.StatusGatewayTimeout
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse writes err as a JSON error response with a status
// derived from its kind, and logs it.
func HTTPErrorResponse(w http.ResponseWriter, logger zerolog.Logger, err error) {
	if err == nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	kind := KindOf(err)
	status := HTTPStatus(kind)

	logger.Error().
		Err(err).
		Int("status", status).
		Strs("ops", OpStack(err)).
		Msg("request_failed")

	resp := ErrResponse{
		Success: false,
		Message: Message(err),
		Errors:  FieldsOf(err),
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
