package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aundhe1m/backy-agent/pkg/types"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func errorBody(message string) errorResponse {
	return errorResponse{Message: message}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps boundary error kinds onto HTTP status codes. The message
// reaches the client verbatim; unknown errors become 500s whose message is
// the error text prefixed with "error: ".
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, types.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, types.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody("error: "+err.Error()))
	}
}
