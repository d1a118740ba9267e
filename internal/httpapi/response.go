package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/domain"
)

var errInternal = errors.New("internal error")

// APIResponse is the facade's envelope, grounded on the teacher's
// internal/adapters/handler/response.go APIResponse shape.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIResponse{Success: status >= 200 && status < 300}
	if resp.Success {
		resp.Data = data
	} else if apiErr, ok := data.(*APIError); ok {
		resp.Error = apiErr
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeError maps an application/domain error to an HTTP status and code.
// Delegates to application.ToHTTPStatus/ToErrorCode rather than
// re-deriving the mapping here, so the facade and the rest of the
// application layer never disagree on what a given error means.
func writeError(w http.ResponseWriter, err error) {
	message := err.Error()
	var conflict *domain.IdempotencyConflict
	if errors.As(err, &conflict) {
		message = conflict.Error()
	}
	writeJSON(w, application.ToHTTPStatus(err), &APIError{Code: application.ToErrorCode(err), Message: message})
}
