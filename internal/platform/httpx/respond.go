package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error            string   `json:"error"`
	ValidationErrors []string `json:"validationErrors,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Fail writes an error body with an explicit status.
func Fail(w http.ResponseWriter, status int, msg string, problems ...string) {
	JSON(w, status, ErrorBody{Error: msg, ValidationErrors: problems})
}

// RespondError maps err onto the error taxonomy. Causes of 5xx responses are
// logged and never sent to the client.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", slog.Any("error", err))
	}
	Fail(w, status, MessageFor(err), ProblemsFor(err)...)
}

// DecodeJSON decodes the request body into target, rejecting unknown fields
// and trailing data.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return Validation("request body is required")
		}
		return Validation(fmt.Sprintf("invalid request body: %v", err))
	}
	if dec.More() {
		return Validation("request body must contain a single JSON object")
	}
	return nil
}
