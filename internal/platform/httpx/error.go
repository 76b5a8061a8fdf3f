package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Field limits applied before anything is echoed back to a client.
const (
	maxCodeLength    = 80
	maxMessageLength = 512
)

var newlineReplacer = strings.NewReplacer("\n", " ", "\r", " ")

// Error is the canonical JSON error envelope returned by the API.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	Details   map[string]any
}

// NewError constructs an Error, defaulting the status to 500 when unset.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, maxCodeLength),
		Message: clean(message, maxMessageLength),
		Status:  status,
	}
}

// WithRequestID sets the request identifier on the error payload.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clean(id, maxCodeLength)
	return e
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = make(map[string]any, len(details))
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WriteError renders the envelope as JSON. The request id falls back to the
// chi middleware request id carried in ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if requestID := err.RequestID; requestID != "" {
		payload["request_id"] = requestID
	} else if requestID := clean(middleware.GetReqID(ctx), maxCodeLength); requestID != "" {
		payload["request_id"] = requestID
	}
	for k, v := range err.Details {
		payload[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func clean(value string, limit int) string {
	value = strings.TrimSpace(newlineReplacer.Replace(value))
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return value
}
