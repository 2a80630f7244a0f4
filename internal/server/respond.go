package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tracehub-ai/tracehub/internal/auth"
	"github.com/tracehub-ai/tracehub/internal/judge"
	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
)

// writeJSON writes a successful response in the standard envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	resp := model.APIResponse{
		Data: data,
		Meta: model.ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response in the standard envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	resp := model.APIError{
		Error: model.ErrorDetail{Code: code, Message: message},
		Meta: model.ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps a service or storage error to its HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *model.ValidationError
		providerErr   *judge.ProviderError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, validationErr.Msg)
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid or missing api key")
	case errors.Is(err, auth.ErrKeyNotProvisioned):
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "project api key has not been provisioned")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "access denied")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "resource not found")
	case errors.Is(err, storage.ErrConflict):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "conflicting concurrent write")
	case errors.As(err, &providerErr):
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "judge provider failure")
	default:
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
	}
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return model.Validationf("request body exceeds %d bytes", maxBytesErr.Limit)
		case errors.Is(err, io.EOF):
			return model.Validationf("request body is required")
		default:
			return model.Validationf("invalid request body: %v", trimDecodeError(err))
		}
	}
	return nil
}

// trimDecodeError strips the "json: " prefix from decoder errors.
func trimDecodeError(err error) string {
	return strings.TrimPrefix(err.Error(), "json: ")
}
