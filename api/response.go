package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/c360studio/civicreport/assist"
	"github.com/c360studio/civicreport/auth"
	"github.com/c360studio/civicreport/llm"
	"github.com/c360studio/civicreport/report"
	"github.com/c360studio/civicreport/storage"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

// mapError translates a service error to status, code and client message.
func mapError(err error) (int, string, string) {
	switch {
	case report.IsValidation(err),
		errors.Is(err, assist.ErrEmptyInput),
		errors.Is(err, assist.ErrEmptyImage),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error()
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	}

	switch llm.KindOf(err) {
	case llm.KindRetriesExhausted, llm.KindRateLimited:
		return http.StatusTooManyRequests, "AI_RATE_LIMITED", err.Error()
	case llm.KindNetwork, llm.KindUpstream, llm.KindEmptyResult, llm.KindInvalidResponseShape:
		return http.StatusBadGateway, "AI_UNAVAILABLE", err.Error()
	}

	return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
}

func (h *Handler) writeMappedError(r *http.Request, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapError(err)
	fields := []any{
		"operation", operation,
		"status_code", status,
		"error_code", code,
		"request_id", requestIDFromContext(r.Context()),
		"error", err.Error(),
	}
	if status >= 500 {
		h.logger.ErrorContext(r.Context(), "http operation failed", fields...)
	} else {
		h.logger.WarnContext(r.Context(), "http operation failed", fields...)
	}
	writeError(w, status, code, msg)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}
