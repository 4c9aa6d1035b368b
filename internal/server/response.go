package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
)

// Envelope provides a consistent JSON response structure.
type Envelope struct {
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Success bool   `json:"success"`
}

// writeJSON writes data wrapped in an Envelope.
func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	envelope := Envelope{
		Success: status < 400,
		Data:    data,
	}
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

func success(w http.ResponseWriter, data any, logger *slog.Logger) {
	writeJSON(w, http.StatusOK, data, logger)
}

func accepted(w http.ResponseWriter, data any, logger *slog.Logger) {
	writeJSON(w, http.StatusAccepted, data, logger)
}

// writeError writes an error response with the given status code.
func writeError(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	envelope := Envelope{
		Success: false,
		Error:   message,
		Code:    code,
	}
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		logger.Error("Failed to encode error response", "error", err)
	}
}

func badRequest(w http.ResponseWriter, message string, logger *slog.Logger) {
	writeError(w, http.StatusBadRequest, string(apperrors.CodeValidation), message, logger)
}

// handleError maps domain errors to their HTTP status; anything else is a 500.
func handleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		writeError(w, appErr.Code.HTTPStatus(), string(appErr.Code), appErr.Error(), logger)
		return
	}

	logger.Error("Unhandled error", "error", err)
	writeError(w, http.StatusInternalServerError, "", "internal server error", logger)
}
