// Package handlers implements the HTTP handlers of the API server.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bithra/platform/internal/api/errors"
	"github.com/go-chi/chi/v5/middleware"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// WriteError writes an APIError tagged with the request ID.
func WriteError(w http.ResponseWriter, r *http.Request, err *apierrors.APIError) {
	apierrors.WriteErrorWithRequestID(w, err, middleware.GetReqID(r.Context()))
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, apierrors.NewValidationError(message))
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, apierrors.NewNotFoundError(message))
}

// WriteUnauthorized writes a 401 Unauthorized response.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, apierrors.NewUnauthorizedError(message))
}

// WriteForbidden writes a 403 Forbidden response.
func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, apierrors.NewForbiddenError(message))
}

// writeServiceError maps a service error to a response. Unexpected errors are
// logged with the request ID; their details never reach the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr := apierrors.FromError(err)
	if apiErr.Code == apierrors.CodeInternalError {
		logger.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
	WriteError(w, r, apiErr)
}
