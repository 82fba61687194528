package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{model.ErrInvalidDuration, http.StatusBadRequest, "InvalidDuration"},
	{model.ErrValidation, http.StatusBadRequest, "ValidationFailed"},
	{model.ErrEmployeeNotFound, http.StatusNotFound, "EmployeeNotFound"},
	{model.ErrNotFound, http.StatusNotFound, "NotFound"},
	{model.ErrSlotUnavailable, http.StatusConflict, "SlotUnavailable"},
	{model.ErrCancellationNotAllowed, http.StatusConflict, "CancellationNotAllowed"},
	{model.ErrAlreadyDecided, http.StatusConflict, "AlreadyDecided"},
	{model.ErrInvalidTransition, http.StatusConflict, "InvalidTransition"},
	{model.ErrAlreadyReviewed, http.StatusConflict, "AlreadyReviewed"},
	{model.ErrStaleVersion, http.StatusConflict, "Conflict"},
	{model.ErrConflict, http.StatusConflict, "Conflict"},
	{model.ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated"},
	{auth.ErrNoActor, http.StatusUnauthorized, "Unauthenticated"},
	{model.ErrUnauthorized, http.StatusForbidden, "Unauthorized"},
}

// writeError is the only place domain errors become HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			httpx.WriteError(w, m.status, m.code, err.Error())
			return
		}
	}
	logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"err", err,
	)
	httpx.WriteError(w, http.StatusInternalServerError, "Internal", "internal error")
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteError(w, http.StatusBadRequest, "ValidationFailed", msg)
}
