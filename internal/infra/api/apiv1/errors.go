package apiv1

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"event-companion-sync/internal/domain"
	"event-companion-sync/internal/infra/api"
	"event-companion-sync/internal/infra/logging"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateID),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrRetryBudgetExceeded),
		errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.With(r.Context(), logger).Error().Err(err).Str("path", r.URL.Path).Msg("sync api failure")
		msg = "internal error"
	}
	api.WriteJSON(w, status, api.ErrorBody{Error: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	api.WriteJSON(w, http.StatusBadRequest, api.ErrorBody{Error: msg})
}
