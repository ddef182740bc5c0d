package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openfiscal/broker-backend/internal/pkg/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondAppError maps the broker error taxonomy onto HTTP statuses.
// ConcurrentModification reaches here only after the handler's retries are
// exhausted.
func RespondAppError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperr.ErrInvalidDependency):
		RespondError(c, http.StatusBadRequest, "invalid_dependency", err)
	case errors.Is(err, apperr.ErrIllegalTransition):
		RespondError(c, http.StatusBadRequest, "illegal_transition", err)
	case errors.Is(err, apperr.ErrAgencyMismatch):
		RespondError(c, http.StatusForbidden, "agency_mismatch", err)
	case errors.Is(err, apperr.ErrConcurrentModification):
		RespondError(c, http.StatusConflict, "concurrent_modification", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
