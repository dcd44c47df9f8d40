package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/icupa/outreach/internal/contacts"
	"github.com/icupa/outreach/internal/conversation"
	"github.com/icupa/outreach/internal/dispatch"
	"github.com/icupa/outreach/internal/escalation"
	"github.com/icupa/outreach/internal/followup"
)

// ErrorResponse is the standard API error body (message only).
type ErrorResponse struct {
	Message string `json:"message"`
}

// httpError maps service errors onto HTTP statuses.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, dispatch.ErrValidation),
		errors.Is(err, escalation.ErrValidation),
		errors.Is(err, followup.ErrValidation),
		errors.Is(err, conversation.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, contacts.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
