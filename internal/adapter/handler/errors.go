package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindCapacityExceeded, domain.KindSessionExpired, domain.KindConcurrentModification:
		return http.StatusConflict
	case domain.KindSessionNotFound:
		return http.StatusNotFound
	case domain.KindInvalidWaitlistPosition, domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindPaymentFinalization:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as JSON. Anything that is not a domain error is logged and
// hidden behind a 500.
func fail(c echo.Context, log *logger.Logger, err error) error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return c.JSON(statusFor(derr.Kind), errorResponse{
			Error:   derr.Message,
			Kind:    string(derr.Kind),
			Details: derr.Context,
		})
	}

	log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Kind: string(domain.KindValidation)})
}
