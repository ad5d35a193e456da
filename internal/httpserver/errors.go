package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/tokens"
	"github.com/Skotchmaster/storefront/internal/validation"
)

// statusFor maps service errors to a status code and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrNoOwner):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrDuplicateEmail):
		return http.StatusConflict, "email already registered"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, service.ErrAccountDeactivated):
		return http.StatusUnauthorized, "account is deactivated"
	case errors.Is(err, tokens.ErrTokenExpired),
		errors.Is(err, tokens.ErrTokenInvalid),
		errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, cart.ErrProductNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// httpError logs err under event and converts it to an *echo.HTTPError.
// Validation failures carry their field list.
func httpError(l *slog.Logger, event string, err error) error {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		l.Error(event, "status", code, "error", err)
		return echo.NewHTTPError(code, msg)
	}
	l.Warn(event, "status", code, "reason", msg)

	var verr *validation.Error
	if errors.As(err, &verr) {
		return echo.NewHTTPError(code, echo.Map{
			"message": "validation failed",
			"errors":  verr.Fields,
		})
	}
	return echo.NewHTTPError(code, msg)
}

func badRequest(l *slog.Logger, event, reason string, err error) error {
	l.Warn(event, "status", http.StatusBadRequest, "reason", reason, "error", err)
	return echo.NewHTTPError(http.StatusBadRequest, reason)
}
