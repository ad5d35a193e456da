package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
)

func (g *Guard) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, err := g.authenticate(c)
		if err != nil {
			return err
		}
		if claims.Role != models.RoleAdmin {
			logging.FromContext(c.Request().Context()).Warn("auth_rejected", "status", 403, "reason", "admin required", "user_id", claims.AccountID)
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		attach(c, claims)
		return next(c)
	}
}
