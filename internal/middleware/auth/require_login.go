package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/tokens"
)

// Guard verifies access tokens and attaches their claims to the request context.
type Guard struct {
	Tokens *tokens.Service
}

func NewGuard(ts *tokens.Service) *Guard {
	return &Guard{Tokens: ts}
}

func (g *Guard) authenticate(c echo.Context) (*tokens.Claims, error) {
	raw, fromCookie := accessToken(c)
	if raw == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	claims, err := g.Tokens.Verify(raw, tokens.Access)
	if err != nil {
		logging.FromContext(c.Request().Context()).Info("auth_rejected", "status", 401, "reason", err.Error())
		if fromCookie {
			c.SetCookie(DeleteCookie(AccessCookie, "/"))
		}
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

func attach(c echo.Context, claims *tokens.Claims) {
	req := c.Request()
	c.SetRequest(req.WithContext(WithClaims(req.Context(), claims)))
}

func (g *Guard) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, err := g.authenticate(c)
		if err != nil {
			return err
		}
		attach(c, claims)
		return next(c)
	}
}

// Optional attaches claims when a valid token is present and otherwise
// lets the request through anonymously.
func (g *Guard) Optional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, _ := accessToken(c)
		if raw != "" {
			if claims, err := g.Tokens.Verify(raw, tokens.Access); err == nil {
				attach(c, claims)
			}
		}
		return next(c)
	}
}
