package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/service"
)

const (
	GuestCartHeader = "X-Guest-Cart"
	GuestCartCookie = "guestCart"
)

type AuthHTTP struct {
	Sessions *service.SessionService
	Carts    *cart.Service
}

type sessionResponse struct {
	Account      *models.Account `json:"account"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// guestCartID returns the client's guest cart id when it is a well-formed uuid.
func guestCartID(c echo.Context) string {
	id := c.Request().Header.Get(GuestCartHeader)
	if id == "" {
		if ck, err := c.Cookie(GuestCartCookie); err == nil {
			id = ck.Value
		}
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

func (h *AuthHTTP) startSession(c echo.Context, code int, sess *service.Session) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.session", "user_id", sess.Account.ID)

	c.SetCookie(auth.CreateCookie(auth.AccessCookie, sess.Tokens.AccessToken, "/", sess.Tokens.AccessExp))
	c.SetCookie(auth.CreateCookie(auth.RefreshCookie, sess.Tokens.RefreshToken, "/", sess.Tokens.RefreshExp))

	if gid := guestCartID(c); gid != "" && h.Carts != nil {
		if _, err := h.Carts.MergeGuest(ctx, gid, sess.Account.ID); err != nil {
			l.Warn("guest_cart_merge_failed", "guest_cart", gid, "error", err)
		} else {
			c.SetCookie(auth.DeleteCookie(GuestCartCookie, "/"))
		}
	}

	return c.JSON(code, sessionResponse{
		Account:      sess.Account,
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
	})
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "register_error", "invalid body", err)
	}

	sess, err := h.Sessions.Register(ctx, req)
	if err != nil {
		return httpError(l, "register_error", err)
	}

	l.Info("register_success", "user_id", sess.Account.ID)
	return h.startSession(c, http.StatusCreated, sess)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req service.LoginInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "login_error", "invalid body", err)
	}

	sess, err := h.Sessions.Login(ctx, req)
	if err != nil {
		return httpError(l, "login_failed", err)
	}

	l.Info("login_successful", "user_id", sess.Account.ID)
	return h.startSession(c, http.StatusOK, sess)
}

// presentedRefresh prefers the body and falls back to the refresh cookie.
func presentedRefresh(c echo.Context) string {
	var req refreshRequest
	_ = c.Bind(&req)
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	if ck, err := c.Cookie(auth.RefreshCookie); err == nil {
		return ck.Value
	}
	return ""
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	token := presentedRefresh(c)
	if token == "" {
		return badRequest(l, "refresh_error", "refresh token required", nil)
	}

	pair, err := h.Sessions.Refresh(ctx, token)
	if err != nil {
		return httpError(l, "refresh_failed", err)
	}

	c.SetCookie(auth.CreateCookie(auth.AccessCookie, pair.AccessToken, "/", pair.AccessExp))
	c.SetCookie(auth.CreateCookie(auth.RefreshCookie, pair.RefreshToken, "/", pair.RefreshExp))
	return c.JSON(http.StatusOK, echo.Map{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// LogOut always clears the cookies; failing to revoke server-side is only logged.
func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if err := h.Sessions.Logout(ctx, presentedRefresh(c)); err != nil {
		l.Warn("logout_revoke_failed", "error", err)
	}

	c.SetCookie(auth.DeleteCookie(auth.AccessCookie, "/"))
	c.SetCookie(auth.DeleteCookie(auth.RefreshCookie, "/"))
	l.Info("logout_success")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func currentClaimsID(c echo.Context) string {
	if claims, ok := auth.ClaimsFromContext(c.Request().Context()); ok {
		return claims.AccountID
	}
	return ""
}

func (h *AuthHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_me")

	acc, err := h.Sessions.GetAccount(ctx, currentClaimsID(c))
	if err != nil {
		return httpError(l, "me_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"account": acc})
}

func (h *AuthHTTP) UpdateMe(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_update_me")

	var req service.ProfileInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "profile_update_error", "invalid body", err)
	}

	acc, err := h.Sessions.UpdateProfile(ctx, currentClaimsID(c), req)
	if err != nil {
		return httpError(l, "profile_update_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"account": acc})
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_password")

	var req service.PasswordInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "password_change_error", "invalid body", err)
	}

	if err := h.Sessions.ChangePassword(ctx, currentClaimsID(c), req); err != nil {
		return httpError(l, "password_change_error", err)
	}

	c.SetCookie(auth.DeleteCookie(auth.AccessCookie, "/"))
	c.SetCookie(auth.DeleteCookie(auth.RefreshCookie, "/"))
	return c.NoContent(http.StatusNoContent)
}
