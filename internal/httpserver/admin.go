package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/util"
)

type AdminHTTP struct {
	Sessions *service.SessionService
}

type roleRequest struct {
	Role string `json:"role"`
}

type statusRequest struct {
	IsActive *bool `json:"isActive"`
}

func (h *AdminHTTP) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.users")

	list, err := h.Sessions.ListUsers(ctx, util.ParseIntDefault(c.QueryParam("page"), 1), pageSize(c))
	if err != nil {
		return httpError(l, "list_users_error", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *AdminHTTP) SetRole(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.user_role")

	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "user_role_error", "invalid body", err)
	}

	acc, err := h.Sessions.SetRole(ctx, c.Param("id"), req.Role)
	if err != nil {
		return httpError(l, "user_role_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": acc})
}

func (h *AdminHTTP) SetStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.user_status")

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "user_status_error", "invalid body", err)
	}
	if req.IsActive == nil {
		return badRequest(l, "user_status_error", "isActive is required", nil)
	}
	if !*req.IsActive && c.Param("id") == currentClaimsID(c) {
		return badRequest(l, "user_status_error", "cannot deactivate your own account", nil)
	}

	acc, err := h.Sessions.SetActive(ctx, c.Param("id"), *req.IsActive)
	if err != nil {
		return httpError(l, "user_status_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": acc})
}
