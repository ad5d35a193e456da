package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/util"
)

type OrdersHTTP struct {
	Orders *service.OrderService
}

func (h *OrdersHTTP) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.checkout")

	var req service.CheckoutInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "checkout_error", "invalid body", err)
	}

	o, err := h.Orders.Checkout(ctx, currentClaimsID(c), req)
	if err != nil {
		return httpError(l, "checkout_error", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"order": o})
}

func (h *OrdersHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.list")

	list, err := h.Orders.ListOrders(ctx, currentClaimsID(c), util.ParseIntDefault(c.QueryParam("page"), 1), pageSize(c))
	if err != nil {
		return httpError(l, "list_orders_error", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *OrdersHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get")

	claims, _ := auth.ClaimsFromContext(ctx)
	isAdmin := claims != nil && claims.Role == models.RoleAdmin

	o, err := h.Orders.GetOrder(ctx, currentClaimsID(c), c.Param("id"), isAdmin)
	if err != nil {
		return httpError(l, "get_order_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

func (h *OrdersHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.order_status")

	var req service.StatusInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "order_status_error", "invalid body", err)
	}

	o, err := h.Orders.UpdateStatus(ctx, c.Param("id"), req)
	if err != nil {
		return httpError(l, "order_status_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}
