package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/middleware/auth"
)

type CartHTTP struct {
	Carts    *cart.Service
	GuestTTL time.Duration
}

// Quantity defaults to 1 only when absent.
type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// owner resolves the cart owner: the authenticated account, else the guest
// cart id the client sent. Anonymous clients without one get a fresh id.
func (h *CartHTTP) owner(c echo.Context) cart.Owner {
	if claims, ok := auth.ClaimsFromContext(c.Request().Context()); ok {
		return cart.Account(claims.AccountID)
	}

	gid := guestCartID(c)
	if gid == "" {
		gid = uuid.NewString()
		ttl := h.GuestTTL
		if ttl <= 0 {
			ttl = 30 * 24 * time.Hour
		}
		c.SetCookie(auth.CreateCookie(GuestCartCookie, gid, "/", time.Now().Add(ttl)))
	}
	c.Response().Header().Set(GuestCartHeader, gid)
	return cart.Guest(gid)
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get")

	ct, err := h.Carts.Get(ctx, h.owner(c))
	if err != nil {
		return httpError(l, "get_cart_error", err)
	}
	return c.JSON(http.StatusOK, ct)
}

func (h *CartHTTP) AddItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add_item")

	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "add_item_error", "invalid body", err)
	}
	if req.ProductID == "" {
		return badRequest(l, "add_item_error", "productId is required", nil)
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	ct, err := h.Carts.AddItem(ctx, h.owner(c), req.ProductID, qty)
	if err != nil {
		return httpError(l, "add_item_error", err)
	}
	return c.JSON(http.StatusOK, ct)
}

func (h *CartHTTP) UpdateItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.update_item")

	var req quantityRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_item_error", "invalid body", err)
	}

	ct, err := h.Carts.UpdateQuantity(ctx, h.owner(c), c.Param("id"), req.Quantity)
	if err != nil {
		return httpError(l, "update_item_error", err)
	}
	return c.JSON(http.StatusOK, ct)
}

func (h *CartHTTP) RemoveItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove_item")

	ct, err := h.Carts.RemoveItem(ctx, h.owner(c), c.Param("id"))
	if err != nil {
		return httpError(l, "remove_item_error", err)
	}
	return c.JSON(http.StatusOK, ct)
}

func (h *CartHTTP) Clear(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.clear")

	ct, err := h.Carts.Clear(ctx, h.owner(c))
	if err != nil {
		return httpError(l, "clear_cart_error", err)
	}
	return c.JSON(http.StatusOK, ct)
}
