package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/middleware/auth"
)

type Deps struct {
	DB      *gorm.DB
	Guard   *auth.Guard
	Metrics *metrics.Metrics

	Auth    *AuthHTTP
	Cart    *CartHTTP
	Catalog *CatalogHTTP
	Orders  *OrdersHTTP
	Admin   *AdminHTTP
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context(), d.DB); err != nil {
			logging.FromContext(c.Request().Context()).Error("readiness_failed", "status", 503, "error", err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	v1 := e.Group("/api/v1")

	authg := v1.Group("/auth")
	authg.POST("/register", d.Auth.Register)
	authg.POST("/login", d.Auth.Login)
	authg.POST("/refresh", d.Auth.Refresh)
	authg.POST("/logout", d.Auth.LogOut)
	authg.GET("/me", d.Auth.Me, d.Guard.RequireAuth)
	authg.PATCH("/me", d.Auth.UpdateMe, d.Guard.RequireAuth)
	authg.POST("/password", d.Auth.ChangePassword, d.Guard.RequireAuth)

	products := v1.Group("/products")
	products.GET("", d.Catalog.ListProducts)
	products.GET("/featured", d.Catalog.Featured)
	products.GET("/search", d.Catalog.Search)
	products.GET("/:id", d.Catalog.GetProduct)

	v1.GET("/categories", d.Catalog.ListCategories)

	cart := v1.Group("/cart", d.Guard.Optional)
	cart.GET("", d.Cart.GetCart)
	cart.DELETE("", d.Cart.Clear)
	cart.POST("/items", d.Cart.AddItem)
	cart.PATCH("/items/:id", d.Cart.UpdateItem)
	cart.DELETE("/items/:id", d.Cart.RemoveItem)

	orders := v1.Group("/orders", d.Guard.RequireAuth)
	orders.POST("", d.Orders.Checkout)
	orders.GET("", d.Orders.ListOrders)
	orders.GET("/:id", d.Orders.GetOrder)

	admin := v1.Group("/admin", d.Guard.RequireAdmin)
	admin.GET("/users", d.Admin.ListUsers)
	admin.PATCH("/users/:id/role", d.Admin.SetRole)
	admin.PATCH("/users/:id/status", d.Admin.SetStatus)
	admin.GET("/products", d.Catalog.ListProducts)
	admin.POST("/products", d.Catalog.CreateProduct)
	admin.PATCH("/products/:id", d.Catalog.UpdateProduct)
	admin.DELETE("/products/:id", d.Catalog.DeleteProduct)
	admin.POST("/categories", d.Catalog.CreateCategory)
	admin.PATCH("/orders/:id/status", d.Orders.UpdateStatus)
}
