package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/util"
)

type CatalogHTTP struct {
	Catalog *service.CatalogService
}

func optionalFloat(c echo.Context, name string) (*float64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	return &v, nil
}

func optionalBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", name)
	}
	return &v, nil
}

// pageSize accepts either "limit" or "size".
func pageSize(c echo.Context) int {
	if v := c.QueryParam("limit"); v != "" {
		return util.ParseIntDefault(v, util.DefaultPageSize)
	}
	return util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
}

func (h *CatalogHTTP) ListProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_products")

	q := service.ProductQuery{
		Page:      util.ParseIntDefault(c.QueryParam("page"), 1),
		Limit:     pageSize(c),
		Category:  c.QueryParam("category"),
		Search:    c.QueryParam("search"),
		SortBy:    c.QueryParam("sortBy"),
		SortOrder: c.QueryParam("sortOrder"),
	}
	var err error
	if q.MinPrice, err = optionalFloat(c, "minPrice"); err != nil {
		return badRequest(l, "get_products_error", err.Error(), nil)
	}
	if q.MaxPrice, err = optionalFloat(c, "maxPrice"); err != nil {
		return badRequest(l, "get_products_error", err.Error(), nil)
	}
	if q.InStock, err = optionalBool(c, "inStock"); err != nil {
		return badRequest(l, "get_products_error", err.Error(), nil)
	}

	list, err := h.Catalog.ListProducts(ctx, q)
	if err != nil {
		return httpError(l, "get_products_error", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *CatalogHTTP) Featured(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.featured")

	items, err := h.Catalog.FeaturedProducts(ctx, util.ParseIntDefault(c.QueryParam("limit"), service.DefaultFeaturedLimit))
	if err != nil {
		return httpError(l, "featured_products_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": items})
}

func (h *CatalogHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.search")

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	list, err := h.Catalog.SearchProducts(ctx, c.QueryParam("q"), page, pageSize(c))
	if err != nil {
		return httpError(l, "search_error", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_product")

	p, err := h.Catalog.GetProduct(ctx, c.Param("id"))
	if err != nil {
		return httpError(l, "get_product_failed", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "create_product")

	var req service.ProductInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "product_create_error", "invalid body", err)
	}

	p, err := h.Catalog.CreateProduct(ctx, req)
	if err != nil {
		return httpError(l, "product_create_error", err)
	}

	l.Info("create_product_success", "product_id", p.ID)
	return c.JSON(http.StatusCreated, p)
}

func (h *CatalogHTTP) UpdateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "patch_product")

	var req service.ProductPatch
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "product_patch_error", "invalid body", err)
	}

	p, err := h.Catalog.UpdateProduct(ctx, c.Param("id"), req)
	if err != nil {
		return httpError(l, "product_patch_error", err)
	}

	l.Info("patch_product_success", "product_id", p.ID)
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "delete_product")

	if err := h.Catalog.DeleteProduct(ctx, c.Param("id")); err != nil {
		return httpError(l, "product_delete_error", err)
	}

	l.Info("delete_product_success")
	return c.NoContent(http.StatusNoContent)
}

func (h *CatalogHTTP) ListCategories(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "category.list")

	includeInactive, err := optionalBool(c, "includeInactive")
	if err != nil {
		return badRequest(l, "list_categories_error", err.Error(), nil)
	}

	list, err := h.Catalog.ListCategories(ctx, service.CategoryQuery{
		Page:            util.ParseIntDefault(c.QueryParam("page"), 1),
		Limit:           pageSize(c),
		IncludeInactive: includeInactive != nil && *includeInactive,
		Parent:          c.QueryParam("parent"),
	})
	if err != nil {
		return httpError(l, "list_categories_error", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *CatalogHTTP) CreateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "category.create")

	var req service.CategoryInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "create_category_error", "invalid body", err)
	}

	cat, err := h.Catalog.CreateCategory(ctx, req)
	if err != nil {
		return httpError(l, "create_category_error", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"category": cat})
}
