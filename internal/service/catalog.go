package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gosimple/slug"

	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/util"
	"github.com/Skotchmaster/storefront/internal/validation"
)

const DefaultFeaturedLimit = 4

// ProductSearcher is the full-text index kept next to the database.
type ProductSearcher interface {
	Search(ctx context.Context, query string, from, size int) (int64, []models.Product, error)
	IndexProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type CatalogService struct {
	Repo   *repo.GormRepo
	Search ProductSearcher // optional
	Events events.Publisher
}

type ProductQuery struct {
	Page      int
	Limit     int
	Category  string
	Search    string
	MinPrice  *float64
	MaxPrice  *float64
	InStock   *bool
	SortBy    string
	SortOrder string
}

type ProductList struct {
	Data []models.Product `json:"data"`
	Meta util.Meta        `json:"meta"`
}

type ProductInput struct {
	Name          string   `json:"name"          validate:"required,min=3,max=100"`
	Description   string   `json:"description"   validate:"required,min=10,max=1000"`
	Price         float64  `json:"price"         validate:"gte=0,lte=1000000"`
	Images        []string `json:"images"        validate:"omitempty,max=10,dive,required"`
	CategoryID    *string  `json:"categoryId"`
	InStock       *bool    `json:"inStock"`
	StockQuantity int      `json:"stockQuantity" validate:"gte=0"`
	Featured      bool     `json:"featured"`
}

type ProductPatch struct {
	Name          *string   `json:"name"          validate:"omitempty,min=3,max=100"`
	Description   *string   `json:"description"   validate:"omitempty,min=10,max=1000"`
	Price         *float64  `json:"price"         validate:"omitempty,gte=0,lte=1000000"`
	Images        *[]string `json:"images"`
	CategoryID    *string   `json:"categoryId"`
	InStock       *bool     `json:"inStock"`
	StockQuantity *int      `json:"stockQuantity" validate:"omitempty,gte=0"`
	Featured      *bool     `json:"featured"`
}

type CategoryQuery struct {
	Page            int
	Limit           int
	IncludeInactive bool
	Parent          string
}

type CategoryList struct {
	Categories []models.Category `json:"categories"`
	Meta       util.Meta         `json:"pagination"`
}

type CategoryInput struct {
	Name        string  `json:"name"        validate:"required,min=2,max=50"`
	Description string  `json:"description" validate:"max=500"`
	Image       string  `json:"image"       validate:"omitempty,url"`
	ParentID    *string `json:"parentId"`
	IsActive    *bool   `json:"isActive"`
}

func (s *CatalogService) ListProducts(ctx context.Context, q ProductQuery) (*ProductList, error) {
	if q.SortBy != "" && !repo.ValidProductSort(q.SortBy) {
		return nil, invalidf("unsupported sort field %q", q.SortBy)
	}
	order := strings.ToLower(q.SortOrder)
	if order != "" && order != "asc" && order != "desc" {
		return nil, invalidf("sort order must be asc or desc")
	}
	if q.MinPrice != nil && *q.MinPrice < 0 || q.MaxPrice != nil && *q.MaxPrice < 0 {
		return nil, invalidf("price bounds must be >= 0")
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return nil, invalidf("minPrice must not exceed maxPrice")
	}

	offset, limit := util.Calculate(q.Page, q.Limit)
	f := repo.ProductFilter{
		Search:     q.Search,
		CategoryID: q.Category,
		MinPrice:   q.MinPrice,
		MaxPrice:   q.MaxPrice,
		InStock:    q.InStock,
		SortBy:     q.SortBy,
		// newest first unless the caller picked an order
		SortDesc: order == "desc" || order == "" && q.SortBy == "",
		Offset:   offset,
		Limit:    limit,
	}
	total, items, err := s.Repo.ListProducts(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ProductList{Data: items, Meta: util.NewMeta(q.Page, offset, limit, total)}, nil
}

func (s *CatalogService) FeaturedProducts(ctx context.Context, limit int) ([]models.Product, error) {
	if limit <= 0 || limit > util.MaxPageSize {
		limit = DefaultFeaturedLimit
	}
	return s.Repo.FeaturedProducts(ctx, limit)
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("product %w", ErrNotFound)
	}
	return p, err
}

// SearchProducts prefers the search index and falls back to a database
// text match when the index is not configured or fails.
func (s *CatalogService) SearchProducts(ctx context.Context, query string, page, size int) (*ProductList, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.search")

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidf("query is required")
	}
	offset, limit := util.Calculate(page, size)

	if s.Search != nil {
		total, items, err := s.Search.Search(ctx, query, offset, limit)
		if err == nil {
			return &ProductList{Data: items, Meta: util.NewMeta(page, offset, limit, total)}, nil
		}
		l.Warn("search_index_failed", "reason", "falling back to database", "error", err)
	}

	total, items, err := s.Repo.ListProducts(ctx, repo.ProductFilter{
		Search: query,
		SortBy: "name",
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	return &ProductList{Data: items, Meta: util.NewMeta(page, offset, limit, total)}, nil
}

func (s *CatalogService) checkCategory(ctx context.Context, id *string) error {
	if id == nil || *id == "" {
		return nil
	}
	if _, err := s.Repo.GetCategory(ctx, *id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("category %w", ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *CatalogService) reindex(ctx context.Context, l *slog.Logger, p *models.Product) {
	if s.Search == nil {
		return
	}
	if err := s.Search.IndexProduct(ctx, *p); err != nil {
		l.Warn("search_index_failed", "product_id", p.ID, "error", err)
	}
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.create_product")

	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Struct(in); err != nil {
		return nil, invalid(err)
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	p := &models.Product{
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		Images:        in.Images,
		CategoryID:    in.CategoryID,
		InStock:       true,
		StockQuantity: in.StockQuantity,
		Featured:      in.Featured,
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if in.InStock != nil {
		p.InStock = *in.InStock
	}
	if err := s.Repo.CreateProduct(ctx, p); err != nil {
		l.Error("create_product_error", "status", 500, "error", err)
		return nil, err
	}

	s.reindex(ctx, l, p)
	events.Emit(ctx, s.Events, l, events.TopicProducts, p.ID, events.New("product_created", map[string]any{
		"product_id": p.ID,
		"price":      p.Price,
	}))
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id string, in ProductPatch) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.update_product", "product_id", id)

	if err := validation.Struct(in); err != nil {
		return nil, invalid(err)
	}
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Images != nil {
		p.Images = *in.Images
	}
	if in.CategoryID != nil {
		if *in.CategoryID == "" {
			p.CategoryID = nil
		} else {
			p.CategoryID = in.CategoryID
		}
	}
	if in.InStock != nil {
		p.InStock = *in.InStock
	}
	if in.StockQuantity != nil {
		p.StockQuantity = *in.StockQuantity
	}
	if in.Featured != nil {
		p.Featured = *in.Featured
	}

	if err := s.Repo.SaveProduct(ctx, p); err != nil {
		l.Error("update_product_error", "status", 500, "error", err)
		return nil, err
	}

	s.reindex(ctx, l, p)
	events.Emit(ctx, s.Events, l, events.TopicProducts, p.ID, events.New("product_updated", map[string]any{
		"product_id": p.ID,
		"price":      p.Price,
	}))
	return p, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	l := logging.FromContext(ctx).With("svc", "catalog.delete_product", "product_id", id)

	if err := s.Repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("product %w", ErrNotFound)
		}
		l.Error("delete_product_error", "status", 500, "error", err)
		return err
	}

	if s.Search != nil {
		if err := s.Search.DeleteProduct(ctx, id); err != nil {
			l.Warn("search_index_failed", "error", err)
		}
	}
	events.Emit(ctx, s.Events, l, events.TopicProducts, id, events.New("product_deleted", map[string]any{
		"product_id": id,
	}))
	return nil
}

func (s *CatalogService) ListCategories(ctx context.Context, q CategoryQuery) (*CategoryList, error) {
	offset, limit := util.Calculate(q.Page, q.Limit)
	total, items, err := s.Repo.ListCategories(ctx, repo.CategoryFilter{
		IncludeInactive: q.IncludeInactive,
		ParentID:        q.Parent,
		Offset:          offset,
		Limit:           limit,
	})
	if err != nil {
		return nil, err
	}
	return &CategoryList{Categories: items, Meta: util.NewMeta(q.Page, offset, limit, total)}, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.create_category")

	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, invalid(err)
	}

	c := &models.Category{
		Name:        in.Name,
		Slug:        slug.Make(in.Name),
		Description: strings.TrimSpace(in.Description),
		Image:       in.Image,
		IsActive:    true,
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}

	exists, err := s.Repo.CategoryExists(ctx, c.Name, c.Slug)
	if err != nil {
		return nil, err
	}
	if exists {
		l.Info("create_category_error", "status", 409, "reason", "category already exists", "slug", c.Slug)
		return nil, fmt.Errorf("category %w", ErrConflict)
	}

	if in.ParentID != nil && *in.ParentID != "" {
		if err := s.checkCategory(ctx, in.ParentID); err != nil {
			return nil, err
		}
		c.ParentID = in.ParentID
	}

	if err := s.Repo.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("category %w", ErrConflict)
		}
		l.Error("create_category_error", "status", 500, "error", err)
		return nil, err
	}
	return c, nil
}
