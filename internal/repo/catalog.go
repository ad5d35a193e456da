package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
)

type ProductFilter struct {
	Search     string
	CategoryID string
	MinPrice   *float64
	MaxPrice   *float64
	InStock    *bool
	SortBy     string
	SortDesc   bool
	Offset     int
	Limit      int
}

var productSortColumns = map[string]string{
	"name":       "name",
	"price":      "price",
	"rating":     "rating",
	"createdAt":  "created_at",
	"salesCount": "sales_count",
}

func ValidProductSort(s string) bool {
	_, ok := productSortColumns[s]
	return ok
}

func (f ProductFilter) apply(q *gorm.DB) *gorm.DB {
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if f.CategoryID != "" {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.InStock != nil {
		q = q.Where("in_stock = ?", *f.InStock)
	}
	return q
}

func (f ProductFilter) order() string {
	col, ok := productSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	if f.SortDesc {
		return col + " DESC"
	}
	return col + " ASC"
}

func (r *GormRepo) ListProducts(ctx context.Context, f ProductFilter) (int64, []models.Product, error) {
	var total int64
	if err := f.apply(r.DB.WithContext(ctx).Model(&models.Product{})).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Product, 0, f.Limit)
	if err := f.apply(r.DB.WithContext(ctx).Model(&models.Product{})).
		Order(f.order()).
		Order("id ASC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

// FeaturedProducts returns featured products, topped up with the newest
// non-featured ones when there are fewer than limit.
func (r *GormRepo) FeaturedProducts(ctx context.Context, limit int) ([]models.Product, error) {
	items := make([]models.Product, 0, limit)
	if err := r.DB.WithContext(ctx).
		Where("featured = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) >= limit {
		return items, nil
	}

	var recent []models.Product
	if err := r.DB.WithContext(ctx).
		Where("featured = ?", false).
		Order("created_at DESC").
		Limit(limit - len(items)).
		Find(&recent).Error; err != nil {
		return nil, err
	}
	return append(items, recent...), nil
}

func (r *GormRepo) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *GormRepo) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	var items []models.Product
	if len(ids) == 0 {
		return items, nil
	}
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) CreateProduct(ctx context.Context, p *models.Product) error {
	return mapErr(r.DB.WithContext(ctx).Create(p).Error)
}

func (r *GormRepo) SaveProduct(ctx context.Context, p *models.Product) error {
	return mapErr(r.DB.WithContext(ctx).Save(p).Error)
}

func (r *GormRepo) DeleteProduct(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type CategoryFilter struct {
	IncludeInactive bool
	// ParentID "" means any parent; "root" selects top-level categories.
	ParentID string
	Offset   int
	Limit    int
}

const RootCategory = "root"

func (f CategoryFilter) apply(q *gorm.DB) *gorm.DB {
	if !f.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	switch f.ParentID {
	case "":
	case RootCategory:
		q = q.Where("parent_id IS NULL")
	default:
		q = q.Where("parent_id = ?", f.ParentID)
	}
	return q
}

func (r *GormRepo) ListCategories(ctx context.Context, f CategoryFilter) (int64, []models.Category, error) {
	var total int64
	if err := f.apply(r.DB.WithContext(ctx).Model(&models.Category{})).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Category, 0, f.Limit)
	if err := f.apply(r.DB.WithContext(ctx).Model(&models.Category{})).
		Order("name ASC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var c models.Category
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// CategoryExists matches name case-insensitively, or the exact slug.
func (r *GormRepo) CategoryExists(ctx context.Context, name, slug string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).
		Model(&models.Category{}).
		Where("LOWER(name) = ? OR slug = ?", strings.ToLower(strings.TrimSpace(name)), slug).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) CreateCategory(ctx context.Context, c *models.Category) error {
	return mapErr(r.DB.WithContext(ctx).Create(c).Error)
}

// IncrementSales bumps the sales counter used for the salesCount sort.
func (r *GormRepo) IncrementSales(ctx context.Context, productID string, qty int) error {
	return r.DB.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("sales_count", gorm.Expr("sales_count + ?", qty)).Error
}
