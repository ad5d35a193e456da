package repo

import (
	"context"

	"github.com/Skotchmaster/storefront/internal/models"
)

func (r *GormRepo) FindCartByUser(ctx context.Context, userID string) (*models.Cart, error) {
	var c models.Cart
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// SaveCart inserts the cart when it has no id yet, otherwise overwrites it.
func (r *GormRepo) SaveCart(ctx context.Context, c *models.Cart) error {
	if c.ID == "" {
		return mapErr(r.DB.WithContext(ctx).Create(c).Error)
	}
	return mapErr(r.DB.WithContext(ctx).Save(c).Error)
}

func (r *GormRepo) DeleteCartByUser(ctx context.Context, userID string) error {
	return r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Cart{}).Error
}
