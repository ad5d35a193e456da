package repo

import (
	"context"

	"github.com/Skotchmaster/storefront/internal/models"
)

func (r *GormRepo) CreateOrder(ctx context.Context, o *models.Order) error {
	return mapErr(r.DB.WithContext(ctx).Create(o).Error)
}

func (r *GormRepo) SaveOrder(ctx context.Context, o *models.Order) error {
	return mapErr(r.DB.WithContext(ctx).Save(o).Error)
}

func (r *GormRepo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}

func (r *GormRepo) ListOrdersByUser(ctx context.Context, userID string, offset, limit int) (int64, []models.Order, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Order, 0, limit)
	if err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}
