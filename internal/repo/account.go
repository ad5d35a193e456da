package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/storefront/internal/models"
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *GormRepo) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var acc models.Account
	if err := r.DB.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&acc).Error; err != nil {
		return nil, mapErr(err)
	}
	return &acc, nil
}

func (r *GormRepo) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&acc).Error; err != nil {
		return nil, mapErr(err)
	}
	return &acc, nil
}

// CreateAccount stores the email lower-cased; a collision is ErrDuplicate.
func (r *GormRepo) CreateAccount(ctx context.Context, acc *models.Account) error {
	acc.Email = NormalizeEmail(acc.Email)

	_, err := r.FindAccountByEmail(ctx, acc.Email)
	switch {
	case err == nil:
		return ErrDuplicate
	case !errors.Is(err, ErrNotFound):
		return err
	}

	return mapErr(r.DB.WithContext(ctx).Create(acc).Error)
}

func (r *GormRepo) SaveAccount(ctx context.Context, acc *models.Account) error {
	return mapErr(r.DB.WithContext(ctx).Save(acc).Error)
}

// UpdateAccount loads the account, applies fn and saves it in one
// transaction. The row is locked on postgres so concurrent updates of the
// refresh-token history do not overwrite each other.
func (r *GormRepo) UpdateAccount(ctx context.Context, id string, fn func(acc *models.Account) error) (*models.Account, error) {
	var out models.Account
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("id = ?", id).First(&out).Error; err != nil {
			return mapErr(err)
		}
		if err := fn(&out); err != nil {
			return err
		}
		return mapErr(tx.Save(&out).Error)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *GormRepo) ListAccounts(ctx context.Context, offset, limit int) (int64, []models.Account, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Account{}).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Account, 0, limit)
	if err := r.DB.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}
