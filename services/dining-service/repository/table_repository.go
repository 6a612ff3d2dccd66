package repository

import (
	"context"

	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"gorm.io/gorm"
)

// TableRepository is the table registry. Lookups return (nil, nil) when no
// table has the number.
type TableRepository interface {
	FindByNumber(ctx context.Context, number int) (*models.Table, error)
	FindByNumberForUpdate(ctx context.Context, number int) (*models.Table, error)
	FindByNumberAndToken(ctx context.Context, number int, token string) (*models.Table, error)
	UpdateStatus(ctx context.Context, number int, status models.TableStatus) error
	FindAll(ctx context.Context) ([]models.Table, error)
}

type GormTableRepository struct {
	db *gorm.DB
}

func NewGormTableRepository(db *gorm.DB) TableRepository {
	return &GormTableRepository{db: db}
}

func (r *GormTableRepository) FindByNumber(ctx context.Context, number int) (*models.Table, error) {
	var t models.Table
	err := r.db.WithContext(ctx).Where("number = ?", number).First(&t).Error
	return firstOrNil(err, &t)
}

// FindByNumberForUpdate locks the table row until the surrounding transaction
// ends. Bill creation and order intake serialize on it.
func (r *GormTableRepository) FindByNumberForUpdate(ctx context.Context, number int) (*models.Table, error) {
	var t models.Table
	err := forUpdate(r.db.WithContext(ctx)).Where("number = ?", number).First(&t).Error
	return firstOrNil(err, &t)
}

func (r *GormTableRepository) FindByNumberAndToken(ctx context.Context, number int, token string) (*models.Table, error) {
	var t models.Table
	err := r.db.WithContext(ctx).Where("number = ? AND token = ?", number, token).First(&t).Error
	return firstOrNil(err, &t)
}

func (r *GormTableRepository) UpdateStatus(ctx context.Context, number int, status models.TableStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Table{}).
		Where("number = ?", number).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormTableRepository) FindAll(ctx context.Context) ([]models.Table, error) {
	var tables []models.Table
	err := r.db.WithContext(ctx).Order("number ASC").Find(&tables).Error
	return tables, err
}
