package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"gorm.io/gorm"
)

// DishRepository reads the live menu and writes insert-only snapshots.
type DishRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Dish, error)
	CreateSnapshot(ctx context.Context, snapshot *models.DishSnapshot) error
}

type GormDishRepository struct {
	db *gorm.DB
}

func NewGormDishRepository(db *gorm.DB) DishRepository {
	return &GormDishRepository{db: db}
}

func (r *GormDishRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Dish, error) {
	var d models.Dish
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	return firstOrNil(err, &d)
}

func (r *GormDishRepository) CreateSnapshot(ctx context.Context, snapshot *models.DishSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}
