package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"gorm.io/gorm"
)

type GuestRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Guest, error)
}

type GormGuestRepository struct {
	db *gorm.DB
}

func NewGormGuestRepository(db *gorm.DB) GuestRepository {
	return &GormGuestRepository{db: db}
}

func (r *GormGuestRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Guest, error) {
	var g models.Guest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&g).Error
	return firstOrNil(err, &g)
}
