package models

import (
	"time"

	"github.com/google/uuid"
)

type DishStatus string

const (
	DishActive   DishStatus = "ACTIVE"
	DishInactive DishStatus = "INACTIVE"
)

// Dish is the live catalog entry, edited by the menu collaborator.
type Dish struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(200);not null" json:"name"`
	Price       int64      `gorm:"not null" json:"price"`
	Description string     `gorm:"type:text" json:"description"`
	Image       string     `gorm:"type:varchar(1024)" json:"image"`
	Category    string     `gorm:"type:varchar(100)" json:"category"`
	Status      DishStatus `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// DishSnapshot freezes a dish at the moment an order line is created. Rows
// are insert-only.
type DishSnapshot struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DishID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"dish_id"`
	Name        string     `gorm:"type:varchar(200);not null" json:"name"`
	Price       int64      `gorm:"not null" json:"price"`
	Description string     `gorm:"type:text" json:"description"`
	Image       string     `gorm:"type:varchar(1024)" json:"image"`
	Category    string     `gorm:"type:varchar(100)" json:"category"`
	Status      DishStatus `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// SnapshotOf copies the priced fields of d into a new snapshot.
func SnapshotOf(d *Dish) DishSnapshot {
	return DishSnapshot{
		ID:          uuid.New(),
		DishID:      d.ID,
		Name:        d.Name,
		Price:       d.Price,
		Description: d.Description,
		Image:       d.Image,
		Category:    d.Category,
		Status:      d.Status,
	}
}
