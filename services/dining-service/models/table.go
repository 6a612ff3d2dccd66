package models

import (
	"time"

	"github.com/google/uuid"
)

type TableStatus string

const (
	TableAvailable   TableStatus = "AVAILABLE"
	TableOccupied    TableStatus = "OCCUPIED"
	TableCleaning    TableStatus = "CLEANING"
	TableUnavailable TableStatus = "UNAVAILABLE"
)

// AcceptsOrders reports whether guests may order at a table in this status.
func (s TableStatus) AcceptsOrders() bool {
	return s == TableAvailable || s == TableOccupied
}

type Table struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Number    int         `gorm:"uniqueIndex;not null" json:"number"`
	Capacity  int         `gorm:"not null;default:4" json:"capacity"`
	Status    TableStatus `gorm:"type:varchar(20);not null;default:AVAILABLE" json:"status"`
	Token     string      `gorm:"type:varchar(128);not null" json:"-"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type UpdateTableStatusRequest struct {
	Status TableStatus `json:"status" binding:"required,oneof=AVAILABLE OCCUPIED CLEANING UNAVAILABLE"`
}
