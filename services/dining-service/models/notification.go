package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationOrder   NotificationType = "ORDER"
	NotificationPayment NotificationType = "PAYMENT"
	NotificationSupport NotificationType = "SUPPORT"
)

type Notification struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Type        NotificationType `gorm:"type:varchar(20);index;not null" json:"type"`
	Message     string           `gorm:"type:varchar(1000);not null" json:"message"`
	Room        string           `gorm:"type:varchar(64);index;not null" json:"room"`
	TableNumber int              `gorm:"index" json:"table_number"`
	IsRead      bool             `gorm:"not null;default:false" json:"is_read"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

type SupportCallRequest struct {
	Message string `json:"message" binding:"max=500"`
}

type NotificationFilter struct {
	Room   string
	Type   NotificationType
	Unread bool
	Page   int
	Limit  int
}
