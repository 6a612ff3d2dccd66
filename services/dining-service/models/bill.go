package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BillStatus string

const (
	BillPending   BillStatus = "PENDING"
	BillConfirmed BillStatus = "CONFIRMED"
	BillPaid      BillStatus = "PAID"
	BillCancelled BillStatus = "CANCELLED"
)

// Bill aggregates the delivered orders of one table. All amounts are in the
// currency's minor unit and
// TotalAmount == Subtotal + ServiceCharge + TaxAmount - DiscountAmount.
type Bill struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BillNumber     string         `gorm:"type:varchar(32);uniqueIndex;not null" json:"bill_number"`
	TableNumber    int            `gorm:"index;not null" json:"table_number"`
	GuestID        *uuid.UUID     `gorm:"type:uuid" json:"guest_id,omitempty"`
	Subtotal       int64          `gorm:"not null" json:"subtotal"`
	ServiceCharge  int64          `gorm:"not null" json:"service_charge"`
	TaxAmount      int64          `gorm:"not null" json:"tax_amount"`
	DiscountAmount int64          `gorm:"not null;default:0" json:"discount_amount"`
	TotalAmount    int64          `gorm:"not null" json:"total_amount"`
	Currency       string         `gorm:"type:varchar(10);not null" json:"currency"`
	Status         BillStatus     `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentMethod  *PaymentMethod `gorm:"type:varchar(20)" json:"payment_method,omitempty"`
	Notes          string         `gorm:"type:text" json:"notes"`
	PaidAt         *time.Time     `json:"paid_at,omitempty"`
	CreatedBy      string         `gorm:"type:varchar(64)" json:"created_by"`
	UpdatedBy      string         `gorm:"type:varchar(64)" json:"updated_by"`
	Orders         []Order        `gorm:"foreignKey:BillID" json:"orders,omitempty"`
	Payments       []Payment      `gorm:"foreignKey:BillID" json:"payments,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// BillSequence allocates per-day bill numbers.
type BillSequence struct {
	Day  string `gorm:"type:char(8);primaryKey"`
	Last int    `gorm:"not null"`
}

type BillTotals struct {
	Subtotal       int64 `json:"subtotal"`
	ServiceCharge  int64 `json:"service_charge"`
	TaxAmount      int64 `json:"tax_amount"`
	DiscountAmount int64 `json:"discount_amount"`
	TotalAmount    int64 `json:"total_amount"`
}

type BillPreview struct {
	TableNumber int     `json:"table_number"`
	Orders      []Order `json:"orders"`
	Currency    string  `json:"currency"`
	BillTotals
}

type PreviewBillRequest struct {
	TableNumber    int   `json:"table_number" binding:"required,min=1"`
	DiscountAmount int64 `json:"discount_amount" binding:"min=0"`
}

type CreateBillRequest struct {
	TableNumber    int    `json:"table_number" binding:"required,min=1"`
	DiscountAmount int64  `json:"discount_amount" binding:"min=0"`
	Notes          string `json:"notes" binding:"max=500"`
}

type BillFilter struct {
	Status      BillStatus
	TableNumber int
	Page        int
	Limit       int
}
