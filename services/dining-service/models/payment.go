package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "CASH"
	PaymentGateway PaymentMethod = "GATEWAY"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentPaid       PaymentStatus = "PAID"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
	PaymentExpired    PaymentStatus = "EXPIRED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

// OpenPaymentStatuses are the non-terminal statuses. At most one payment per
// bill may be in one of them.
var OpenPaymentStatuses = []PaymentStatus{PaymentPending, PaymentProcessing}

func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentPending && s != PaymentProcessing
}

// Payment is one settlement attempt against a bill.
type Payment struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BillID          uuid.UUID      `gorm:"type:uuid;index;not null" json:"bill_id"`
	Method          PaymentMethod  `gorm:"type:varchar(20);not null" json:"method"`
	Amount          int64          `gorm:"not null" json:"amount"`
	Currency        string         `gorm:"type:varchar(10);not null" json:"currency"`
	Status          PaymentStatus  `gorm:"type:varchar(20);index;not null" json:"status"`
	OrderCode       *string        `gorm:"type:varchar(64);uniqueIndex" json:"order_code,omitempty"`
	PaymentLinkID   string         `gorm:"type:varchar(255)" json:"payment_link_id,omitempty"`
	TransactionID   string         `gorm:"type:varchar(255)" json:"transaction_id,omitempty"`
	CheckoutURL     string         `gorm:"type:varchar(2048)" json:"checkout_url,omitempty"`
	QRCode          string         `gorm:"type:text" json:"qr_code,omitempty"`
	ReceivedAmount  *int64         `json:"received_amount,omitempty"`
	ChangeAmount    *int64         `json:"change_amount,omitempty"`
	GatewayResponse datatypes.JSON `gorm:"type:jsonb" json:"-"`
	FailureReason   string         `gorm:"type:varchar(500)" json:"failure_reason,omitempty"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
	ExpiredAt       *time.Time     `gorm:"index" json:"expired_at,omitempty"`
	ProcessedBy     string         `gorm:"type:varchar(64)" json:"processed_by"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// Code returns the gateway order code or "" for cash payments.
func (p *Payment) Code() string {
	if p.OrderCode == nil {
		return ""
	}
	return *p.OrderCode
}

type CashPaymentRequest struct {
	BillID         uuid.UUID `json:"bill_id" binding:"required"`
	ReceivedAmount int64     `json:"received_amount" binding:"required,min=1"`
}

type GatewayPaymentRequest struct {
	BillID     uuid.UUID `json:"bill_id" binding:"required"`
	BuyerName  string    `json:"buyer_name" binding:"max=100"`
	BuyerEmail string    `json:"buyer_email" binding:"omitempty,email"`
	BuyerPhone string    `json:"buyer_phone" binding:"max=20"`
}

type CancelPaymentRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// CashPaymentResult is returned once a cash payment has settled the bill.
type CashPaymentResult struct {
	Payment *Payment `json:"payment"`
	Bill    *Bill    `json:"bill"`
	Change  int64    `json:"change"`
}
