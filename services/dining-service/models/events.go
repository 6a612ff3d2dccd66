package models

import "time"

// Realtime event names.
const (
	EventOrderCreated          = "order-created"
	EventOrderStatusChanged    = "order-status-changed"
	EventOrderReadyForDelivery = "order-ready-for-delivery"
	EventOrderDelivered        = "order-delivered"
	EventSupportCall           = "support-call"
	EventBillCreated           = "bill-created"
	EventBillPaid              = "bill-paid"
	EventPaymentUpdated        = "payment-updated"
	EventTableStatusChanged    = "table-status-changed"
)

// Domain event types published to SNS.
const (
	DomainOrderBatchSubmitted = "order_batch_submitted"
	DomainOrderStatusChanged  = "order_status_changed"
	DomainOrderDeleted        = "order_deleted"
	DomainBillCreated         = "bill_created"
	DomainBillConfirmed       = "bill_confirmed"
	DomainBillCancelled       = "bill_cancelled"
	DomainPaymentOpened       = "payment_opened"
	DomainPaymentPaid         = "payment_paid"
	DomainPaymentClosed       = "payment_closed"
	DomainTableStatusChanged  = "table_status_changed"
)

// DiningEvent is the domain event published to SNS for downstream consumers.
type DiningEvent struct {
	EventType   string    `json:"event_type"`
	TableNumber int       `json:"table_number,omitempty"`
	OrderIDs    []string  `json:"order_ids,omitempty"`
	OrderStatus string    `json:"order_status,omitempty"`
	BillID      string    `json:"bill_id,omitempty"`
	BillNumber  string    `json:"bill_number,omitempty"`
	PaymentID   string    `json:"payment_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
