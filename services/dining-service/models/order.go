package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// orderTransitions lists the forward moves of the order state machine.
// CANCELLED is reachable from every non-terminal state.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderShipped, OrderCancelled},
	OrderShipped:   {OrderDelivered, OrderCancelled},
	OrderDelivered: {OrderCompleted, OrderCancelled},
}

// KitchenStatuses are the statuses shown on the kitchen queue, in precedence
// order.
var KitchenStatuses = []OrderStatus{OrderPending, OrderConfirmed, OrderShipped}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is one line of a guest submission.
type Order struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	GuestID        uuid.UUID      `gorm:"type:uuid;index;not null" json:"guest_id"`
	TableNumber    int            `gorm:"index;not null" json:"table_number"`
	DishSnapshotID uuid.UUID      `gorm:"type:uuid;not null" json:"dish_snapshot_id"`
	DishSnapshot   *DishSnapshot  `gorm:"foreignKey:DishSnapshotID" json:"dish_snapshot,omitempty"`
	Quantity       int            `gorm:"not null;check:quantity >= 1" json:"quantity"`
	Description    string         `gorm:"type:varchar(500)" json:"description"`
	Status         OrderStatus    `gorm:"type:varchar(20);index;not null" json:"status"`
	BillID         *uuid.UUID     `gorm:"type:uuid;index" json:"bill_id,omitempty"`
	CreatedBy      string         `gorm:"type:varchar(64)" json:"created_by"`
	UpdatedBy      string         `gorm:"type:varchar(64)" json:"updated_by"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// LineTotal is the snapshot price times the quantity. It is zero when the
// snapshot was not loaded.
func (o *Order) LineTotal() int64 {
	if o.DishSnapshot == nil {
		return 0
	}
	return o.DishSnapshot.Price * int64(o.Quantity)
}

type OrderItemRequest struct {
	DishID      uuid.UUID `json:"dish_id" binding:"required"`
	Quantity    int       `json:"quantity" binding:"required,min=1,max=99"`
	Description string    `json:"description" binding:"max=500"`
}

type SubmitOrderRequest struct {
	TableNumber int                `json:"table_number"`
	GuestID     uuid.UUID          `json:"guest_id"`
	Items       []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required,order_status"`
}

// TableBillSummary is one row of the settleable-tables overview.
type TableBillSummary struct {
	TableNumber int   `json:"table_number"`
	OrderCount  int64 `json:"order_count"`
	Subtotal    int64 `json:"subtotal"`
}
