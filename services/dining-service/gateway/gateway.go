// Package gateway abstracts the external payment provider used for
// card/online settlement of bills.
package gateway

import (
	"context"
	"errors"
	"time"
)

// Outcome is the provider-neutral state of a checkout.
type Outcome string

const (
	OutcomePending    Outcome = "PENDING"
	OutcomeProcessing Outcome = "PROCESSING"
	OutcomePaid       Outcome = "PAID"
	OutcomeFailed     Outcome = "FAILED"
	OutcomeCancelled  Outcome = "CANCELLED"
	OutcomeExpired    Outcome = "EXPIRED"
)

var (
	// ErrInvalidSignature is returned by VerifyWebhook when the payload was
	// not signed by the provider.
	ErrInvalidSignature = errors.New("gateway: invalid webhook signature")
	// ErrUnhandledEvent is returned by VerifyWebhook for authentic events that
	// carry no payment outcome.
	ErrUnhandledEvent = errors.New("gateway: unhandled webhook event")
)

type Item struct {
	Name       string
	Quantity   int64
	UnitAmount int64
}

type Buyer struct {
	Name  string
	Email string
	Phone string
}

// CheckoutRequest describes the hosted checkout to open for one payment.
type CheckoutRequest struct {
	OrderCode   string
	Amount      int64
	Currency    string
	Description string
	Items       []Item
	Buyer       Buyer
	ReturnURL   string
	CancelURL   string
	ExpiresAt   time.Time
}

type Checkout struct {
	CheckoutURL   string
	QRCode        string
	PaymentLinkID string
	ExpiresAt     time.Time
	Raw           []byte
}

// Status is the provider's current view of a checkout.
type Status struct {
	Outcome       Outcome
	TransactionID string
	PaidAt        *time.Time
	Reason        string
	Raw           []byte
}

// Notification is a verified webhook event reduced to its payment outcome.
type Notification struct {
	EventID       string
	EventType     string
	OrderCode     string
	Outcome       Outcome
	TransactionID string
	PaidAt        *time.Time
	Reason        string
	Raw           []byte
}

// Gateway is the payment provider. ref is the PaymentLinkID returned by
// CreateCheckout.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	GetStatus(ctx context.Context, ref string) (*Status, error)
	Cancel(ctx context.Context, ref, reason string) error
	VerifyWebhook(payload []byte, signature string) (*Notification, error)
}
