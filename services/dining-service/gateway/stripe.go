package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
)

// stripeMinSessionTTL is the shortest expiry Stripe accepts for a checkout
// session.
const stripeMinSessionTTL = 30 * time.Minute

// StripeGateway implements Gateway with Stripe Checkout Sessions. The order
// code travels as the session's client_reference_id.
type StripeGateway struct {
	sessions      session.Client
	webhookSecret string
	now           func() time.Time
}

// NewStripeGateway creates a gateway on the default Stripe API backend.
func NewStripeGateway(apiKey, webhookSecret string) *StripeGateway {
	return NewStripeGatewayWithBackend(stripe.GetBackend(stripe.APIBackend), apiKey, webhookSecret)
}

// NewStripeGatewayWithBackend creates a gateway on a custom backend.
func NewStripeGatewayWithBackend(backend stripe.Backend, apiKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		sessions:      session.Client{B: backend, Key: apiKey},
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("stripe: checkout amount must be positive, got %d", req.Amount)
	}

	sessionExpiry := req.ExpiresAt
	if floor := g.now().Add(stripeMinSessionTTL); sessionExpiry.Before(floor) {
		sessionExpiry = floor
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderCode),
		SuccessURL:        stripe.String(req.ReturnURL),
		CancelURL:         stripe.String(req.CancelURL),
		ExpiresAt:         stripe.Int64(sessionExpiry.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Description: stripe.String(req.Description),
		},
	}
	if summary := describeItems(req.Items); summary != "" {
		params.LineItems[0].PriceData.ProductData.Description = stripe.String(summary)
	}
	if req.Buyer.Email != "" {
		params.CustomerEmail = stripe.String(req.Buyer.Email)
	}
	params.Context = ctx
	params.AddMetadata("order_code", req.OrderCode)
	if req.Buyer.Name != "" {
		params.AddMetadata("buyer_name", req.Buyer.Name)
	}
	if req.Buyer.Phone != "" {
		params.AddMetadata("buyer_phone", req.Buyer.Phone)
	}

	sess, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	raw, _ := json.Marshal(sess)
	return &Checkout{
		CheckoutURL:   sess.URL,
		PaymentLinkID: sess.ID,
		ExpiresAt:     req.ExpiresAt,
		Raw:           raw,
	}, nil
}

func (g *StripeGateway) GetStatus(ctx context.Context, ref string) (*Status, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := g.sessions.Get(ref, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get checkout session %s: %w", ref, err)
	}

	raw, _ := json.Marshal(sess)
	st := &Status{
		Outcome:       sessionOutcome(sess),
		TransactionID: transactionID(sess),
		Raw:           raw,
	}
	if st.Outcome == OutcomePaid {
		paidAt := g.now()
		st.PaidAt = &paidAt
	}
	if st.Outcome == OutcomeExpired {
		st.Reason = "checkout session expired"
	}
	return st, nil
}

// Cancel expires an open checkout session. Stripe has no cancellation
// reason, so reason is not sent.
func (g *StripeGateway) Cancel(ctx context.Context, ref, reason string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.sessions.Expire(ref, params); err != nil {
		return fmt.Errorf("stripe: expire checkout session %s: %w", ref, err)
	}
	return nil
}

// VerifyWebhook checks the Stripe-Signature header and maps checkout session
// events to a Notification.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*Notification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	var outcome Outcome
	reason := ""
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		outcome = OutcomeProcessing
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		outcome = OutcomePaid
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		outcome, reason = OutcomeFailed, "asynchronous payment failed"
	case stripe.EventTypeCheckoutSessionExpired:
		outcome, reason = OutcomeExpired, "checkout session expired"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	if event.Type == stripe.EventTypeCheckoutSessionCompleted && sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid {
		outcome = OutcomePaid
	}

	n := &Notification{
		EventID:       event.ID,
		EventType:     string(event.Type),
		OrderCode:     sess.ClientReferenceID,
		Outcome:       outcome,
		TransactionID: transactionID(&sess),
		Reason:        reason,
		Raw:           payload,
	}
	if n.OrderCode == "" {
		n.OrderCode = sess.Metadata["order_code"]
	}
	if outcome == OutcomePaid {
		paidAt := time.Unix(event.Created, 0)
		n.PaidAt = &paidAt
	}
	return n, nil
}

func sessionOutcome(sess *stripe.CheckoutSession) Outcome {
	switch sess.Status {
	case stripe.CheckoutSessionStatusExpired:
		return OutcomeExpired
	case stripe.CheckoutSessionStatusComplete:
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return OutcomeProcessing
		}
		return OutcomePaid
	default:
		return OutcomePending
	}
}

func transactionID(sess *stripe.CheckoutSession) string {
	if sess.PaymentIntent != nil {
		return sess.PaymentIntent.ID
	}
	return ""
}

func describeItems(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, it.Name))
	}
	return strings.Join(parts, ", ")
}
