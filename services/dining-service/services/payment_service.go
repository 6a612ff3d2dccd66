package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	awspkg "github.com/yashrajoria/dining-backend/pkg/aws"
	"github.com/yashrajoria/dining-backend/services/dining-service/gateway"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	lockTTL         = 30 * time.Second
	sweepBatchSize  = 100
	expiredReason   = "checkout link expired"
	payerCancelNote = "cancelled by payer"
)

// SignalSource names the path a payment outcome arrived through.
type SignalSource string

const (
	SourceWebhook SignalSource = "webhook"
	SourceReturn  SignalSource = "return"
	SourcePoll    SignalSource = "poll"
	SourceSweep   SignalSource = "sweep"
	SourceCancel  SignalSource = "cancel"
)

// Signal is one report of a gateway payment's outcome.
type Signal struct {
	Source        SignalSource
	OrderCode     string
	Outcome       gateway.Outcome
	TransactionID string
	PaidAt        *time.Time
	Reason        string
	Raw           []byte
}

// ReconcileResult reports what a signal did. AlreadySettled means the payment
// was closed before the signal arrived and nothing changed.
type ReconcileResult struct {
	Payment        *models.Payment
	Applied        bool
	AlreadySettled bool
}

// Webhook acknowledgement statuses.
const (
	AckProcessed = "processed"
	AckDuplicate = "duplicate"
	AckIgnored   = "ignored"
)

type WebhookAck struct {
	Status    string `json:"status"`
	OrderCode string `json:"order_code,omitempty"`
}

// ReturnParams are the query parameters of the gateway's browser redirects.
type ReturnParams struct {
	OrderCode string `form:"order_code"`
}

// Redirect error codes.
const (
	RedirectPaymentNotFound  = "payment_not_found"
	RedirectPaymentFailed    = "payment_failed"
	RedirectPaymentCancelled = "payment_cancelled"
	RedirectSystemError      = "system_error"
)

// Redirect is where to send the payer's browser after a gateway redirect.
type Redirect struct {
	Success   bool
	Error     string
	BillID    string
	PaymentID string
	Status    models.PaymentStatus
}

// PaymentConfig configures gateway checkouts.
type PaymentConfig struct {
	Currency  string
	LinkTTL   time.Duration
	ReturnURL string
	CancelURL string
}

// PaymentService defines the payment reconciliation operations.
type PaymentService interface {
	OpenCash(ctx context.Context, actor models.Actor, req *models.CashPaymentRequest) (*models.CashPaymentResult, *ServiceError)
	OpenGateway(ctx context.Context, actor models.Actor, req *models.GatewayPaymentRequest) (*models.Payment, *ServiceError)
	Reconcile(ctx context.Context, sig Signal) (*ReconcileResult, *ServiceError)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookAck, *ServiceError)
	HandleReturn(ctx context.Context, params ReturnParams) *Redirect
	HandleCancelReturn(ctx context.Context, params ReturnParams) *Redirect
	Status(ctx context.Context, paymentID uuid.UUID) (*models.Payment, *ServiceError)
	Cancel(ctx context.Context, actor models.Actor, paymentID uuid.UUID, reason string) (*models.Payment, *ServiceError)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type paymentServiceImpl struct {
	store         repository.Store
	bills         BillService
	notifications NotificationService
	gateway       gateway.Gateway
	locker        Locker
	cfg           PaymentConfig
	emitter       EventEmitter
	events        *EventPublisher
	metrics       *awspkg.MetricsClient
	logger        *zap.Logger
	now           func() time.Time
}

// NewPaymentService creates a new PaymentService. gw may be nil when no
// gateway is configured; gateway operations then fail with 502.
func NewPaymentService(
	store repository.Store,
	bills BillService,
	notifications NotificationService,
	gw gateway.Gateway,
	locker Locker,
	cfg PaymentConfig,
	emitter EventEmitter,
	events *EventPublisher,
	metrics *awspkg.MetricsClient,
	logger *zap.Logger,
) PaymentService {
	return &paymentServiceImpl{
		store:         store,
		bills:         bills,
		notifications: notifications,
		gateway:       gw,
		locker:        locker,
		cfg:           cfg,
		emitter:       emitter,
		events:        events,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

func billLockKey(id uuid.UUID) string { return "bill:" + id.String() }

func paymentLockKey(orderCode string) string { return "payment:" + orderCode }

// lockPayableBill locks a bill that can still be paid.
func lockPayableBill(ctx context.Context, tx repository.Store, billID uuid.UUID) (*models.Bill, error) {
	bill, err := tx.Bills().FindByIDForUpdate(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, notFound("bill not found")
	}
	switch bill.Status {
	case models.BillPaid:
		return nil, conflict("bill is already paid")
	case models.BillCancelled:
		return nil, conflict("bill is cancelled")
	}
	return bill, nil
}

// confirmForPayment moves a PENDING bill to CONFIRMED inside the transaction
// that records its payment.
func (s *paymentServiceImpl) confirmForPayment(ctx context.Context, tx repository.Store, bill *models.Bill, actor models.Actor) error {
	if bill.Status != models.BillPending {
		return nil
	}
	if err := tx.Bills().UpdateStatus(ctx, bill.ID, models.BillConfirmed, actor.ID); err != nil {
		return err
	}
	bill.Status = models.BillConfirmed
	s.logger.Info("Bill auto-confirmed for payment", zap.String("bill_id", bill.ID.String()))
	return nil
}

// OpenCash settles a bill with cash in one transaction.
func (s *paymentServiceImpl) OpenCash(ctx context.Context, actor models.Actor, req *models.CashPaymentRequest) (*models.CashPaymentResult, *ServiceError) {
	if req.ReceivedAmount <= 0 {
		return nil, validationError("received_amount must be positive")
	}

	unlock, err := s.locker.Lock(ctx, billLockKey(req.BillID), lockTTL)
	if err != nil {
		return nil, conflict("bill is being settled, retry")
	}
	defer unlock()

	var payment *models.Payment
	var change int64
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		bill, err := lockPayableBill(ctx, tx, req.BillID)
		if err != nil {
			return err
		}
		if err := s.confirmForPayment(ctx, tx, bill, actor); err != nil {
			return err
		}
		open, err := tx.Payments().FindOpenByBill(ctx, bill.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return conflict("bill has an open gateway payment, cancel it first")
		}
		if req.ReceivedAmount < bill.TotalAmount {
			return validationError(fmt.Sprintf("received amount %d is less than the bill total %d", req.ReceivedAmount, bill.TotalAmount))
		}

		now := s.now()
		received := req.ReceivedAmount
		change = received - bill.TotalAmount
		p := &models.Payment{
			ID:             uuid.New(),
			BillID:         bill.ID,
			Method:         models.PaymentCash,
			Amount:         bill.TotalAmount,
			Currency:       bill.Currency,
			Status:         models.PaymentPaid,
			ReceivedAmount: &received,
			ChangeAmount:   &change,
			PaidAt:         &now,
			ProcessedBy:    actor.ID,
		}
		if err := tx.Payments().Create(ctx, p); err != nil {
			return fmt.Errorf("create cash payment: %w", err)
		}
		if err := s.bills.Complete(ctx, tx, Settlement{BillID: bill.ID, PaymentID: p.ID, Method: p.Method, PaidAt: now}); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, fromTxError(err, s.logger, "Failed to record cash payment", zap.String("bill_id", req.BillID.String()))
	}

	s.logger.Info("Cash payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("bill_id", payment.BillID.String()),
		zap.Int64("amount", payment.Amount),
		zap.Int64("change", change),
	)
	bill := s.afterPaid(ctx, payment)
	return &models.CashPaymentResult{Payment: payment, Bill: bill, Change: change}, nil
}

// OpenGateway opens a hosted checkout for a bill. An unexpired open checkout
// is returned unchanged; an expired one is replaced once the gateway has
// closed it. The bill is confirmed only when the new checkout is stored.
func (s *paymentServiceImpl) OpenGateway(ctx context.Context, actor models.Actor, req *models.GatewayPaymentRequest) (*models.Payment, *ServiceError) {
	if s.gateway == nil {
		return nil, gatewayError("payment gateway not configured")
	}

	unlock, err := s.locker.Lock(ctx, billLockKey(req.BillID), lockTTL)
	if err != nil {
		return nil, conflict("bill is being settled, retry")
	}
	defer unlock()

	now := s.now()
	var bill *models.Bill
	var orders []models.Order
	var existing, stale *models.Payment

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := lockPayableBill(ctx, tx, req.BillID)
		if err != nil {
			return err
		}
		open, err := tx.Payments().FindOpenByBill(ctx, b.ID)
		if err != nil {
			return err
		}
		if open != nil {
			if open.ExpiredAt == nil || open.ExpiredAt.After(now) {
				existing = open
				return nil
			}
			stale = open
		}
		if orders, err = tx.Orders().FindByBill(ctx, b.ID); err != nil {
			return err
		}
		bill = b
		return nil
	})
	if err != nil {
		return nil, fromTxError(err, s.logger, "Failed to open gateway payment", zap.String("bill_id", req.BillID.String()))
	}
	if existing != nil {
		s.logger.Info("Reusing open checkout", zap.String("payment_id", existing.ID.String()), zap.String("order_code", existing.Code()))
		return existing, nil
	}
	if stale != nil {
		closed := s.refresh(ctx, stale, SourcePoll)
		if closed.Status == models.PaymentPaid {
			return nil, conflict("bill is already paid")
		}
		if !closed.Status.IsTerminal() {
			s.logger.Warn("Expired checkout is still open at the gateway",
				zap.String("payment_id", stale.ID.String()), zap.String("status", string(closed.Status)))
			return nil, gatewayError("previous checkout could not be closed, retry")
		}
	}

	code := uuid.NewString()
	items := make([]gateway.Item, 0, len(orders))
	for i := range orders {
		if orders[i].DishSnapshot == nil {
			continue
		}
		items = append(items, gateway.Item{
			Name:       orders[i].DishSnapshot.Name,
			Quantity:   int64(orders[i].Quantity),
			UnitAmount: orders[i].DishSnapshot.Price,
		})
	}

	checkout, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		OrderCode:   code,
		Amount:      bill.TotalAmount,
		Currency:    bill.Currency,
		Description: "Bill " + bill.BillNumber,
		Items:       items,
		Buyer:       gateway.Buyer{Name: req.BuyerName, Email: req.BuyerEmail, Phone: req.BuyerPhone},
		ReturnURL:   withOrderCode(s.cfg.ReturnURL, code),
		CancelURL:   withOrderCode(s.cfg.CancelURL, code),
		ExpiresAt:   now.Add(s.cfg.LinkTTL),
	})
	if err != nil {
		s.logger.Error("Gateway checkout failed", zap.String("bill_id", bill.ID.String()), zap.Error(err))
		s.metrics.RecordCount(ctx, awspkg.MetricGatewayErrors, map[string]string{"Operation": "CreateCheckout"})
		return nil, gatewayError("payment gateway rejected the checkout request")
	}

	expiresAt := checkout.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.cfg.LinkTTL)
	}
	payment := &models.Payment{
		ID:              uuid.New(),
		BillID:          bill.ID,
		Method:          models.PaymentGateway,
		Amount:          bill.TotalAmount,
		Currency:        bill.Currency,
		Status:          models.PaymentPending,
		OrderCode:       &code,
		PaymentLinkID:   checkout.PaymentLinkID,
		CheckoutURL:     checkout.CheckoutURL,
		QRCode:          checkout.QRCode,
		GatewayResponse: datatypes.JSON(checkout.Raw),
		ExpiredAt:       &expiresAt,
		ProcessedBy:     actor.ID,
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := lockPayableBill(ctx, tx, bill.ID)
		if err != nil {
			return err
		}
		if err := s.confirmForPayment(ctx, tx, b, actor); err != nil {
			return err
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return conflict("bill already has an open payment")
			}
			return err
		}
		return nil
	})
	if err != nil {
		_ = s.cancelAtGateway(ctx, payment, "superseded")
		return nil, fromTxError(err, s.logger, "Failed to store gateway payment", zap.String("bill_id", bill.ID.String()))
	}

	s.logger.Info("Gateway payment opened",
		zap.String("payment_id", payment.ID.String()),
		zap.String("bill_id", bill.ID.String()),
		zap.String("order_code", code),
		zap.Time("expires_at", expiresAt),
	)
	s.emitter.Emit(ctx, []string{models.RoomStaff}, models.EventPaymentUpdated, payment)
	s.events.publish(ctx, models.DiningEvent{
		EventType:   models.DomainPaymentOpened,
		TableNumber: bill.TableNumber,
		BillID:      bill.ID.String(),
		BillNumber:  bill.BillNumber,
		PaymentID:   payment.ID.String(),
		Status:      string(payment.Status),
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Actor:       actor.ID,
	})
	return payment, nil
}

func withOrderCode(base, code string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("order_code", code)
	u.RawQuery = q.Encode()
	return u.String()
}

// Reconcile applies a payment outcome exactly once. It holds the per-payment
// lock and the row lock while deciding, so concurrent webhook, return and
// poll signals converge on one transition.
func (s *paymentServiceImpl) Reconcile(ctx context.Context, sig Signal) (*ReconcileResult, *ServiceError) {
	if sig.OrderCode == "" {
		return nil, validationError("order code is required")
	}

	unlock, err := s.locker.Lock(ctx, paymentLockKey(sig.OrderCode), lockTTL)
	if err != nil {
		return nil, conflict("payment is being processed, retry")
	}
	defer unlock()

	res := &ReconcileResult{}
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		p, err := tx.Payments().FindByOrderCodeForUpdate(ctx, sig.OrderCode)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound("payment not found")
		}
		res.Payment = p

		if p.Status.IsTerminal() {
			res.AlreadySettled = true
			if p.Status != models.PaymentPaid && sig.Outcome == gateway.OutcomePaid {
				s.logger.Error("Paid signal for a closed payment, refund required",
					zap.String("payment_id", p.ID.String()),
					zap.String("order_code", sig.OrderCode),
					zap.String("status", string(p.Status)),
					zap.String("source", string(sig.Source)),
				)
			}
			return nil
		}

		settle := false
		switch sig.Outcome {
		case gateway.OutcomePending:
			return nil
		case gateway.OutcomeProcessing:
			if p.Status == models.PaymentProcessing {
				return nil
			}
			p.Status = models.PaymentProcessing
		case gateway.OutcomePaid:
			paidAt := s.now()
			if sig.PaidAt != nil {
				paidAt = *sig.PaidAt
			}
			p.Status = models.PaymentPaid
			p.PaidAt = &paidAt
			if sig.TransactionID != "" {
				p.TransactionID = sig.TransactionID
			}
			settle = true
		case gateway.OutcomeFailed:
			p.Status = models.PaymentFailed
			p.FailureReason = sig.Reason
		case gateway.OutcomeCancelled:
			p.Status = models.PaymentCancelled
			p.FailureReason = sig.Reason
		case gateway.OutcomeExpired:
			p.Status = models.PaymentExpired
			p.FailureReason = sig.Reason
		default:
			return validationError(fmt.Sprintf("unknown payment outcome %q", sig.Outcome))
		}

		if len(sig.Raw) > 0 {
			p.GatewayResponse = datatypes.JSON(sig.Raw)
		}
		if err := tx.Payments().Save(ctx, p); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
		if settle {
			if err := s.bills.Complete(ctx, tx, Settlement{BillID: p.BillID, PaymentID: p.ID, Method: p.Method, PaidAt: *p.PaidAt}); err != nil {
				return err
			}
		}
		res.Applied = true
		return nil
	})
	if err != nil {
		svcErr := fromTxError(err, s.logger, "Failed to reconcile payment",
			zap.String("order_code", sig.OrderCode), zap.String("source", string(sig.Source)))
		if svcErr.Kind == KindNotFound {
			s.logger.Warn("Payment signal for unknown order code",
				zap.String("order_code", sig.OrderCode), zap.String("source", string(sig.Source)))
		}
		return nil, svcErr
	}

	if res.AlreadySettled {
		s.logger.Info("Skipping duplicate payment signal",
			zap.String("payment_id", res.Payment.ID.String()),
			zap.String("status", string(res.Payment.Status)),
			zap.String("source", string(sig.Source)),
		)
		s.metrics.RecordCount(ctx, awspkg.MetricDuplicateSignals, map[string]string{"Source": string(sig.Source)})
		return res, nil
	}
	if res.Applied {
		s.logger.Info("Payment reconciled",
			zap.String("payment_id", res.Payment.ID.String()),
			zap.String("order_code", sig.OrderCode),
			zap.String("status", string(res.Payment.Status)),
			zap.String("source", string(sig.Source)),
		)
		s.afterReconcile(ctx, res.Payment)
	}
	return res, nil
}

func (s *paymentServiceImpl) afterReconcile(ctx context.Context, p *models.Payment) {
	switch p.Status {
	case models.PaymentPaid:
		s.afterPaid(ctx, p)
	case models.PaymentProcessing:
		s.emitter.Emit(ctx, []string{models.RoomStaff}, models.EventPaymentUpdated, p)
	default:
		s.emitter.Emit(ctx, []string{models.RoomStaff}, models.EventPaymentUpdated, p)
		s.events.publish(ctx, models.DiningEvent{
			EventType: models.DomainPaymentClosed,
			BillID:    p.BillID.String(),
			PaymentID: p.ID.String(),
			Status:    string(p.Status),
			Amount:    p.Amount,
			Currency:  p.Currency,
		})
		metric := awspkg.MetricPaymentFailed
		if p.Status == models.PaymentExpired {
			metric = awspkg.MetricPaymentExpired
		}
		s.metrics.RecordCount(ctx, metric, map[string]string{"Method": string(p.Method)})
	}
}

// afterPaid fans out a settled bill and returns it reloaded.
func (s *paymentServiceImpl) afterPaid(ctx context.Context, p *models.Payment) *models.Bill {
	bill, err := s.store.Bills().FindByID(ctx, p.BillID)
	if err != nil || bill == nil {
		s.logger.Error("Failed to reload settled bill", zap.String("bill_id", p.BillID.String()), zap.Error(err))
		s.emitter.Emit(ctx, []string{models.RoomStaff}, models.EventPaymentUpdated, p)
		return nil
	}

	s.emitter.Emit(ctx, []string{models.RoomStaff}, models.EventPaymentUpdated, p)
	s.emitter.Emit(ctx, []string{models.RoomStaff, models.GuestRoom(bill.TableNumber)}, models.EventBillPaid, eventData{
		"bill_id":      bill.ID,
		"bill_number":  bill.BillNumber,
		"table_number": bill.TableNumber,
		"total_amount": bill.TotalAmount,
		"currency":     bill.Currency,
		"method":       p.Method,
		"payment_id":   p.ID,
	})

	msg := fmt.Sprintf("Bill %s for table %d paid (%s)", bill.BillNumber, bill.TableNumber, p.Method)
	if _, svcErr := s.notifications.Notify(ctx, models.NotificationPayment, msg, models.RoomStaff, bill.TableNumber); svcErr != nil {
		s.logger.Warn("Failed to record payment notification", zap.String("bill_id", bill.ID.String()))
	}

	s.events.publish(ctx, models.DiningEvent{
		EventType:   models.DomainPaymentPaid,
		TableNumber: bill.TableNumber,
		OrderIDs:    orderIDStrings(bill.Orders),
		BillID:      bill.ID.String(),
		BillNumber:  bill.BillNumber,
		PaymentID:   p.ID.String(),
		Status:      string(p.Status),
		Amount:      p.Amount,
		Currency:    p.Currency,
		Actor:       p.ProcessedBy,
	})
	s.metrics.RecordCount(ctx, awspkg.MetricPaymentSucceeded, map[string]string{"Method": string(p.Method)})
	return bill
}

// HandleWebhook verifies and reconciles a gateway webhook. Unknown order
// codes and unrelated events are acknowledged so the gateway stops retrying.
func (s *paymentServiceImpl) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookAck, *ServiceError) {
	if s.gateway == nil {
		return nil, gatewayError("payment gateway not configured")
	}

	n, err := s.gateway.VerifyWebhook(payload, signature)
	if errors.Is(err, gateway.ErrUnhandledEvent) {
		return &WebhookAck{Status: AckIgnored}, nil
	}
	if err != nil {
		s.logger.Warn("Webhook verification failed", zap.Error(err))
		return nil, validationError("invalid webhook")
	}

	res, svcErr := s.Reconcile(ctx, Signal{
		Source:        SourceWebhook,
		OrderCode:     n.OrderCode,
		Outcome:       n.Outcome,
		TransactionID: n.TransactionID,
		PaidAt:        n.PaidAt,
		Reason:        n.Reason,
		Raw:           n.Raw,
	})
	if svcErr != nil {
		if svcErr.Kind == KindNotFound || svcErr.Kind == KindValidation {
			return &WebhookAck{Status: AckIgnored, OrderCode: n.OrderCode}, nil
		}
		return nil, svcErr
	}
	if res.AlreadySettled {
		return &WebhookAck{Status: AckDuplicate, OrderCode: n.OrderCode}, nil
	}
	return &WebhookAck{Status: AckProcessed, OrderCode: n.OrderCode}, nil
}

// HandleReturn resolves the payer's return from the checkout page. The
// redirect parameters are not trusted; the gateway is asked instead.
func (s *paymentServiceImpl) HandleReturn(ctx context.Context, params ReturnParams) *Redirect {
	p, r := s.findForRedirect(ctx, params)
	if r != nil {
		return r
	}
	return redirectFor(s.refresh(ctx, p, SourceReturn))
}

// HandleCancelReturn closes a checkout the payer abandoned, unless the
// gateway reports it paid meanwhile.
func (s *paymentServiceImpl) HandleCancelReturn(ctx context.Context, params ReturnParams) *Redirect {
	p, r := s.findForRedirect(ctx, params)
	if r != nil {
		return r
	}

	p = s.refresh(ctx, p, SourceReturn)
	if p.Status.IsTerminal() {
		return redirectFor(p)
	}

	if err := s.cancelAtGateway(ctx, p, payerCancelNote); err != nil {
		return &Redirect{Error: RedirectSystemError, BillID: p.BillID.String(), PaymentID: p.ID.String(), Status: p.Status}
	}
	res, svcErr := s.Reconcile(ctx, Signal{
		Source:    SourceReturn,
		OrderCode: p.Code(),
		Outcome:   gateway.OutcomeCancelled,
		Reason:    payerCancelNote,
	})
	if svcErr != nil {
		return &Redirect{Error: RedirectSystemError, BillID: p.BillID.String(), PaymentID: p.ID.String()}
	}
	return redirectFor(res.Payment)
}

func (s *paymentServiceImpl) findForRedirect(ctx context.Context, params ReturnParams) (*models.Payment, *Redirect) {
	if params.OrderCode == "" {
		return nil, &Redirect{Error: RedirectPaymentNotFound}
	}
	p, err := s.store.Payments().FindByOrderCode(ctx, params.OrderCode)
	if err != nil {
		s.logger.Error("Failed to load payment for redirect", zap.String("order_code", params.OrderCode), zap.Error(err))
		return nil, &Redirect{Error: RedirectSystemError}
	}
	if p == nil {
		return nil, &Redirect{Error: RedirectPaymentNotFound}
	}
	return p, nil
}

func redirectFor(p *models.Payment) *Redirect {
	r := &Redirect{BillID: p.BillID.String(), PaymentID: p.ID.String(), Status: p.Status}
	switch p.Status {
	case models.PaymentPaid:
		r.Success = true
	case models.PaymentFailed:
		r.Error = RedirectPaymentFailed
	case models.PaymentCancelled, models.PaymentExpired:
		r.Error = RedirectPaymentCancelled
	}
	return r
}

// Status returns a payment after checking an open checkout with the gateway.
// Gateway failures leave the local status unchanged.
func (s *paymentServiceImpl) Status(ctx context.Context, paymentID uuid.UUID) (*models.Payment, *ServiceError) {
	p, err := s.store.Payments().FindByID(ctx, paymentID)
	if err != nil {
		s.logger.Error("Failed to fetch payment", zap.String("payment_id", paymentID.String()), zap.Error(err))
		return nil, internalError("Failed to fetch payment")
	}
	if p == nil {
		return nil, notFound("payment not found")
	}
	return s.refresh(ctx, p, SourcePoll), nil
}

// refresh asks the gateway about an open checkout and reconciles what it
// reports. Checkouts past their expiry that the gateway still shows open
// are expired once the gateway accepts the cancel.
func (s *paymentServiceImpl) refresh(ctx context.Context, p *models.Payment, source SignalSource) *models.Payment {
	if p.Status.IsTerminal() || p.Method != models.PaymentGateway || s.gateway == nil || p.PaymentLinkID == "" {
		return p
	}

	st, err := s.gateway.GetStatus(ctx, p.PaymentLinkID)
	if err != nil {
		s.logger.Warn("Gateway status check failed, returning local status",
			zap.String("payment_id", p.ID.String()), zap.Error(err))
		s.metrics.RecordCount(ctx, awspkg.MetricGatewayErrors, map[string]string{"Operation": "GetStatus"})
		return p
	}

	sig := Signal{
		Source:        source,
		OrderCode:     p.Code(),
		Outcome:       st.Outcome,
		TransactionID: st.TransactionID,
		PaidAt:        st.PaidAt,
		Reason:        st.Reason,
		Raw:           st.Raw,
	}
	if sig.Outcome == gateway.OutcomePending && p.ExpiredAt != nil && s.now().After(*p.ExpiredAt) {
		if err := s.cancelAtGateway(ctx, p, expiredReason); err != nil {
			return p
		}
		sig.Outcome, sig.Reason = gateway.OutcomeExpired, expiredReason
	}
	if sig.Outcome == gateway.OutcomePending {
		return p
	}

	res, svcErr := s.Reconcile(ctx, sig)
	if svcErr != nil {
		return p
	}
	return res.Payment
}

// Cancel closes an open gateway checkout at the gateway and locally.
func (s *paymentServiceImpl) Cancel(ctx context.Context, actor models.Actor, paymentID uuid.UUID, reason string) (*models.Payment, *ServiceError) {
	p, err := s.store.Payments().FindByID(ctx, paymentID)
	if err != nil {
		s.logger.Error("Failed to fetch payment", zap.String("payment_id", paymentID.String()), zap.Error(err))
		return nil, internalError("Failed to fetch payment")
	}
	if p == nil {
		return nil, notFound("payment not found")
	}
	if p.Method != models.PaymentGateway {
		return nil, validationError("only gateway payments can be cancelled")
	}
	if p.Status == models.PaymentPaid {
		return nil, conflict("payment is already paid")
	}
	if p.Status.IsTerminal() {
		return nil, conflict(fmt.Sprintf("payment is already %s", p.Status))
	}
	if s.gateway == nil {
		return nil, gatewayError("payment gateway not configured")
	}
	if reason == "" {
		reason = "cancelled by " + actor.ID
	}

	if err := s.gateway.Cancel(ctx, p.PaymentLinkID, reason); err != nil {
		s.logger.Error("Gateway cancel failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
		s.metrics.RecordCount(ctx, awspkg.MetricGatewayErrors, map[string]string{"Operation": "Cancel"})
		return nil, gatewayError("payment gateway could not cancel the checkout")
	}

	res, svcErr := s.Reconcile(ctx, Signal{
		Source:    SourceCancel,
		OrderCode: p.Code(),
		Outcome:   gateway.OutcomeCancelled,
		Reason:    reason,
	})
	if svcErr != nil {
		return nil, svcErr
	}
	if res.Payment.Status == models.PaymentPaid {
		return nil, conflict("payment was settled before it could be cancelled")
	}
	return res.Payment, nil
}

// cancelAtGateway closes a checkout link. Callers keep the payment open when
// it fails.
func (s *paymentServiceImpl) cancelAtGateway(ctx context.Context, p *models.Payment, reason string) error {
	if s.gateway == nil || p.PaymentLinkID == "" {
		return nil
	}
	if err := s.gateway.Cancel(ctx, p.PaymentLinkID, reason); err != nil {
		s.logger.Warn("Gateway cancel failed",
			zap.String("payment_id", p.ID.String()),
			zap.String("payment_link_id", p.PaymentLinkID),
			zap.Error(err),
		)
		s.metrics.RecordCount(ctx, awspkg.MetricGatewayErrors, map[string]string{"Operation": "Cancel"})
		return err
	}
	return nil
}

// SweepExpired reconciles gateway payments still open past their expiry and
// returns how many were expired. Checkouts the gateway reports as paid are
// settled instead, and checkouts with a payment in flight are left alone.
func (s *paymentServiceImpl) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	payments, err := s.store.Payments().FindExpiredOpen(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("load expired payments: %w", err)
	}

	expired := 0
	for i := range payments {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		p := &payments[i]
		sig := Signal{Source: SourceSweep, OrderCode: p.Code(), Outcome: gateway.OutcomeExpired, Reason: expiredReason}

		if s.gateway != nil && p.PaymentLinkID != "" {
			st, err := s.gateway.GetStatus(ctx, p.PaymentLinkID)
			if err != nil {
				s.logger.Warn("Gateway status check failed during sweep, skipping", zap.String("payment_id", p.ID.String()), zap.Error(err))
				s.metrics.RecordCount(ctx, awspkg.MetricGatewayErrors, map[string]string{"Operation": "GetStatus"})
				continue
			}
			switch st.Outcome {
			case gateway.OutcomeProcessing:
				continue
			case gateway.OutcomePaid, gateway.OutcomeFailed, gateway.OutcomeCancelled:
				sig.Outcome, sig.Reason = st.Outcome, st.Reason
				sig.TransactionID, sig.PaidAt, sig.Raw = st.TransactionID, st.PaidAt, st.Raw
			}
		}
		if sig.Outcome == gateway.OutcomeExpired {
			if err := s.cancelAtGateway(ctx, p, expiredReason); err != nil {
				continue
			}
		}

		res, svcErr := s.Reconcile(ctx, sig)
		if svcErr != nil {
			s.logger.Warn("Sweep could not reconcile payment", zap.String("payment_id", p.ID.String()), zap.String("error", svcErr.Message))
			continue
		}
		if res.Applied && res.Payment.Status == models.PaymentExpired {
			expired++
		}
	}
	return expired, nil
}
