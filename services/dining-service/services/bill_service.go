package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	awspkg "github.com/yashrajoria/dining-backend/pkg/aws"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errBillAlreadyPaid aborts a settlement that lost the race to another one.
var errBillAlreadyPaid = errors.New("bill is already paid")

// Settlement describes a successful payment applied to a bill.
type Settlement struct {
	BillID    uuid.UUID
	PaymentID uuid.UUID
	Method    models.PaymentMethod
	PaidAt    time.Time
}

// BillService defines the bill aggregation operations.
type BillService interface {
	SettleableTables(ctx context.Context) ([]models.TableBillSummary, *ServiceError)
	Preview(ctx context.Context, req *models.PreviewBillRequest) (*models.BillPreview, *ServiceError)
	Create(ctx context.Context, actor models.Actor, req *models.CreateBillRequest) (*models.Bill, *ServiceError)
	Confirm(ctx context.Context, actor models.Actor, billID uuid.UUID) (*models.Bill, *ServiceError)
	Get(ctx context.Context, billID uuid.UUID) (*models.Bill, *ServiceError)
	List(ctx context.Context, filter models.BillFilter) ([]models.Bill, int64, *ServiceError)
	Delete(ctx context.Context, actor models.Actor, billID uuid.UUID) *ServiceError

	// Complete marks the bill PAID, its orders COMPLETED and releases the
	// table to CLEANING. It must run inside tx.
	Complete(ctx context.Context, tx repository.Store, s Settlement) error
}

type billServiceImpl struct {
	store   repository.Store
	policy  BillingPolicy
	emitter EventEmitter
	events  *EventPublisher
	metrics *awspkg.MetricsClient
	logger  *zap.Logger
	now     func() time.Time
}

// NewBillService creates a new BillService.
func NewBillService(
	store repository.Store,
	policy BillingPolicy,
	emitter EventEmitter,
	events *EventPublisher,
	metrics *awspkg.MetricsClient,
	logger *zap.Logger,
) BillService {
	return &billServiceImpl{
		store:   store,
		policy:  policy,
		emitter: emitter,
		events:  events,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *billServiceImpl) SettleableTables(ctx context.Context) ([]models.TableBillSummary, *ServiceError) {
	rows, err := s.store.Orders().SummarizeBillable(ctx)
	if err != nil {
		s.logger.Error("Failed to summarize billable orders", zap.Error(err))
		return nil, internalError("Failed to fetch tables")
	}
	return rows, nil
}

// Preview computes the bill of a table without writing anything.
func (s *billServiceImpl) Preview(ctx context.Context, req *models.PreviewBillRequest) (*models.BillPreview, *ServiceError) {
	orders, err := s.store.Orders().FindBillable(ctx, req.TableNumber)
	if err != nil {
		s.logger.Error("Failed to load billable orders", zap.Int("table_number", req.TableNumber), zap.Error(err))
		return nil, internalError("Failed to preview bill")
	}
	if len(orders) == 0 {
		return nil, preconditionFailed("no delivered orders to bill for this table")
	}

	totals, err := CalculateBillTotals(Subtotal(orders), req.DiscountAmount, s.policy)
	if err != nil {
		return nil, validationError(err.Error())
	}
	return &models.BillPreview{
		TableNumber: req.TableNumber,
		Orders:      orders,
		Currency:    s.policy.Currency,
		BillTotals:  totals,
	}, nil
}

// Create re-reads the billable orders under the table lock, allocates the
// bill number and links the orders, all in one transaction.
func (s *billServiceImpl) Create(ctx context.Context, actor models.Actor, req *models.CreateBillRequest) (*models.Bill, *ServiceError) {
	if req.DiscountAmount < 0 {
		return nil, validationError("discount_amount must not be negative")
	}

	var bill *models.Bill
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		table, err := tx.Tables().FindByNumberForUpdate(ctx, req.TableNumber)
		if err != nil {
			return err
		}
		if table == nil {
			return notFound("table not found")
		}
		if table.Status != models.TableOccupied {
			return preconditionFailed(fmt.Sprintf("table %d is not occupied", table.Number))
		}

		orders, err := tx.Orders().FindBillable(ctx, table.Number)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return preconditionFailed("no delivered orders to bill for this table")
		}

		totals, err := CalculateBillTotals(Subtotal(orders), req.DiscountAmount, s.policy)
		if err != nil {
			return validationError(err.Error())
		}

		now := s.now()
		seq, err := tx.Bills().NextSequence(ctx, now.Format("20060102"))
		if err != nil {
			return fmt.Errorf("allocate bill number: %w", err)
		}

		guestID := orders[0].GuestID
		b := &models.Bill{
			ID:             uuid.New(),
			BillNumber:     FormatBillNumber(s.policy.BillNumberPrefix, now, seq),
			TableNumber:    table.Number,
			GuestID:        &guestID,
			Subtotal:       totals.Subtotal,
			ServiceCharge:  totals.ServiceCharge,
			TaxAmount:      totals.TaxAmount,
			DiscountAmount: totals.DiscountAmount,
			TotalAmount:    totals.TotalAmount,
			Currency:       s.policy.Currency,
			Status:         models.BillPending,
			Notes:          req.Notes,
			CreatedBy:      actor.ID,
			UpdatedBy:      actor.ID,
		}
		if err := tx.Bills().Create(ctx, b); err != nil {
			return fmt.Errorf("create bill: %w", err)
		}

		ids := make([]uuid.UUID, len(orders))
		for i := range orders {
			ids[i] = orders[i].ID
		}
		linked, err := tx.Orders().LinkToBill(ctx, b.ID, ids)
		if err != nil {
			return fmt.Errorf("link orders: %w", err)
		}
		if linked != int64(len(ids)) {
			return conflict("orders were billed concurrently, retry")
		}

		for i := range orders {
			orders[i].BillID = &b.ID
		}
		b.Orders = orders
		bill = b
		return nil
	})
	if err != nil {
		return nil, fromTxError(err, s.logger, "Failed to create bill", zap.Int("table_number", req.TableNumber))
	}

	s.logger.Info("Bill created",
		zap.String("bill_id", bill.ID.String()),
		zap.String("bill_number", bill.BillNumber),
		zap.Int("table_number", bill.TableNumber),
		zap.Int64("total_amount", bill.TotalAmount),
	)

	s.emitter.Emit(ctx, []string{models.RoomStaff}, models.EventBillCreated, bill)
	s.events.publish(ctx, models.DiningEvent{
		EventType:   models.DomainBillCreated,
		TableNumber: bill.TableNumber,
		OrderIDs:    orderIDStrings(bill.Orders),
		BillID:      bill.ID.String(),
		BillNumber:  bill.BillNumber,
		Amount:      bill.TotalAmount,
		Currency:    bill.Currency,
		Actor:       actor.ID,
	})
	s.metrics.RecordCount(ctx, awspkg.MetricBillsCreated, nil)
	s.metrics.RecordValue(ctx, awspkg.MetricBillAmount, float64(bill.TotalAmount), map[string]string{"Currency": bill.Currency})

	return bill, nil
}

func (s *billServiceImpl) Confirm(ctx context.Context, actor models.Actor, billID uuid.UUID) (*models.Bill, *ServiceError) {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		bill, err := tx.Bills().FindByIDForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		if bill == nil {
			return notFound("bill not found")
		}
		if bill.Status != models.BillPending {
			return conflict(fmt.Sprintf("bill is %s, only PENDING bills can be confirmed", bill.Status))
		}
		return tx.Bills().UpdateStatus(ctx, billID, models.BillConfirmed, actor.ID)
	})
	if err != nil {
		return nil, fromTxError(err, s.logger, "Failed to confirm bill", zap.String("bill_id", billID.String()))
	}

	bill, svcErr := s.Get(ctx, billID)
	if svcErr != nil {
		return nil, svcErr
	}
	s.events.publish(ctx, models.DiningEvent{
		EventType:   models.DomainBillConfirmed,
		TableNumber: bill.TableNumber,
		BillID:      bill.ID.String(),
		BillNumber:  bill.BillNumber,
		Actor:       actor.ID,
	})
	return bill, nil
}

func (s *billServiceImpl) Get(ctx context.Context, billID uuid.UUID) (*models.Bill, *ServiceError) {
	bill, err := s.store.Bills().FindByID(ctx, billID)
	if err != nil {
		s.logger.Error("Failed to fetch bill", zap.String("bill_id", billID.String()), zap.Error(err))
		return nil, internalError("Failed to fetch bill")
	}
	if bill == nil {
		return nil, notFound("bill not found")
	}
	return bill, nil
}

func (s *billServiceImpl) List(ctx context.Context, filter models.BillFilter) ([]models.Bill, int64, *ServiceError) {
	bills, total, err := s.store.Bills().FindAll(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list bills", zap.Error(err))
		return nil, 0, internalError("Failed to fetch bills")
	}
	return bills, total, nil
}

// Delete cancels and soft-deletes an unpaid bill. Its orders become billable
// again.
func (s *billServiceImpl) Delete(ctx context.Context, actor models.Actor, billID uuid.UUID) *ServiceError {
	var bill *models.Bill
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.Bills().FindByIDForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		if b == nil {
			return notFound("bill not found")
		}
		if b.Status == models.BillPaid {
			return conflict("paid bills cannot be deleted")
		}
		open, err := tx.Payments().FindOpenByBill(ctx, billID)
		if err != nil {
			return err
		}
		if open != nil {
			return conflict("bill has an open payment, cancel it first")
		}

		if err := tx.Bills().UpdateStatus(ctx, billID, models.BillCancelled, actor.ID); err != nil {
			return err
		}
		if err := tx.Orders().UnlinkBill(ctx, billID); err != nil {
			return err
		}
		bill = b
		return tx.Bills().SoftDelete(ctx, billID)
	})
	if err != nil {
		return fromTxError(err, s.logger, "Failed to delete bill", zap.String("bill_id", billID.String()))
	}

	s.logger.Info("Bill deleted", zap.String("bill_id", billID.String()), zap.String("by", actor.ID))
	s.events.publish(ctx, models.DiningEvent{
		EventType:   models.DomainBillCancelled,
		TableNumber: bill.TableNumber,
		BillID:      bill.ID.String(),
		BillNumber:  bill.BillNumber,
		Actor:       actor.ID,
	})
	return nil
}

func (s *billServiceImpl) Complete(ctx context.Context, tx repository.Store, st Settlement) error {
	bill, err := tx.Bills().FindByIDForUpdate(ctx, st.BillID)
	if err != nil {
		return err
	}
	if bill == nil {
		return fmt.Errorf("complete bill %s: %w", st.BillID, gorm.ErrRecordNotFound)
	}
	if bill.Status == models.BillPaid {
		return errBillAlreadyPaid
	}

	if err := tx.Bills().MarkPaid(ctx, st.BillID, st.Method, st.PaidAt); err != nil {
		return fmt.Errorf("mark bill paid: %w", err)
	}
	completed, err := tx.Orders().CompleteByBill(ctx, st.BillID)
	if err != nil {
		return fmt.Errorf("complete orders: %w", err)
	}
	if err := tx.Tables().UpdateStatus(ctx, bill.TableNumber, models.TableCleaning); err != nil {
		return fmt.Errorf("release table: %w", err)
	}

	s.logger.Info("Bill settled",
		zap.String("bill_id", st.BillID.String()),
		zap.String("payment_id", st.PaymentID.String()),
		zap.Int("table_number", bill.TableNumber),
		zap.Int64("orders_completed", completed),
	)
	return nil
}
