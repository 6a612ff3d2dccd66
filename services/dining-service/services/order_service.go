package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	awspkg "github.com/yashrajoria/dining-backend/pkg/aws"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/repository"
	"go.uber.org/zap"
)

const idempotencyTTL = 10 * time.Minute

// chefTargets are the statuses the kitchen may move an order to.
var chefTargets = map[models.OrderStatus]bool{
	models.OrderConfirmed: true,
	models.OrderShipped:   true,
	models.OrderCancelled: true,
}

// OrderService defines the order lifecycle operations.
type OrderService interface {
	SubmitBatch(ctx context.Context, actor models.Actor, req *models.SubmitOrderRequest, idempotencyKey string) ([]models.Order, *ServiceError)
	Transition(ctx context.Context, actor models.Actor, orderID uuid.UUID, status models.OrderStatus) (*models.Order, *ServiceError)
	KitchenQueue(ctx context.Context, page, limit int) ([]models.Order, int64, *ServiceError)
	DeliveryQueue(ctx context.Context, page, limit int) ([]models.Order, int64, *ServiceError)
	List(ctx context.Context, page, limit int) ([]models.Order, int64, *ServiceError)
	ListByTable(ctx context.Context, actor models.Actor, tableNumber int) ([]models.Order, *ServiceError)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, *ServiceError)
	Delete(ctx context.Context, actor models.Actor, orderID uuid.UUID) *ServiceError
}

type orderServiceImpl struct {
	store   repository.Store
	emitter EventEmitter
	idem    IdempotencyStore
	events  *EventPublisher
	metrics *awspkg.MetricsClient
	logger  *zap.Logger
}

// NewOrderService creates a new OrderService. idem may be nil, in which case
// Idempotency-Key is ignored.
func NewOrderService(
	store repository.Store,
	emitter EventEmitter,
	idem IdempotencyStore,
	events *EventPublisher,
	metrics *awspkg.MetricsClient,
	logger *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		store:   store,
		emitter: emitter,
		idem:    idem,
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
}

// SubmitBatch snapshots every dish and creates one order per item in a single
// transaction. Guests always order for their own table and guest id.
func (s *orderServiceImpl) SubmitBatch(ctx context.Context, actor models.Actor, req *models.SubmitOrderRequest, idempotencyKey string) ([]models.Order, *ServiceError) {
	if actor.Role == models.RoleGuest {
		req.TableNumber = actor.TableNumber
		req.GuestID = parseGuestID(actor.GuestID)
	}
	if req.TableNumber <= 0 {
		return nil, validationError("table_number is required")
	}
	if req.GuestID == uuid.Nil {
		return nil, validationError("guest_id is required")
	}
	if len(req.Items) == 0 {
		return nil, validationError("at least one item is required")
	}

	reserved := false
	if idempotencyKey != "" && s.idem != nil {
		orders, ok, svcErr := s.reserve(ctx, idempotencyKey)
		if svcErr != nil {
			return nil, svcErr
		}
		if orders != nil {
			return orders, nil
		}
		reserved = ok
	}

	var created []models.Order
	tableOpened := false

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		table, err := tx.Tables().FindByNumberForUpdate(ctx, req.TableNumber)
		if err != nil {
			return err
		}
		if table == nil {
			return notFound("table not found")
		}
		if !table.Status.AcceptsOrders() {
			return preconditionFailed(fmt.Sprintf("table %d is not ready for orders (%s)", table.Number, table.Status))
		}

		guest, err := tx.Guests().FindByID(ctx, req.GuestID)
		if err != nil {
			return err
		}
		if guest == nil || guest.TableNumber != table.Number {
			return preconditionFailed("guest not found at this table")
		}

		orders := make([]models.Order, 0, len(req.Items))
		for _, item := range req.Items {
			dish, err := tx.Dishes().FindByID(ctx, item.DishID)
			if err != nil {
				return err
			}
			if dish == nil {
				return notFound(fmt.Sprintf("dish %s not found", item.DishID))
			}

			snapshot := models.SnapshotOf(dish)
			if err := tx.Dishes().CreateSnapshot(ctx, &snapshot); err != nil {
				return fmt.Errorf("create dish snapshot: %w", err)
			}

			status := models.OrderPending
			if dish.Status != models.DishActive {
				status = models.OrderCancelled
			}
			orders = append(orders, models.Order{
				ID:             uuid.New(),
				GuestID:        guest.ID,
				TableNumber:    table.Number,
				DishSnapshotID: snapshot.ID,
				DishSnapshot:   &snapshot,
				Quantity:       item.Quantity,
				Description:    item.Description,
				Status:         status,
				CreatedBy:      actor.ID,
				UpdatedBy:      actor.ID,
			})
		}

		if err := tx.Orders().CreateBatch(ctx, orders); err != nil {
			return fmt.Errorf("create orders: %w", err)
		}

		if table.Status != models.TableOccupied {
			if err := tx.Tables().UpdateStatus(ctx, table.Number, models.TableOccupied); err != nil {
				return fmt.Errorf("occupy table: %w", err)
			}
			tableOpened = true
		}

		created = orders
		return nil
	})
	if err != nil {
		if reserved {
			if err := s.idem.Release(ctx, idempotencyKey); err != nil {
				s.logger.Warn("Failed to release idempotency key", zap.String("key", idempotencyKey), zap.Error(err))
			}
		}
		return nil, fromTxError(err, s.logger, "Failed to submit orders", zap.Int("table_number", req.TableNumber))
	}

	s.logger.Info("Orders submitted",
		zap.Int("table_number", req.TableNumber),
		zap.String("guest_id", req.GuestID.String()),
		zap.Int("count", len(created)),
	)

	s.emitter.Emit(ctx, []string{models.RoomKitchen}, models.EventOrderCreated, created)
	if tableOpened {
		s.emitter.Emit(ctx, []string{models.RoomStaff}, models.EventTableStatusChanged, eventData{
			"table_number": req.TableNumber,
			"status":       models.TableOccupied,
		})
	}

	if reserved {
		ids := make([]uuid.UUID, len(created))
		for i := range created {
			ids[i] = created[i].ID
		}
		if err := s.idem.Put(ctx, idempotencyKey, ids, idempotencyTTL); err != nil {
			s.logger.Warn("Failed to store idempotency key", zap.String("key", idempotencyKey), zap.Error(err))
		}
	}

	s.events.publish(ctx, models.DiningEvent{
		EventType:   models.DomainOrderBatchSubmitted,
		TableNumber: req.TableNumber,
		OrderIDs:    orderIDStrings(created),
		Actor:       actor.ID,
	})
	s.metrics.RecordValue(ctx, awspkg.MetricOrdersCreated, float64(len(created)), nil)

	return created, nil
}

// reserve claims an Idempotency-Key for a new submission. It returns the
// earlier orders when the key already completed, and a conflict while another
// submission holds it. Store failures fall back to submitting without a key.
func (s *orderServiceImpl) reserve(ctx context.Context, key string) ([]models.Order, bool, *ServiceError) {
	ok, err := s.idem.Reserve(ctx, key, idempotencyTTL)
	if err != nil {
		s.logger.Warn("Idempotency reservation failed", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if ok {
		return nil, true, nil
	}

	ids, found, err := s.idem.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false, conflict("request with this Idempotency-Key could not be checked, retry")
	}
	if !found || len(ids) == 0 {
		return nil, false, conflict("request with this Idempotency-Key is in progress")
	}
	orders, err := s.store.Orders().FindByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("Failed to load replayed orders", zap.String("key", key), zap.Error(err))
		return nil, false, internalError("Failed to load orders")
	}
	if orders == nil {
		orders = []models.Order{}
	}
	s.logger.Info("Replaying order submission", zap.String("key", key), zap.Int("count", len(orders)))
	return orders, false, nil
}

// Transition moves an order one step along its state machine.
func (s *orderServiceImpl) Transition(ctx context.Context, actor models.Actor, orderID uuid.UUID, status models.OrderStatus) (*models.Order, *ServiceError) {
	if !status.Valid() {
		return nil, validationError(fmt.Sprintf("unknown order status %q", status))
	}
	if status == models.OrderCompleted {
		return nil, conflict("orders are completed by bill settlement")
	}
	switch {
	case actor.Role == models.RoleChef:
		if !chefTargets[status] {
			return nil, forbidden(fmt.Sprintf("kitchen cannot move orders to %s", status))
		}
	case actor.Role.IsStaffSide():
	default:
		return nil, forbidden("role cannot change order status")
	}

	var from models.OrderStatus
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return notFound("order not found")
		}
		if order.BillID != nil {
			return conflict("order is already billed")
		}
		if !order.Status.CanTransitionTo(status) {
			return conflict(fmt.Sprintf("cannot move order from %s to %s", order.Status, status))
		}
		from = order.Status
		return tx.Orders().UpdateStatus(ctx, orderID, status, actor.ID)
	})
	if err != nil {
		return nil, fromTxError(err, s.logger, "Failed to update order status", zap.String("order_id", orderID.String()))
	}

	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil || order == nil {
		s.logger.Error("Failed to reload order", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, internalError("Failed to load order")
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", orderID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.String("role", string(actor.Role)),
	)

	guestRoom := models.GuestRoom(order.TableNumber)
	s.emitter.Emit(ctx, transitionRooms(actor.Role, order.TableNumber), models.EventOrderStatusChanged, order)
	if actor.Role == models.RoleChef && status == models.OrderShipped {
		s.emitter.Emit(ctx, []string{models.RoomStaff}, models.EventOrderReadyForDelivery, order)
	}
	if actor.Role.IsStaffSide() && status == models.OrderDelivered {
		s.emitter.Emit(ctx, []string{guestRoom}, models.EventOrderDelivered, order)
	}

	s.events.publish(ctx, models.DiningEvent{
		EventType:   models.DomainOrderStatusChanged,
		TableNumber: order.TableNumber,
		OrderIDs:    []string{order.ID.String()},
		OrderStatus: string(status),
		Actor:       actor.ID,
	})
	s.metrics.RecordCount(ctx, awspkg.MetricOrderTransitions, map[string]string{"Status": string(status)})
	if status == models.OrderCancelled {
		s.metrics.RecordCount(ctx, awspkg.MetricOrdersCancelled, nil)
	}

	return order, nil
}

func (s *orderServiceImpl) KitchenQueue(ctx context.Context, page, limit int) ([]models.Order, int64, *ServiceError) {
	orders, total, err := s.store.Orders().FindKitchenQueue(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to load kitchen queue", zap.Error(err))
		return nil, 0, internalError("Failed to fetch orders")
	}
	return orders, total, nil
}

func (s *orderServiceImpl) DeliveryQueue(ctx context.Context, page, limit int) ([]models.Order, int64, *ServiceError) {
	orders, total, err := s.store.Orders().FindDeliveryQueue(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to load delivery queue", zap.Error(err))
		return nil, 0, internalError("Failed to fetch orders")
	}
	return orders, total, nil
}

func (s *orderServiceImpl) List(ctx context.Context, page, limit int) ([]models.Order, int64, *ServiceError) {
	orders, total, err := s.store.Orders().FindAll(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Error(err))
		return nil, 0, internalError("Failed to fetch orders")
	}
	return orders, total, nil
}

// ListByTable returns the active orders of a table. Guests only see their own
// table.
func (s *orderServiceImpl) ListByTable(ctx context.Context, actor models.Actor, tableNumber int) ([]models.Order, *ServiceError) {
	if actor.Role == models.RoleGuest && actor.TableNumber != tableNumber {
		return nil, forbidden("guests can only view their own table")
	}
	orders, err := s.store.Orders().FindActiveByTable(ctx, tableNumber)
	if err != nil {
		s.logger.Error("Failed to list table orders", zap.Int("table_number", tableNumber), zap.Error(err))
		return nil, internalError("Failed to fetch orders")
	}
	return orders, nil
}

func (s *orderServiceImpl) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, *ServiceError) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to fetch order", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, internalError("Failed to fetch order")
	}
	if order == nil {
		return nil, notFound("order not found")
	}
	return order, nil
}

// Delete soft-deletes an order that no bill claims.
func (s *orderServiceImpl) Delete(ctx context.Context, actor models.Actor, orderID uuid.UUID) *ServiceError {
	var tableNumber int
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return notFound("order not found")
		}
		if order.BillID != nil {
			return conflict("billed orders cannot be deleted")
		}
		tableNumber = order.TableNumber
		return tx.Orders().SoftDelete(ctx, orderID)
	})
	if err != nil {
		return fromTxError(err, s.logger, "Failed to delete order", zap.String("order_id", orderID.String()))
	}

	s.logger.Info("Order deleted", zap.String("order_id", orderID.String()), zap.String("by", actor.ID))
	s.events.publish(ctx, models.DiningEvent{
		EventType:   models.DomainOrderDeleted,
		TableNumber: tableNumber,
		OrderIDs:    []string{orderID.String()},
		Actor:       actor.ID,
	})
	return nil
}
