package services

import (
	"context"
	"fmt"

	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/repository"
	"go.uber.org/zap"
)

// manualTableTransitions are the status changes staff may make by hand.
// OCCUPIED -> CLEANING belongs to bill settlement.
var manualTableTransitions = map[models.TableStatus][]models.TableStatus{
	models.TableCleaning:    {models.TableAvailable},
	models.TableAvailable:   {models.TableUnavailable, models.TableOccupied},
	models.TableUnavailable: {models.TableAvailable},
}

type TableService interface {
	List(ctx context.Context) ([]models.Table, *ServiceError)
	UpdateStatus(ctx context.Context, actor models.Actor, tableNumber int, status models.TableStatus) (*models.Table, *ServiceError)
	Admit(ctx context.Context, tableNumber int, token string) (bool, *ServiceError)
}

type tableServiceImpl struct {
	store   repository.Store
	emitter EventEmitter
	events  *EventPublisher
	logger  *zap.Logger
}

func NewTableService(store repository.Store, emitter EventEmitter, events *EventPublisher, logger *zap.Logger) TableService {
	return &tableServiceImpl{store: store, emitter: emitter, events: events, logger: logger}
}

func (s *tableServiceImpl) List(ctx context.Context) ([]models.Table, *ServiceError) {
	tables, err := s.store.Tables().FindAll(ctx)
	if err != nil {
		s.logger.Error("Failed to list tables", zap.Error(err))
		return nil, internalError("Failed to fetch tables")
	}
	return tables, nil
}

func (s *tableServiceImpl) UpdateStatus(ctx context.Context, actor models.Actor, tableNumber int, status models.TableStatus) (*models.Table, *ServiceError) {
	var table *models.Table
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		t, err := tx.Tables().FindByNumberForUpdate(ctx, tableNumber)
		if err != nil {
			return err
		}
		if t == nil {
			return notFound("table not found")
		}
		if !manualTableAllowed(t.Status, status) {
			return conflict(fmt.Sprintf("cannot move table from %s to %s", t.Status, status))
		}
		if err := tx.Tables().UpdateStatus(ctx, tableNumber, status); err != nil {
			return err
		}
		t.Status = status
		table = t
		return nil
	})
	if err != nil {
		return nil, fromTxError(err, s.logger, "Failed to update table status", zap.Int("table_number", tableNumber))
	}

	s.logger.Info("Table status changed",
		zap.Int("table_number", tableNumber),
		zap.String("status", string(status)),
		zap.String("by", actor.ID),
	)
	s.emitter.Emit(ctx, []string{models.RoomStaff}, models.EventTableStatusChanged, table)
	s.events.publish(ctx, models.DiningEvent{
		EventType:   models.DomainTableStatusChanged,
		TableNumber: tableNumber,
		Status:      string(status),
		Actor:       actor.ID,
	})
	return table, nil
}

// Admit reports whether token is the table's current admission token. Staff
// rotate the token to lock out guests from an earlier seating.
func (s *tableServiceImpl) Admit(ctx context.Context, tableNumber int, token string) (bool, *ServiceError) {
	if tableNumber <= 0 || token == "" {
		return false, nil
	}
	table, err := s.store.Tables().FindByNumberAndToken(ctx, tableNumber, token)
	if err != nil {
		s.logger.Error("Failed to check table admission", zap.Int("table_number", tableNumber), zap.Error(err))
		return false, internalError("Failed to check table admission")
	}
	return table != nil, nil
}

func manualTableAllowed(from, to models.TableStatus) bool {
	for _, allowed := range manualTableTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
