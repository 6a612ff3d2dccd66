package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	awspkg "github.com/yashrajoria/dining-backend/pkg/aws"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type NotificationService interface {
	Notify(ctx context.Context, typ models.NotificationType, message, room string, tableNumber int) (*models.Notification, *ServiceError)
	CallStaff(ctx context.Context, tableNumber int, guestID, message string) (*models.Notification, *ServiceError)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int64, *ServiceError)
	MarkRead(ctx context.Context, id uuid.UUID) *ServiceError
}

type notificationServiceImpl struct {
	store   repository.Store
	emitter EventEmitter
	metrics *awspkg.MetricsClient
	logger  *zap.Logger
}

func NewNotificationService(store repository.Store, emitter EventEmitter, metrics *awspkg.MetricsClient, logger *zap.Logger) NotificationService {
	return &notificationServiceImpl{store: store, emitter: emitter, metrics: metrics, logger: logger}
}

// Notify persists a notification addressed to room.
func (s *notificationServiceImpl) Notify(ctx context.Context, typ models.NotificationType, message, room string, tableNumber int) (*models.Notification, *ServiceError) {
	n := &models.Notification{
		ID:          uuid.New(),
		Type:        typ,
		Message:     message,
		Room:        room,
		TableNumber: tableNumber,
	}
	if err := s.store.Notifications().Create(ctx, n); err != nil {
		s.logger.Error("Failed to store notification",
			zap.String("type", string(typ)),
			zap.String("room", room),
			zap.Error(err),
		)
		return nil, internalError("Failed to store notification")
	}
	return n, nil
}

// CallStaff records a guest's request for help and alerts the staff room.
func (s *notificationServiceImpl) CallStaff(ctx context.Context, tableNumber int, guestID, message string) (*models.Notification, *ServiceError) {
	if tableNumber <= 0 {
		return nil, validationError("table_number is required")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = fmt.Sprintf("Table %d needs assistance", tableNumber)
	}
	if len(message) > 500 {
		return nil, validationError("message must be at most 500 characters")
	}

	n, svcErr := s.Notify(ctx, models.NotificationSupport, message, models.RoomStaff, tableNumber)
	if svcErr != nil {
		return nil, svcErr
	}

	s.logger.Info("Support call", zap.Int("table_number", tableNumber), zap.String("guest_id", guestID))
	s.emitter.Emit(ctx, []string{models.RoomStaff}, models.EventSupportCall, eventData{
		"notification": n,
		"guest_id":     guestID,
	})
	s.metrics.RecordCount(ctx, awspkg.MetricSupportCalls, nil)
	return n, nil
}

func (s *notificationServiceImpl) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int64, *ServiceError) {
	items, total, err := s.store.Notifications().FindAll(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list notifications", zap.Error(err))
		return nil, 0, internalError("Failed to fetch notifications")
	}
	return items, total, nil
}

func (s *notificationServiceImpl) MarkRead(ctx context.Context, id uuid.UUID) *ServiceError {
	err := s.store.Notifications().MarkRead(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("notification not found")
	}
	if err != nil {
		s.logger.Error("Failed to mark notification read", zap.String("notification_id", id.String()), zap.Error(err))
		return internalError("Failed to update notification")
	}
	return nil
}
