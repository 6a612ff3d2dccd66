package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	awspkg "github.com/yashrajoria/dining-backend/pkg/aws"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"go.uber.org/zap"
)

// EventEmitter delivers realtime events to rooms. Implementations must not
// block on slow or missing subscribers.
type EventEmitter interface {
	Emit(ctx context.Context, rooms []string, event string, data interface{})
}

type eventData map[string]interface{}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, []string, string, interface{}) {}

// audience lists the rooms that hear about an order transition made by a
// role, besides the events tied to specific target statuses.
type audience struct {
	staff bool
	guest bool
}

var transitionAudience = map[models.Role]audience{
	models.RoleChef:    {staff: true, guest: true},
	models.RoleStaff:   {guest: true},
	models.RoleManager: {guest: true},
	models.RoleAdmin:   {guest: true},
}

func transitionRooms(role models.Role, tableNumber int) []string {
	a := transitionAudience[role]
	var rooms []string
	if a.staff {
		rooms = append(rooms, models.RoomStaff)
	}
	if a.guest {
		rooms = append(rooms, models.GuestRoom(tableNumber))
	}
	return rooms
}

// EventPublisher sends domain events to SNS. Failures are logged only.
type EventPublisher struct {
	sns      awspkg.SNSPublisher
	topicArn string
	logger   *zap.Logger
}

func NewEventPublisher(sns awspkg.SNSPublisher, topicArn string, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{sns: sns, topicArn: topicArn, logger: logger}
}

func (p *EventPublisher) publish(ctx context.Context, evt models.DiningEvent) {
	if p == nil || p.sns == nil || p.topicArn == "" {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("Failed to marshal domain event", zap.String("event_type", evt.EventType), zap.Error(err))
		return
	}
	if err := p.sns.Publish(ctx, p.topicArn, payload); err != nil {
		p.logger.Warn("Failed to publish domain event", zap.String("event_type", evt.EventType), zap.Error(err))
	}
}

func orderIDStrings(orders []models.Order) []string {
	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID.String()
	}
	return ids
}

func parseGuestID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
