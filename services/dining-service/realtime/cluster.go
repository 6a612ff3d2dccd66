package realtime

import (
	"context"
	"encoding/json"
	"time"

	awspkg "github.com/yashrajoria/dining-backend/pkg/aws"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// ClusterMessage carries one emit between instances.
type ClusterMessage struct {
	Origin    string          `json:"origin"`
	Rooms     []string        `json:"rooms"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ClusterEmitter delivers to the local hub and publishes the same event for
// the other instances. Publishing runs in the background so a slow topic
// never delays the caller.
type ClusterEmitter struct {
	hub      *Hub
	sns      awspkg.SNSPublisher
	topicArn string
	origin   string
	logger   *zap.Logger
}

func NewClusterEmitter(hub *Hub, sns awspkg.SNSPublisher, topicArn, origin string, logger *zap.Logger) *ClusterEmitter {
	return &ClusterEmitter{hub: hub, sns: sns, topicArn: topicArn, origin: origin, logger: logger}
}

func (e *ClusterEmitter) Emit(ctx context.Context, rooms []string, event string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		e.logger.Error("Failed to marshal realtime event", zap.String("event", event), zap.Error(err))
		return
	}
	at := time.Now().UTC()
	e.hub.Broadcast(ctx, rooms, event, raw, at)

	payload, err := json.Marshal(ClusterMessage{Origin: e.origin, Rooms: rooms, Event: event, Data: raw, Timestamp: at})
	if err != nil {
		e.logger.Error("Failed to encode cluster message", zap.String("event", event), zap.Error(err))
		return
	}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := e.sns.Publish(pubCtx, e.topicArn, payload); err != nil {
			e.logger.Warn("Failed to publish realtime event", zap.String("event", event), zap.Error(err))
		}
	}()
}

// MessageSource is satisfied by *awspkg.SQSConsumer.
type MessageSource interface {
	StartPolling(ctx context.Context, handler awspkg.MessageHandler) error
}

// Relay replays events published by other instances into the local hub.
type Relay struct {
	hub     *Hub
	source  MessageSource
	origin  string
	metrics *awspkg.MetricsClient
	logger  *zap.Logger
}

func NewRelay(hub *Hub, source MessageSource, origin string, metrics *awspkg.MetricsClient, logger *zap.Logger) *Relay {
	return &Relay{hub: hub, source: source, origin: origin, metrics: metrics, logger: logger}
}

// Run consumes until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("Realtime relay started", zap.String("origin", r.origin))
	return r.source.StartPolling(ctx, r.Handle)
}

// Handle delivers one queue message. Malformed messages are dropped so they
// are not redelivered forever; messages this instance published are skipped.
func (r *Relay) Handle(ctx context.Context, body string) error {
	var msg ClusterMessage
	if err := json.Unmarshal([]byte(awspkg.UnwrapSNSEnvelope(body)), &msg); err != nil {
		r.logger.Warn("Dropping malformed realtime message", zap.Error(err))
		return nil
	}
	if msg.Event == "" || len(msg.Rooms) == 0 {
		r.logger.Warn("Dropping incomplete realtime message", zap.String("origin", msg.Origin))
		return nil
	}
	if msg.Origin == r.origin {
		return nil
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	r.hub.Broadcast(ctx, msg.Rooms, msg.Event, msg.Data, msg.Timestamp)
	r.metrics.RecordCount(ctx, awspkg.MetricRealtimeRelayed, map[string]string{"Event": msg.Event})
	return nil
}
