// Package realtime delivers dining events to websocket clients grouped in
// rooms, and relays them between service instances over SNS and SQS.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	awspkg "github.com/yashrajoria/dining-backend/pkg/aws"
	"go.uber.org/zap"
)

// Envelope is the frame a websocket client receives.
type Envelope struct {
	Event     string          `json:"event"`
	Room      string          `json:"room"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hub tracks connected clients by room. Delivery never blocks: a client whose
// send buffer is full is disconnected.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	metrics *awspkg.MetricsClient
	logger  *zap.Logger
	now     func() time.Time
}

func NewHub(metrics *awspkg.MetricsClient, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	members, ok := h.rooms[c.room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[c.room] = members
	}
	members[c] = struct{}{}
	size := len(members)
	h.mu.Unlock()

	h.logger.Debug("Client joined room", zap.String("room", c.room), zap.String("subject", c.actor.ID), zap.Int("size", size))
}

// Leave removes c from its room and closes its send channel. Calling it more
// than once is safe.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	h.mu.Unlock()
	c.closeSend()
}

// RoomSize returns the number of clients connected to room on this instance.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Emit marshals data once and delivers it to every listed room. It satisfies
// the services' EventEmitter.
func (h *Hub) Emit(ctx context.Context, rooms []string, event string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal realtime event", zap.String("event", event), zap.Error(err))
		return
	}
	h.Broadcast(ctx, rooms, event, raw, h.now().UTC())
}

// Broadcast delivers an already encoded payload. Repeated rooms are sent to
// once.
func (h *Hub) Broadcast(ctx context.Context, rooms []string, event string, data json.RawMessage, at time.Time) {
	var slow []*Client
	seen := make(map[string]bool, len(rooms))

	h.mu.RLock()
	for _, room := range rooms {
		if seen[room] {
			continue
		}
		seen[room] = true

		members := h.rooms[room]
		if len(members) == 0 {
			continue
		}
		frame, err := json.Marshal(Envelope{Event: event, Room: room, Data: data, Timestamp: at})
		if err != nil {
			h.logger.Error("Failed to encode envelope", zap.String("event", event), zap.Error(err))
			continue
		}
		for c := range members {
			if !c.trySend(frame) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow realtime client",
			zap.String("room", c.room),
			zap.String("subject", c.actor.ID),
			zap.String("event", event),
		)
		h.metrics.RecordCount(ctx, awspkg.MetricRealtimeDropped, map[string]string{"Room": roomKind(c.room)})
		h.Leave(c)
	}
}

// roomKind collapses per-table guest rooms into one metric dimension.
func roomKind(room string) string {
	if len(room) > 6 && room[:6] == "guest:" {
		return "guest"
	}
	return room
}
