package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
	inboundTimeout = 10 * time.Second
)

// InboundMessage is a frame sent by a client.
type InboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// InboundFunc handles a client frame. Returning an error sends an "error"
// event back to that client only.
type InboundFunc func(ctx context.Context, actor models.Actor, msg InboundMessage) error

// Client is one websocket connection bound to a single room.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	room    string
	actor   models.Actor
	send    chan []byte
	inbound InboundFunc
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, room string, actor models.Actor, inbound InboundFunc, logger *zap.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		room:    room,
		actor:   actor,
		send:    make(chan []byte, sendBuffer),
		inbound: inbound,
		logger:  logger,
	}
}

// trySend queues frame without blocking and reports whether it fit.
func (c *Client) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads client frames until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Websocket closed unexpectedly", zap.String("room", c.room), zap.Error(err))
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
		c.reply("error", map[string]string{"message": "malformed message"})
		return
	}
	if c.inbound == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()
	if err := c.inbound(ctx, c.actor, msg); err != nil {
		c.reply("error", map[string]string{"event": msg.Event, "message": err.Error()})
	}
}

func (c *Client) reply(event string, data interface{}) {
	raw, _ := json.Marshal(data)
	frame, err := json.Marshal(Envelope{Event: event, Room: c.room, Data: raw, Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}
	c.trySend(frame)
}

// writePump forwards queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
