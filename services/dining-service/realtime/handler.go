package realtime

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yashrajoria/dining-backend/services/common/auth"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"go.uber.org/zap"
)

// Namespaces accepted by the websocket endpoint.
const (
	NamespaceGuest   = "guest"
	NamespaceKitchen = "kitchen"
	NamespaceStaff   = "staff"
)

// AdmissionFunc reports whether token is still the admission token of the
// guest's table.
type AdmissionFunc func(ctx context.Context, tableNumber int, token string) (bool, error)

// Handler upgrades authenticated requests on /ws/:namespace.
type Handler struct {
	hub      *Hub
	verifier *auth.Verifier
	upgrader websocket.Upgrader
	inbound  InboundFunc
	admit    AdmissionFunc
	logger   *zap.Logger
}

// NewHandler creates a websocket handler. allowedOrigins empty or containing
// "*" accepts any origin; requests without an Origin header are always
// accepted. A nil admit skips the table admission check for guests.
func NewHandler(hub *Hub, verifier *auth.Verifier, allowedOrigins []string, inbound InboundFunc, admit AdmissionFunc, logger *zap.Logger) *Handler {
	h := &Handler{hub: hub, verifier: verifier, inbound: inbound, admit: admit, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// RoomFor resolves the room a caller joins in namespace. ok is false when the
// role does not belong to the namespace.
func RoomFor(namespace string, actor models.Actor) (room string, ok bool) {
	switch namespace {
	case NamespaceGuest:
		if actor.Role == models.RoleGuest && actor.TableNumber > 0 {
			return models.GuestRoom(actor.TableNumber), true
		}
	case NamespaceKitchen:
		if actor.Role == models.RoleChef {
			return models.RoomKitchen, true
		}
	case NamespaceStaff:
		if actor.Role.IsStaffSide() {
			return models.RoomStaff, true
		}
	}
	return "", false
}

// Serve authenticates before upgrading, so rejected callers get a plain HTTP
// error.
func (h *Handler) Serve(c *gin.Context) {
	namespace := c.Param("namespace")
	if namespace != NamespaceGuest && namespace != NamespaceKitchen && namespace != NamespaceStaff {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown namespace"})
		return
	}

	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("access_token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
		return
	}
	id, err := h.verifier.Identify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	actor := models.Actor{ID: id.Subject, Role: models.Role(id.Role), TableNumber: id.TableNumber, GuestID: id.GuestID}
	room, ok := RoomFor(namespace, actor)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "role not allowed in this namespace"})
		return
	}
	if actor.Role == models.RoleGuest && h.admit != nil {
		admitted, err := h.admit(c.Request.Context(), actor.TableNumber, id.TableToken)
		if err != nil {
			h.logger.Error("Table admission check failed", zap.Int("table_number", actor.TableNumber), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "table admission check failed"})
			return
		}
		if !admitted {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "table admission token is no longer valid"})
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already answered the request.
		h.logger.Warn("Websocket upgrade failed", zap.String("namespace", namespace), zap.Error(err))
		return
	}

	var inbound InboundFunc
	if actor.Role == models.RoleGuest {
		inbound = h.inbound
	}
	client := newClient(h.hub, conn, room, actor, inbound, h.logger)
	h.hub.Join(client)
	h.logger.Info("Realtime client connected",
		zap.String("namespace", namespace),
		zap.String("room", room),
		zap.String("subject", actor.ID),
	)

	go client.writePump()
	client.readPump()
}
