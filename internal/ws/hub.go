package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"campus-nav-api/internal/metrics"
	"campus-nav-api/internal/middleware"
	"campus-nav-api/internal/presence"
	"campus-nav-api/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub owns the realtime connections. Each connection gets its own
// location publisher; when the socket dies without a clean stop, the hub
// fires the publisher's registered disconnect write so the entity's
// record flips offline no matter how the client went away.
type Hub struct {
	store     store.PresenceStore
	tracker   *presence.Tracker
	validator middleware.TokenValidator
	cfg       presence.PublisherConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[*Client]bool
}

func NewHub(
	st store.PresenceStore,
	tracker *presence.Tracker,
	validator middleware.TokenValidator,
	cfg presence.PublisherConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		store:     st,
		tracker:   tracker,
		validator: validator,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		clients:   make(map[*Client]bool),
	}
}

// HandlePresence upgrades the connection and runs the pumps. The entity
// id is the authenticated user id when a valid token is supplied, or a
// generated device id for anonymous publishers.
func (h *Hub) HandlePresence(c *gin.Context) {
	entityID := h.resolveEntity(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 64),
		entityID:  entityID,
		publisher: presence.NewPublisher(h.store, h.logger, entityID, h.cfg),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSConnectionsActive.Set(float64(count))
	}

	h.logger.Info("Realtime client connected",
		zap.String("entityId", entityID),
		zap.Int("connections", count))

	go client.writePump()
	go client.readPump()
}

// disconnect tears a client down. If the client was still publishing the
// registered disconnect write fires, flipping its record to offline.
func (h *Hub) disconnect(client *Client) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	if client.unsubscribe != nil {
		client.unsubscribe()
		client.unsubscribe = nil
	}

	if sessionID := client.publisher.Abandon(); sessionID != "" {
		h.store.FireDisconnect(context.Background(), sessionID)
		h.logger.Info("Disconnect rule fired",
			zap.String("entityId", client.entityID),
			zap.String("sessionId", sessionID))
	}

	client.closeSend()
	_ = client.conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnectionsActive.Set(float64(count))
	}

	h.logger.Info("Realtime client disconnected",
		zap.String("entityId", client.entityID),
		zap.Int("connections", count))
}

func (h *Hub) resolveEntity(c *gin.Context) string {
	if token := c.Query("token"); token != "" && h.validator != nil {
		if userID, err := h.validator.ValidateToken(c.Request.Context(), token); err == nil {
			return userID
		}
		h.logger.Warn("Websocket token rejected, treating client as anonymous device")
	}
	return fmt.Sprintf("device-%s", uuid.New().String()[:8])
}
