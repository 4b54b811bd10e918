package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"campus-nav-api/internal/domain"
	"campus-nav-api/internal/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// InboundMessage is what a connected client may send: publishing control,
// location ticks, browser lifecycle events and tracking subscriptions.
type InboundMessage struct {
	Type        string   `json:"type"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	DeviceName  string   `json:"deviceName,omitempty"`
	Event       string   `json:"event,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	IDs         []string `json:"ids,omitempty"`
	AllOthers   bool     `json:"allOthers,omitempty"`
}

// OutboundMessage is pushed to the client: tracking diffs and publishing
// acknowledgements
type OutboundMessage struct {
	Type      string                   `json:"type"`
	EntityID  string                   `json:"entityId,omitempty"`
	SessionID string                   `json:"sessionId,omitempty"`
	Entities  []presence.TrackedEntity `json:"entities,omitempty"`
	Message   string                   `json:"message,omitempty"`
}

// Client is one realtime connection: it hosts the connection's location
// publisher and at most one tracking subscription.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	entityID string

	publisher   *presence.Publisher
	unsubscribe func()

	// mu guards closed. A tracker callback captured before the
	// unsubscribe can still call push after teardown began, so push and
	// closeSend must agree on whether send is open.
	mu     sync.Mutex
	closed bool
}

func (c *Client) readPump() {
	defer c.hub.disconnect(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("Websocket read error",
					zap.String("entityId", c.entityID),
					zap.Error(err))
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}
		c.handle(&msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(msg *InboundMessage) {
	ctx := context.Background()

	switch msg.Type {
	case "start":
		if msg.Lat == nil || msg.Lng == nil {
			c.sendError("start requires lat and lng")
			return
		}
		if err := c.publisher.Start(ctx, *msg.Lat, *msg.Lng, msg.DisplayName, msg.DeviceName); err != nil {
			c.hub.logger.Error("Failed to start publishing",
				zap.String("entityId", c.entityID),
				zap.Error(err))
			c.sendError("failed to start publishing")
			return
		}
		c.push(&OutboundMessage{
			Type:      "started",
			EntityID:  c.entityID,
			SessionID: c.publisher.SessionID(),
		})

	case "location":
		if msg.Lat == nil || msg.Lng == nil {
			return
		}
		_ = c.publisher.UpdateLocation(ctx, *msg.Lat, *msg.Lng)

	case "lifecycle":
		// Page-hidden, blur and network-offline must transition the
		// record immediately instead of waiting for a missed heartbeat
		reason := lifecycleReason(msg.Event)
		if reason == "" {
			c.sendError("unknown lifecycle event")
			return
		}
		c.publisher.Stop(ctx, reason)

	case "stop":
		c.publisher.Stop(ctx, msg.Reason)

	case "track":
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		filter := presence.Filter{
			IDs:       msg.IDs,
			AllOthers: msg.AllOthers,
			ExcludeID: c.entityID,
		}
		c.unsubscribe = c.hub.tracker.Subscribe(filter, func(entities []presence.TrackedEntity) {
			c.push(&OutboundMessage{Type: "entities", Entities: entities})
		})

	default:
		c.sendError("unknown message type")
	}
}

func (c *Client) push(msg *OutboundMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- raw:
	default:
		// Slow consumer: drop rather than block the tracker
	}
}

// closeSend closes the send channel exactly once and marks the client so
// late pushes become no-ops instead of sends on a closed channel.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) sendError(message string) {
	c.push(&OutboundMessage{Type: "error", Message: message})
}

func lifecycleReason(event string) string {
	switch event {
	case "page_hidden":
		return domain.DisconnectPageHidden
	case "window_blur":
		return domain.DisconnectWindowBlur
	case "network_offline":
		return domain.DisconnectNetworkOffline
	default:
		return ""
	}
}
