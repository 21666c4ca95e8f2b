// Package httpapi is the chi-based façade exposing the control surface of
// §6 over JSON, plus the WebSocket telemetry push channel of §4.7.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/rcoverride"
)

const (
	clientSendBuffer = 64
	writeWait        = 5 * time.Second
	pongWait         = 30 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RCOverrideFunc submits a validated rc_override command for one vehicle.
type RCOverrideFunc func(vehicleID string, channels [rcoverride.NumChannels]int) bool

// wsClient is one subscribed WebSocket connection.
type wsClient struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	mu         sync.RWMutex
	subscribed map[string]bool // empty means "all vehicles"
}

// Hub fans out telemetry payloads to every subscribed WebSocket client. It
// implements broadcast.Sink.
type Hub struct {
	log *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]bool

	onRCOverride RCOverrideFunc
}

func NewHub(onRCOverride RCOverrideFunc, log *logging.Logger) *Hub {
	return &Hub{
		log:          log,
		clients:      make(map[*wsClient]bool),
		onRCOverride: onRCOverride,
	}
}

// Send implements broadcast.Sink: one non-blocking enqueue per subscribed
// client, dropped on a full buffer.
func (h *Hub) Send(vehicleID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(vehicleID) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.log.Warnf("websocket client %s send buffer full, dropping frame", c.id)
		}
	}
}

// Count returns the number of currently registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a WebSocket and registers the
// resulting client on the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.log.Infof("websocket client %s connected, total=%d", c.id, h.Count())

	go c.writePump()
	go c.readPump()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.log.Infof("websocket client %s disconnected, total=%d", c.id, h.Count())
}

func (c *wsClient) isSubscribed(vehicleID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscribed) == 0 {
		return true
	}
	return c.subscribed[vehicleID]
}

// inboundMessage is the client→server WebSocket envelope: subscription
// control plus the inbound rc_override path (§6, §11).
type inboundMessage struct {
	Type      string        `json:"type"`
	VehicleID string        `json:"vehicle_id"`
	Vehicles  []string      `json:"vehicle_ids"`
	Channels  []interface{} `json:"channels"`
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			c.subscribe(msg.Vehicles)
		case "unsubscribe":
			c.unsubscribe(msg.Vehicles)
		case "rc_override":
			if c.hub.onRCOverride == nil || msg.VehicleID == "" {
				continue
			}
			channels := rcoverride.ValidateAny(msg.Channels)
			c.hub.onRCOverride(msg.VehicleID, channels)
		}
	}
}

func (c *wsClient) subscribe(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed == nil {
		c.subscribed = make(map[string]bool)
	}
	for _, id := range ids {
		c.subscribed[id] = true
	}
}

func (c *wsClient) unsubscribe(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.subscribed, id)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
