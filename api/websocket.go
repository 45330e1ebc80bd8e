package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avenlane/jobqueue/eventbus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEvent is the shape pushed to every connected client.
type wsEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub fans out job lifecycle events to WebSocket clients. It subscribes
// to every topic on an eventbus.Bus, queues each publish on its own
// buffered broadcast channel, and Run delivers the queued events to its
// registered clients.
type Hub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan wsEvent
	done       chan struct{}
	mu         sync.RWMutex
	log        *slog.Logger

	bus         *eventbus.Bus
	subscribed  []string
	subHandlers []eventbus.Handler
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub and subscribes it to every topic bus publishes.
func NewHub(bus *eventbus.Bus, log *slog.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan wsEvent, 256),
		done:       make(chan struct{}),
		log:        log,
		bus:        bus,
	}
	for _, topic := range []string{
		eventbus.TopicJobSubmitted, eventbus.TopicJobStarted, eventbus.TopicJobCompleted,
		eventbus.TopicJobFailed, eventbus.TopicJobRetry, eventbus.TopicJobDLQ, eventbus.TopicMetricsUpdated,
	} {
		t := topic
		handler := func(ctx context.Context, payload any) {
			h.Broadcast(t, payload)
		}
		bus.Subscribe(t, handler)
		h.subscribed = append(h.subscribed, t)
		h.subHandlers = append(h.subHandlers, handler)
	}
	return h
}

// Run is the hub's single-threaded event loop; it must be started as a
// goroutine before any client is served.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Warn("failed to marshal ws event", "type", event.Type, "err", err)
				continue
			}
			h.mu.RLock()
			var slow []*wsClient
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			if len(slow) > 0 {
				h.mu.Lock()
				for _, c := range slow {
					delete(h.clients, c)
					close(c.send)
				}
				h.mu.Unlock()
			}
		}
	}
}

// Stop signals Run's loop to exit and unsubscribes the hub from every
// topic it registered in NewHub.
func (h *Hub) Stop() {
	for i, topic := range h.subscribed {
		h.bus.Unsubscribe(topic, h.subHandlers[i])
	}
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// Broadcast enqueues an event for delivery to every connected client.
// It never blocks: a full queue drops the event and logs a warning.
func (h *Hub) Broadcast(eventType string, payload any) {
	select {
	case h.broadcast <- wsEvent{Type: eventType, Payload: payload}:
	default:
		h.log.Warn("ws broadcast queue full, dropping event", "type", eventType)
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request to a WebSocket connection and registers
// the resulting client with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pongMessage is the shape of an application-level {"type":"pong"}
// message. readPump reads client messages only to detect disconnects;
// it recognises a pong message but sends no reply to it or to any other
// client message.
type pongMessage struct {
	Type string `json:"type"`
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg pongMessage
		if json.Unmarshal(data, &msg) == nil && msg.Type == "pong" {
			continue
		}
	}
}
