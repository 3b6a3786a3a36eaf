package server

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/gogpu/planetmap"
	"github.com/gogpu/planetmap/internal/metrics"
	"github.com/gogpu/planetmap/view"
)

// Message types sent on the state stream.
const (
	MessageState        = "state"
	MessageNotification = "notification"
)

// Message is one frame of the state stream.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans messages out to websocket clients. New clients first receive the
// latest state message.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	stop       sync.Once

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

// NewHub creates a Hub. Serve must run for messages to be delivered.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Serve runs the hub until ctx is done, then closes every client. A stopped
// hub refuses new clients.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.stop.Do(func() { close(h.done) })
			h.closeAll()
			return ctx.Err()
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			last := h.last
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			if last != nil {
				h.deliver(c, last)
			}
			planetmap.Logger().Debug("websocket client connected", "clients", n)
		case c := <-h.unregister:
			h.drop(c)
		case msg := <-h.broadcast:
			h.mu.Lock()
			targets := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				targets = append(targets, c)
			}
			h.mu.Unlock()
			for _, c := range targets {
				h.deliver(c, msg)
			}
		}
	}
}

// String names the hub in supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		planetmap.Logger().Warn("websocket: encode failed", "type", msg.Type, "error", err)
		return
	}
	if msg.Type == MessageState {
		h.mu.Lock()
		h.last = data
		h.mu.Unlock()
	}
	select {
	case h.broadcast <- data:
	default:
		planetmap.Logger().Warn("websocket: broadcast queue full", "type", msg.Type)
	}
}

// BroadcastState sends a view snapshot.
func (h *Hub) BroadcastState(s view.State) {
	h.Broadcast(Message{Type: MessageState, Data: NewStateDTO(s)})
}

// BroadcastNotification sends a view notification.
func (h *Hub) BroadcastNotification(n view.Notification) {
	h.Broadcast(Message{Type: MessageNotification, Data: NotificationDTO(n)})
}

// deliver hands data to a client; a client whose buffer is full is dropped.
func (h *Hub) deliver(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		metrics.WebSocketClients.Set(float64(n))
		planetmap.Logger().Debug("websocket client disconnected", "clients", n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	metrics.WebSocketClients.Set(0)
}
