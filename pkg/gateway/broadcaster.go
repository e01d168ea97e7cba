package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultWriteTimeout = 5 * time.Second

// eventClient pairs a connection with its own write lock, so broadcasts to
// different clients never serialize on each other.
type eventClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *eventClient) write(payload []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// EventBroadcaster fans session lifecycle events out to every connected
// /events client. A slow or dead client is dropped after the write deadline;
// it never blocks delivery to anyone else, and never blocks the caller past
// the deadline.
type EventBroadcaster struct {
	mu           sync.Mutex
	clients      map[string]*eventClient
	writeTimeout time.Duration
	logger       zerolog.Logger
	seq          atomic.Int64
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster(logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients:      make(map[string]*eventClient),
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
}

func (b *EventBroadcaster) add(id string, conn *websocket.Conn) {
	b.mu.Lock()
	b.clients[id] = &eventClient{id: id, conn: conn}
	b.mu.Unlock()
	b.logger.Info().Str("client_id", id).Msg("Event client connected")
}

func (b *EventBroadcaster) remove(id string) {
	b.mu.Lock()
	_, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()
	if ok {
		b.logger.Info().Str("client_id", id).Msg("Event client disconnected")
	}
}

// ClientCount returns the number of connected event clients.
func (b *EventBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast sends an event frame to every connected client. The client list
// is snapshotted up front; writes happen outside the broadcaster lock, and a
// client whose write fails or times out is closed and dropped.
func (b *EventBroadcaster) Broadcast(event string, data interface{}) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       b.seq.Add(1),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	b.mu.Lock()
	snapshot := make([]*eventClient, 0, len(b.clients))
	for _, c := range b.clients {
		snapshot = append(snapshot, c)
	}
	b.mu.Unlock()

	for _, c := range snapshot {
		if err := c.write(payload, b.writeTimeout); err != nil {
			b.logger.Warn().
				Err(err).
				Str("client_id", c.id).
				Str("event", event).
				Msg("Dropping event client after failed write")
			c.conn.Close()
			b.remove(c.id)
		}
	}
}

// CloseAll disconnects every client. Used at shutdown.
func (b *EventBroadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.clients {
		c.conn.Close()
		delete(b.clients, id)
	}
}
