package server

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/livemark/livemark/internal/logging"
)

const (
	// Time allowed to write a message to a subscriber.
	writeWait = 10 * time.Second

	// Time allowed between reads before the connection is considered dead.
	readWait = 60 * time.Second

	// Send pings with this period. Must be less than readWait.
	pingPeriod = (readWait * 9) / 10

	// Maximum message size accepted from a subscriber.
	maxMessageSize = 512

	// Per-subscriber outgoing buffer depth. A subscriber that falls this far
	// behind is treated as dead and unregistered.
	sendBufSize = 16
)

// Subscriber is one open delivery channel to a viewer. It is owned
// exclusively by the Hub: created on connection, destroyed on disconnect or
// send failure.
type Subscriber struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub tracks connected subscribers and delivers broadcasts. Delivery to one
// subscriber is FIFO (buffered channel drained by a single writer goroutine);
// no ordering is guaranteed across subscribers. A failed delivery unregisters
// the subscriber without affecting the others.
type Hub struct {
	log logging.Logger

	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	closed      bool

	// last holds the most recent broadcast, replayed to new subscribers so a
	// freshly opened viewer shows content immediately.
	last []byte
}

// NewHub creates an empty subscriber registry.
func NewHub(log logging.Logger) *Hub {
	return &Hub{
		log:         log.WithComponent("hub"),
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Broadcast delivers message to every registered subscriber. A subscriber
// whose buffer is full is disconnected; delivery to the rest proceeds.
func (h *Hub) Broadcast(message []byte) {
	h.mu.Lock()
	h.last = message
	var dead []*Subscriber
	for sub := range h.subscribers {
		select {
		case sub.send <- message:
		default:
			dead = append(dead, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range dead {
		h.unregister(sub)
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown disconnects all subscribers and rejects future registrations.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
		delete(h.subscribers, sub)
		close(sub.send)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// serve registers a connection as a subscriber and runs its pumps. The write
// pump gets its own goroutine; the read pump blocks until the connection
// closes.
func (h *Hub) serve(ctx context.Context, conn *websocket.Conn) {
	sub := &Subscriber{
		conn: conn,
		send: make(chan []byte, sendBufSize),
		hub:  h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	if h.last != nil {
		sub.send <- h.last
	}
	h.mu.Unlock()

	h.log.Info(ctx, "subscriber connected", "total", count)

	go sub.writePump()
	sub.readPump()
}

// unregister removes the subscriber and closes its connection. Safe to call
// from any goroutine, any number of times.
func (h *Hub) unregister(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	if ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		sub.conn.Close(websocket.StatusNormalClosure, "")
		h.log.Info(context.Background(), "subscriber disconnected", "total", count)
	}
}

// writePump forwards queued messages to the websocket connection and sends
// periodic pings. One writer per subscriber preserves per-subscriber
// ordering.
func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	ctx := context.Background()

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := s.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				s.hub.unregister(s)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.hub.unregister(s)
				return
			}
		}
	}
}

// readPump drains the connection to process control frames and detect
// disconnects. Blocks until the connection closes.
func (s *Subscriber) readPump() {
	defer s.hub.unregister(s)

	s.conn.SetReadLimit(maxMessageSize)

	for {
		if _, _, err := s.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
