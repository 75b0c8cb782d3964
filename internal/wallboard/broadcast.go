package wallboard

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callboard/callboard/internal/console"
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

// Source produces the board to publish. *console.Console implements it.
type Source interface {
	Snapshot() console.Board
}

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func newClient(conn *websocket.Conn, b *Broadcaster) *client {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

// writePump owns the connection's writes. A failed write removes the
// client.
func (c *client) writePump() {
	defer func() {
		c.conn.Close()
		c.b.RemoveClient(c)
	}()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster pushes a snapshot to every connected wallboard on a fixed
// interval. Clients that fall behind are dropped.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	source   Source
	interval time.Duration
	logger   *slog.Logger
}

func NewBroadcaster(source Source, interval time.Duration, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Broadcaster{
		clients:  make(map[*client]bool),
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

// Run publishes snapshots until ctx ends, then disconnects every client.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case <-ticker.C:
			b.Publish()
		}
	}
}

// Publish sends the current snapshot to every client now.
func (b *Broadcaster) Publish() {
	b.broadcast(b.snapshot())
}

func (b *Broadcaster) snapshot() Message {
	return Message{Type: MsgSnapshot, Payload: newSnapshot(b.source.Snapshot())}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn, b)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	data, err := json.Marshal(b.snapshot())
	if err != nil {
		b.logger.Error("wallboard marshal failed", "error", err)
		return c
	}
	select {
	case c.send <- data:
	default:
	}
	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("wallboard marshal failed", "error", err)
		return
	}

	// Sends happen under the read lock so no client is closed mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn("wallboard client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
