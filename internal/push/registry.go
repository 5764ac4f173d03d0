// Package push delivers server-initiated messages to connected clients and
// decides when a stance crossing should fire a chat prompt.
package push

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultSendTimeout bounds a single frame write. A client that cannot drain
// within it is treated as dead and dropped.
const DefaultSendTimeout = 5 * time.Second

// Conn is the subset of *websocket.Conn the registry writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	mu   sync.Mutex // gorilla conns allow one concurrent writer
	conn Conn
}

// Registry tracks the open connections per user. A user may hold several
// connections at once (multiple tabs), each under its own connection id.
type Registry struct {
	mu          sync.RWMutex
	users       map[string]map[string]*client
	sendTimeout time.Duration
	log         *slog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...func(*Registry)) *Registry {
	r := &Registry{
		users:       make(map[string]map[string]*client),
		sendTimeout: DefaultSendTimeout,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithSendTimeout overrides the per-frame write deadline.
func WithSendTimeout(d time.Duration) func(*Registry) {
	return func(r *Registry) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

// Register adds conn under userID and returns the connection id to pass to
// Remove when the connection closes.
func (r *Registry) Register(userID string, conn Conn) string {
	connID := uuid.NewString()

	r.mu.Lock()
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]*client)
		r.users[userID] = conns
	}
	conns[connID] = &client{conn: conn}
	total := len(conns)
	r.mu.Unlock()

	r.log.Info("ws connected", "user_id", userID, "conn_id", connID, "user_conns", total)
	return connID
}

// Remove drops the connection; the user entry disappears with its last
// connection. Unknown ids are ignored.
func (r *Registry) Remove(userID, connID string) {
	r.mu.Lock()
	if conns, ok := r.users[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.users, userID)
		}
	}
	r.mu.Unlock()

	r.log.Info("ws disconnected", "user_id", userID, "conn_id", connID)
}

// Broadcast marshals payload once and writes it to every connection the user
// holds. Connections that fail the write are closed and pruned. It reports
// whether at least one connection received the message.
func (r *Registry) Broadcast(userID string, payload any) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal push payload: %w", err)
	}

	r.mu.RLock()
	snapshot := make(map[string]*client, len(r.users[userID]))
	for connID, c := range r.users[userID] {
		snapshot[connID] = c
	}
	r.mu.RUnlock()

	sentAny := false
	var dead []string
	for connID, c := range snapshot {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(r.sendTimeout))
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()

		if err != nil {
			r.log.Warn("ws write failed, pruning", "user_id", userID, "conn_id", connID, "err", err)
			_ = c.conn.Close()
			dead = append(dead, connID)
			continue
		}
		sentAny = true
	}

	for _, connID := range dead {
		r.Remove(userID, connID)
	}
	return sentAny, nil
}
