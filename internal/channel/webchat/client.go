package webchat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrClientClosed = errors.New("client connection closed")

// Frame is the JSON envelope exchanged with browser clients.
type Frame struct {
	Type     string `json:"type"` // "message" inbound; "reply" or "error" outbound
	Text     string `json:"text,omitempty"`
	Kind     string `json:"kind,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// client is one websocket connection bound to a user.
type client struct {
	connID      string
	userID      string
	socket      *websocket.Conn
	connectedAt time.Time

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, userID string) *client {
	return &client{
		connID:      uuid.New().String(),
		userID:      userID,
		socket:      conn,
		connectedAt: time.Now(),
	}
}

// send writes a frame. Safe for concurrent use.
func (c *client) send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.socket.WriteJSON(f)
}

func (c *client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.socket.Close()
}

// clientSet tracks live connections by connection ID.
type clientSet struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[string]*client)}
}

func (s *clientSet) add(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.connID] = c
}

func (s *clientSet) remove(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, connID)
}

// forUser returns every connection opened by userID.
func (s *clientSet) forUser(userID string) []*client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*client
	for _, c := range s.clients {
		if c.userID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (s *clientSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *clientSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.close()
		delete(s.clients, id)
	}
}
