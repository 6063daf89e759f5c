// Package webchat implements a browser chat channel over websockets. Each
// connection presents the shared token, names its user with the user_id
// query parameter and exchanges JSON frames.
package webchat

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

const (
	maxFrameBytes = 64 * 1024
	writeTimeout  = 10 * time.Second
)

// Channel implements domain.Channel and http.Handler for browser clients.
type Channel struct {
	cfg      config.WebchatConfig
	log      *logging.Logger
	clients  *clientSet
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	handler func(evt domain.InboundEvent)
	running bool
}

// New creates a webchat channel. Browser origins are checked against
// allowedOrigins; requests without an Origin header are always accepted.
func New(cfg config.WebchatConfig, allowedOrigins []string, log *logging.Logger) *Channel {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	return &Channel{
		cfg:     cfg,
		log:     log.Sub("webchat"),
		clients: newClientSet(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func (c *Channel) ID() string { return "webchat" }

func (c *Channel) Pattern() string { return "GET " + c.cfg.Path }

func (c *Channel) OnEvent(handler func(evt domain.InboundEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Channel) Start(_ context.Context) error {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	c.log.Info().Str("path", c.cfg.Path).Msg("webchat ready")
	return nil
}

// Stop closes every open connection.
func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.clients.closeAll()
	return nil
}

func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "webchat",
		Connected: c.clients.count() > 0,
		Running:   c.running,
	}
}

// ServeHTTP upgrades the request and reads message frames until the
// client goes away.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		c.log.Warn().Str("remote", r.RemoteAddr).Msg("rejected connection without a valid token")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	cl := newClient(conn, userID)
	c.clients.add(cl)
	c.log.Info().Str("connId", cl.connID).Str("user", userID).Msg("client connected")
	defer func() {
		c.clients.remove(cl.connID)
		cl.close()
		c.log.Info().Str("connId", cl.connID).Msg("client disconnected")
	}()

	c.readLoop(cl)
}

// authorized checks the token from the Authorization header or, for
// browsers that cannot set headers on a websocket, the token query
// parameter. An unset token refuses every connection.
func (c *Channel) authorized(r *http.Request) bool {
	if c.cfg.Token == "" {
		return false
	}
	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(c.cfg.Token)) == 1
}

func (c *Channel) readLoop(cl *client) {
	for {
		_, data, err := cl.socket.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Str("connId", cl.connID).Msg("client closed connection")
			} else {
				c.log.Warn().Err(err).Str("connId", cl.connID).Msg("read error")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type != "message" {
			cl.send(Frame{Type: "error", Text: "expected a message frame"})
			continue
		}

		c.deliver(domain.InboundEvent{
			ID:        uuid.New().String(),
			ChannelID: "webchat",
			UserID:    cl.userID,
			Kind:      domain.EventText,
			Text:      f.Text,
			Timestamp: time.Now(),
		})
	}
}

func (c *Channel) deliver(evt domain.InboundEvent) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(evt)
	}
}

// Send writes the reply to every connection the target user has open.
func (c *Channel) Send(_ context.Context, msg domain.OutboundMessage) error {
	targets := c.clients.forUser(msg.To)
	if len(targets) == 0 {
		return fmt.Errorf("webchat: no connection for %s", msg.To)
	}

	f := Frame{
		Type:     "reply",
		Kind:     string(msg.Reply.Kind),
		Text:     msg.Reply.Text,
		ImageURL: msg.Reply.ImageURL,
	}
	var lastErr error
	sent := 0
	for _, cl := range targets {
		if err := cl.send(f); err != nil {
			c.log.Warn().Err(err).Str("connId", cl.connID).Msg("send failed")
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("webchat: send: %w", lastErr)
	}
	return nil
}
