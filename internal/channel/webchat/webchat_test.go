package webchat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, ch *Channel) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(ch)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query + "&token=" + testToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, ch *Channel, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return ch.clients.count() == n }, 2*time.Second, 10*time.Millisecond)
}

const testToken = "s3cret-token"

func newChannel() *Channel {
	return New(config.WebchatConfig{Token: testToken}, nil, logging.New(nil, "silent"))
}

func TestDefaults(t *testing.T) {
	ch := newChannel()
	assert.Equal(t, "webchat", ch.ID())
	assert.Equal(t, "GET /ws", ch.Pattern())
}

func TestServeHTTP_RequiresUser(t *testing.T) {
	ch := newChannel()
	rec := httptest.NewRecorder()
	ch.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+testToken, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeHTTP_RequiresToken(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		target string
		header string
	}{
		{"no token", testToken, "/ws?user_id=U1234567890", ""},
		{"wrong token", testToken, "/ws?user_id=U1234567890&token=guess", ""},
		{"wrong bearer", testToken, "/ws?user_id=U1234567890", "Bearer guess"},
		{"token not configured", "", "/ws?user_id=U1234567890&token=", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := New(config.WebchatConfig{Token: tt.token}, nil, logging.New(nil, "silent"))
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ch.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestServeHTTP_BearerToken(t *testing.T) {
	ch := newChannel()
	srv := startServer(t, ch)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=web-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + testToken}})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	waitForClients(t, ch, 1)
}

func TestMessageRoundTrip(t *testing.T) {
	ch := newChannel()
	events := make(chan domain.InboundEvent, 1)
	ch.OnEvent(func(evt domain.InboundEvent) { events <- evt })
	srv := startServer(t, ch)

	conn := dial(t, srv, "?user_id=web-1")
	require.NoError(t, conn.WriteJSON(Frame{Type: "message", Text: "/help"}))

	var evt domain.InboundEvent
	select {
	case evt = <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	assert.Equal(t, "webchat", evt.ChannelID)
	assert.Equal(t, "web-1", evt.UserID)
	assert.Equal(t, domain.EventText, evt.Kind)
	assert.Equal(t, "/help", evt.Text)

	err := ch.Send(context.Background(), domain.OutboundMessage{To: "web-1", Reply: domain.ImageReply("https://img.example/x.png")})
	require.NoError(t, err)

	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, Frame{Type: "reply", Kind: "image", ImageURL: "https://img.example/x.png"}, f)
}

func TestInvalidFrame(t *testing.T) {
	ch := newChannel()
	srv := startServer(t, ch)
	conn := dial(t, srv, "?user_id=web-1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
}

func TestSend_NoConnection(t *testing.T) {
	ch := newChannel()
	err := ch.Send(context.Background(), domain.OutboundMessage{To: "ghost", Reply: domain.TextReply("x")})
	assert.Error(t, err)
}

func TestSend_OnlyTargetUser(t *testing.T) {
	ch := newChannel()
	srv := startServer(t, ch)
	a := dial(t, srv, "?user_id=a")
	b := dial(t, srv, "?user_id=b")
	waitForClients(t, ch, 2)

	require.NoError(t, ch.Send(context.Background(), domain.OutboundMessage{To: "a", Reply: domain.TextReply("for a")}))

	var f Frame
	require.NoError(t, a.ReadJSON(&f))
	assert.Equal(t, "for a", f.Text)

	b.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err := b.ReadMessage()
	assert.Error(t, err, "b must not receive a's reply")
}

func TestStopClosesClients(t *testing.T) {
	ch := newChannel()
	srv := startServer(t, ch)
	require.NoError(t, ch.Start(context.Background()))
	assert.True(t, ch.Status().Running)

	dial(t, srv, "?user_id=a")
	waitForClients(t, ch, 1)
	assert.True(t, ch.Status().Connected)

	require.NoError(t, ch.Stop(context.Background()))
	assert.False(t, ch.Status().Running)
	assert.Equal(t, 0, ch.clients.count())
}

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"https://chat.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://chat.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
