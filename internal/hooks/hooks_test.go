package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func noop(context.Context, Payload) error { return nil }

// recorder collects payloads from any number of handlers.
type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) handler(name string) Handler {
	return func(_ context.Context, p Payload) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.got = append(r.got, name+":"+p.Event)
		return nil
	}
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestPayloads(t *testing.T) {
	webchat := domain.InboundEvent{ChannelID: "webchat", UserID: "U1234567890", Kind: domain.EventText}
	line := domain.InboundEvent{ChannelID: "line", UserID: "U1234567890", Kind: domain.EventAudio}

	tests := []struct {
		name  string
		event string
		data  map[string]any
		want  string
	}{
		{
			"message received on webchat", EventMessageReceived, MessageReceived(webchat, "chat"),
			`{"event":"message_received","data":{"channel":"webchat","command":"chat","kind":"text","session":"webchat:U1234567890","user":"U1234567890"}}`,
		},
		{
			"voice message on line", EventMessageReceived, MessageReceived(line, "audio"),
			`{"event":"message_received","data":{"channel":"line","command":"audio","kind":"audio","session":"U1234567890","user":"U1234567890"}}`,
		},
		{
			"image reply", EventReplySent, ReplySent(line, domain.Reply{Kind: domain.ReplyImage, ImageURL: "https://img"}),
			`{"event":"reply_sent","data":{"channel":"line","kind":"image","session":"U1234567890","user":"U1234567890"}}`,
		},
		{
			"history cleared", EventHistoryCleared, HistoryCleared("irc:alice", "command"),
			`{"event":"history_cleared","data":{"reason":"command","session":"irc:alice"}}`,
		},
		{
			"credential registered", EventCredentialRegistered, CredentialRegistered("U1234567890", "openai"),
			`{"event":"credential_registered","data":{"provider":"openai","session":"U1234567890"}}`,
		},
		{
			"gateway start", EventGatewayStart, GatewayStarted("127.0.0.1:8080"),
			`{"event":"gateway_start","data":{"addr":"127.0.0.1:8080"}}`,
		},
		{
			"gateway stop", EventGatewayStop, nil,
			`{"event":"gateway_stop"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testManager()
			var got Payload
			m.On(tt.event, "capture", func(_ context.Context, p Payload) error {
				got = p
				return nil
			})

			m.Emit(context.Background(), tt.event, tt.data)

			raw, err := json.Marshal(got)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestEmit_RunsInRegistrationOrder(t *testing.T) {
	m := testManager()
	rec := &recorder{}
	m.On(EventGatewayStart, "metrics-push", rec.handler("metrics-push"))
	m.On(EventGatewayStart, "notify-ops", rec.handler("notify-ops"))
	m.On(EventGatewayStop, "notify-ops", rec.handler("notify-ops"))

	m.Emit(context.Background(), EventGatewayStart, GatewayStarted(":8080"))

	assert.Equal(t, []string{"metrics-push:gateway_start", "notify-ops:gateway_start"}, rec.calls())
}

func TestEmit_FailingHookDoesNotBlockOthers(t *testing.T) {
	m := testManager()
	rec := &recorder{}
	m.On(EventReplySent, "webhook-forward", func(context.Context, Payload) error {
		return errors.New("connection refused")
	})
	m.On(EventReplySent, "audit", rec.handler("audit"))

	m.Emit(context.Background(), EventReplySent, nil)

	assert.Equal(t, []string{"audit:reply_sent"}, rec.calls())
}

func TestOff(t *testing.T) {
	m := testManager()
	rec := &recorder{}
	m.On(EventHistoryCleared, "audit", rec.handler("audit"))
	m.On(EventHistoryCleared, "notify", rec.handler("notify"))

	m.Emit(context.Background(), EventHistoryCleared, HistoryCleared("U1", "command"))
	m.Off(EventHistoryCleared, "notify")
	m.Emit(context.Background(), EventHistoryCleared, HistoryCleared("U1", "error"))

	assert.Equal(t, []string{
		"audit:history_cleared", "notify:history_cleared",
		"audit:history_cleared",
	}, rec.calls())
	assert.Equal(t, 1, m.Count(EventHistoryCleared))
}

// A webhook request context ends as soon as LINE gets its 200, so hooks
// raised while handling the event must still run to completion.
func TestEmitAsync_OutlivesRequestContext(t *testing.T) {
	m := testManager()
	done := make(chan error, 2)
	for _, name := range []string{"first", "second"} {
		m.On(EventMessageReceived, name, func(ctx context.Context, _ Payload) error {
			time.Sleep(20 * time.Millisecond)
			done <- ctx.Err()
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.EmitAsync(ctx, EventMessageReceived, nil)
	cancel()

	for range 2 {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("async hook did not run")
		}
	}
}

func TestNilManagerDropsEvents(t *testing.T) {
	var m *Manager
	m.Emit(context.Background(), EventReplySent, nil)
	m.EmitAsync(context.Background(), EventReplySent, nil)
	assert.Zero(t, m.Count(EventReplySent))
}

func TestEvents(t *testing.T) {
	m := testManager()
	m.On(EventGatewayStart, "h1", noop)
	m.On(EventMessageReceived, "h2", noop)
	m.On(EventHistoryCleared, "h3", noop)
	m.Off(EventHistoryCleared, "h3")

	assert.Equal(t, []string{EventGatewayStart, EventMessageReceived}, m.Events())
	assert.Len(t, AllEvents, 6)
}
