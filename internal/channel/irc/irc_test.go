package irc

import (
	"context"
	"strings"
	"testing"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/lrstanley/girc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestNew(t *testing.T) {
	cfg := config.IRCConfig{
		Server:   "irc.libera.chat",
		Nick:     "relaybot",
		Channels: []string{"#test"},
		UseTLS:   true,
	}
	ch := New(cfg, testLogger())
	assert.Equal(t, "irc", ch.ID())
}

func TestStatus_NotStarted(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())
	status := ch.Status()

	assert.Equal(t, "irc", status.ChannelID)
	assert.False(t, status.Connected)
	assert.False(t, status.Running)
	assert.Empty(t, status.LastError)
}

func TestDeliver(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())

	var got []domain.InboundEvent
	ch.OnEvent(func(evt domain.InboundEvent) { got = append(got, evt) })

	ch.deliver("alice", "#test", "hello")
	ch.deliver("bob_account", "bobby", "/help")

	require.Len(t, got, 2)
	assert.Equal(t, "irc", got[0].ChannelID)
	assert.Equal(t, "alice", got[0].UserID)
	assert.Equal(t, "#test", got[0].ChatID)
	assert.Equal(t, domain.EventText, got[0].Kind)
	assert.Equal(t, "hello", got[0].Text)
	assert.NotEmpty(t, got[0].ID)

	assert.Equal(t, "bob_account", got[1].UserID)
	assert.Equal(t, "bobby", got[1].ChatID, "private messages reply to the sender's nick")
	assert.Equal(t, "irc:bob_account", got[1].SessionKey())
}

func TestSenderAccount(t *testing.T) {
	tests := []struct {
		name string
		tags girc.Tags
		want string
		ok   bool
	}{
		{"identified", girc.Tags{"account": "alice"}, "alice", true},
		{"no tags", nil, "", false},
		{"tag missing", girc.Tags{"time": "2026-01-01T00:00:00Z"}, "", false},
		{"logged out", girc.Tags{"account": "*"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := senderAccount(girc.Event{Tags: tt.tags})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeliver_NoHandler(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())
	assert.NotPanics(t, func() { ch.deliver("alice", "#test", "hello") })
}

func TestAddressedText(t *testing.T) {
	tests := []struct {
		body string
		want string
		ok   bool
	}{
		{"relaybot: hello there", "hello there", true},
		{"RelayBot, /clear", "/clear", true},
		{"relaybot:", "", false},
		{"relaybot hello", "", false},
		{"relaybotx: hi", "", false},
		{"hello relaybot", "", false},
		{"rel", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			got, ok := addressedText("relaybot", tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSend_NotConnected(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())
	err := ch.Send(context.Background(), domain.OutboundMessage{To: "#test", Reply: domain.TextReply("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   []string
	}{
		{"short", "hello world", 400, []string{"hello world"}},
		{"newlines", "line one\nline two", 400, []string{"line one", "line two"}},
		{"blank lines dropped", "a\n\n\nb", 400, []string{"a", "b"}},
		{"long line", "abcdefghijklmnopqrstuvwxyz", 10, []string{"abcdefghij", "klmnopqrst", "uvwxyz"}},
		{"empty", "", 400, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitMessage(tt.text, tt.maxLen))
		})
	}
}

func TestSplitMessage_RuneBoundary(t *testing.T) {
	text := strings.Repeat("你好", 10) // 3 bytes per rune
	for _, chunk := range splitMessage(text, 10) {
		assert.LessOrEqual(t, len(chunk), 10)
		assert.True(t, strings.HasPrefix(text, chunk) || strings.Contains(text, chunk))
		assert.Equal(t, 0, len(chunk)%3, "chunk %q split a rune", chunk)
	}
}

func TestDefaultPort(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.IRCConfig
		want int
	}{
		{"TLS defaults to 6697", config.IRCConfig{UseTLS: true}, 6697},
		{"plain defaults to 6667", config.IRCConfig{}, 6667},
		{"explicit port", config.IRCConfig{Port: 7000, UseTLS: true}, 7000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.cfg, testLogger()).port())
		})
	}
}
