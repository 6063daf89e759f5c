package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyConstructors(t *testing.T) {
	r := TextReply("hi")
	assert.Equal(t, ReplyText, r.Kind)
	assert.Equal(t, "hi", r.String())

	img := ImageReply("https://img.example/a.png")
	assert.Equal(t, ReplyImage, img.Kind)
	assert.Empty(t, img.Text)
	assert.Equal(t, "https://img.example/a.png", img.String())
}

func TestInboundEventJSON(t *testing.T) {
	evt := InboundEvent{
		ID:         "evt-1",
		ChannelID:  "line",
		UserID:     "U1",
		Kind:       EventAudio,
		Audio:      []byte{1, 2, 3},
		AudioName:  "voice.m4a",
		ReplyToken: "rt",
		Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "audio\":")
	assert.Contains(t, string(data), `"kind":"audio"`)
	assert.Contains(t, string(data), `"replyToken":"rt"`)
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "*****"},
		{"12345678", "********"},
		{"sk-abcdefghijkl", "sk-********ijkl"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskCredential(tt.in))
		})
	}
}
