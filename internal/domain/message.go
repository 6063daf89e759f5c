package domain

import (
	"context"
	"errors"
	"time"
)

// ErrAudioTooLarge is returned by FetchAudio when a voice message exceeds
// the channel's size limit.
var ErrAudioTooLarge = errors.New("audio exceeds size limit")

// EventKind classifies an inbound event payload.
type EventKind string

const (
	EventText  EventKind = "text"
	EventAudio EventKind = "audio"
)

// InboundEvent is a single user message delivered by a channel.
type InboundEvent struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	UserID    string    `json:"userId"`
	ChatID    string    `json:"chatId,omitempty"` // where replies go when it differs from UserID
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Audio     []byte    `json:"-"`
	AudioName string    `json:"audioName,omitempty"` // filename hint for transcription, e.g. "voice.m4a"
	// FetchAudio downloads the payload for channels that do not carry it
	// inline. It is used when Audio is empty.
	FetchAudio func(ctx context.Context) ([]byte, error) `json:"-"`
	// ReplyToken is the platform handle used to answer this event.
	ReplyToken string    `json:"replyToken,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionKey names the conversation state an event belongs to. LINE user
// IDs are used as is, which keeps stored credentials from older
// deployments valid; other channels are namespaced so an identifier from
// one channel never reaches another channel's session.
func (e InboundEvent) SessionKey() string {
	return SessionKey(e.ChannelID, e.UserID)
}

// SessionKey builds the session key for userID on channelID.
func SessionKey(channelID, userID string) string {
	if channelID == "line" {
		return userID
	}
	return channelID + ":" + userID
}

// ReplyKind classifies an outbound reply.
type ReplyKind string

const (
	ReplyText  ReplyKind = "text"
	ReplyImage ReplyKind = "image"
)

// Reply is the single answer produced for an inbound event.
type Reply struct {
	Kind     ReplyKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	ImageURL string    `json:"imageUrl,omitempty"`
}

// TextReply builds a text reply.
func TextReply(text string) Reply {
	return Reply{Kind: ReplyText, Text: text}
}

// ImageReply builds an image reply pointing at url.
func ImageReply(url string) Reply {
	return Reply{Kind: ReplyImage, ImageURL: url}
}

// String renders the reply for channels that only carry plain text.
func (r Reply) String() string {
	if r.Kind == ReplyImage {
		return r.ImageURL
	}
	return r.Text
}

// OutboundMessage is a reply addressed to a channel target.
type OutboundMessage struct {
	ChannelID  string `json:"channelId"`
	To         string `json:"to"`
	ReplyToken string `json:"replyToken,omitempty"`
	Reply      Reply  `json:"reply"`
}
