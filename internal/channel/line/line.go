// Package line implements the LINE Messaging API channel. Events arrive on
// a signature-verified webhook and are answered with the reply API.
package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

// maxAudioBytes bounds a downloaded voice message.
const maxAudioBytes = 25 << 20

// Messenger is the subset of the messaging API the channel sends with.
type Messenger interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
	PushMessage(req *messaging_api.PushMessageRequest, xLineRetryKey string) (*messaging_api.PushMessageResponse, error)
}

// ContentFetcher downloads the binary payload of a message.
type ContentFetcher interface {
	GetMessageContent(messageID string) (*http.Response, error)
}

// Channel implements domain.Channel and http.Handler for LINE.
type Channel struct {
	cfg      config.LINEConfig
	api      Messenger
	content  ContentFetcher
	log      *logging.Logger
	maxAudio int64

	mu      sync.RWMutex
	handler func(evt domain.InboundEvent)
	running bool
	lastErr string
}

// New creates a LINE channel backed by the official API clients.
func New(cfg config.LINEConfig, log *logging.Logger) (*Channel, error) {
	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("line: messaging api: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(cfg.ChannelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("line: blob api: %w", err)
	}
	return NewWithClients(cfg, api, blob, log), nil
}

// NewWithClients creates a LINE channel with the given API clients.
func NewWithClients(cfg config.LINEConfig, api Messenger, content ContentFetcher, log *logging.Logger) *Channel {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/callback"
	}
	return &Channel{
		cfg:      cfg,
		api:      api,
		content:  content,
		log:      log.Sub("line"),
		maxAudio: maxAudioBytes,
	}
}

func (c *Channel) ID() string { return "line" }

// Pattern is the webhook route, e.g. "POST /callback".
func (c *Channel) Pattern() string { return "POST " + c.cfg.WebhookPath }

func (c *Channel) OnEvent(handler func(evt domain.InboundEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Start marks the channel running. Delivery is push-based through the
// webhook, so there is no connection to hold.
func (c *Channel) Start(_ context.Context) error {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	c.log.Info().Str("path", c.cfg.WebhookPath).Msg("LINE webhook ready")
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return nil
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "line",
		Connected: c.running,
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// ServeHTTP verifies the webhook signature and hands every supported
// message event to the registered handler.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cb, err := webhook.ParseRequest(c.cfg.ChannelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			c.log.Warn().Str("remote", r.RemoteAddr).Msg("rejected webhook with invalid signature")
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		c.log.Error().Err(err).Msg("failed to parse webhook")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	for _, event := range cb.Events {
		e, ok := event.(webhook.MessageEvent)
		if !ok {
			continue
		}
		evt, ok := c.inboundEvent(e)
		if !ok {
			continue
		}
		c.deliver(evt)
	}

	w.WriteHeader(http.StatusOK)
}

// inboundEvent converts a webhook message event. Message types other than
// text and audio are skipped.
func (c *Channel) inboundEvent(e webhook.MessageEvent) (domain.InboundEvent, bool) {
	userID, chatID := sourceIDs(e.Source)
	if userID == "" {
		c.log.Debug().Msg("skipping event without user id")
		return domain.InboundEvent{}, false
	}

	evt := domain.InboundEvent{
		ID:         e.WebhookEventId,
		ChannelID:  "line",
		UserID:     userID,
		ChatID:     chatID,
		ReplyToken: e.ReplyToken,
		Timestamp:  time.UnixMilli(e.Timestamp),
	}
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}

	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		evt.Kind = domain.EventText
		evt.Text = m.Text
	case webhook.AudioMessageContent:
		// The download happens on the dispatch path so the webhook answers
		// promptly and a failed download still gets a reply.
		messageID := m.Id
		evt.Kind = domain.EventAudio
		evt.AudioName = messageID + ".m4a"
		evt.FetchAudio = func(ctx context.Context) ([]byte, error) {
			return c.downloadAudio(ctx, messageID)
		}
	default:
		c.log.Debug().Str("user", userID).Msg("skipping unsupported message type")
		return domain.InboundEvent{}, false
	}
	return evt, true
}

// sourceIDs returns the sender and, for groups and rooms, the chat the
// reply belongs to.
func sourceIDs(src webhook.SourceInterface) (userID, chatID string) {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId, ""
	case webhook.GroupSource:
		return s.UserId, s.GroupId
	case webhook.RoomSource:
		return s.UserId, s.RoomId
	}
	return "", ""
}

// downloadAudio reads a voice message, refusing anything over maxAudio
// rather than passing a truncated file on.
func (c *Channel) downloadAudio(ctx context.Context, messageID string) ([]byte, error) {
	data, err := c.readContent(ctx, messageID)
	if err != nil {
		c.log.Error().Err(err).Str("message", messageID).Msg("failed to download audio")
		c.setErr(err)
		return nil, err
	}
	return data, nil
}

func (c *Channel) readContent(ctx context.Context, messageID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.content.GetMessageContent(messageID)
	if err != nil {
		return nil, fmt.Errorf("line: get content: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAudio+1))
	if err != nil {
		return nil, fmt.Errorf("line: read content: %w", err)
	}
	if int64(len(data)) > c.maxAudio {
		return nil, fmt.Errorf("line: message %s: %w", messageID, domain.ErrAudioTooLarge)
	}
	return data, nil
}

func (c *Channel) deliver(evt domain.InboundEvent) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(evt)
	}
}

// Send answers with the reply token when one is present, otherwise pushes
// to msg.To.
func (c *Channel) Send(_ context.Context, msg domain.OutboundMessage) error {
	messages := []messaging_api.MessageInterface{toMessage(msg.Reply)}

	var err error
	if msg.ReplyToken != "" {
		_, err = c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
			ReplyToken: msg.ReplyToken,
			Messages:   messages,
		})
	} else {
		if msg.To == "" {
			return fmt.Errorf("line: no reply token or target")
		}
		_, err = c.api.PushMessage(&messaging_api.PushMessageRequest{
			To:       msg.To,
			Messages: messages,
		}, "")
	}
	if err != nil {
		c.setErr(err)
		return fmt.Errorf("line: send: %w", err)
	}

	c.log.Debug().
		Str("to", msg.To).
		Str("kind", string(msg.Reply.Kind)).
		Msg("sent LINE message")
	return nil
}

func toMessage(r domain.Reply) messaging_api.MessageInterface {
	if r.Kind == domain.ReplyImage {
		return messaging_api.ImageMessage{
			OriginalContentUrl: r.ImageURL,
			PreviewImageUrl:    r.ImageURL,
		}
	}
	return messaging_api.TextMessage{Text: r.Text}
}
