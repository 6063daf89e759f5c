// Package irc implements an IRC relay channel using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/version"
	"github.com/lrstanley/girc"
)

// capAccountTag makes the server tag each message with the sender's
// services account, which is what identifies a user here. Nicks can be
// taken by anyone.
const capAccountTag = "account-tag"

const msgIdentify = "Please identify with NickServ before talking to me."

// maxLineBytes keeps PRIVMSG lines under the 512 byte protocol limit once
// the prefix and target are added by the server.
const maxLineBytes = 400

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	handler func(evt domain.InboundEvent)
	running bool
	lastErr string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

func (c *Channel) ID() string { return "irc" }

func (c *Channel) OnEvent(handler func(evt domain.InboundEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "irc",
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) port() int {
	if c.cfg.Port != 0 {
		return c.cfg.Port
	}
	if c.cfg.UseTLS {
		return 6697
	}
	return 6667
}

// Start connects to the IRC server and blocks until the connection ends
// or ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	gircCfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "LINE relay bot",
		SSL:     c.cfg.UseTLS,
		Version: version.UserAgent(),
	}
	gircCfg.SupportedCaps = map[string][]string{
		capAccountTag: nil,
	}
	if c.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		gircCfg.ServerPass = c.cfg.Password
	}

	client := girc.New(gircCfg)
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", gircCfg.Port).
		Str("nick", c.cfg.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	// Connect blocks for the lifetime of the connection.
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop gracefully disconnects from the IRC server.
func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("shutting down")
	}
	c.running = false
	return nil
}

// Send delivers a reply to an IRC channel or nick. Image replies are sent
// as their URL.
func (c *Channel) Send(_ context.Context, msg domain.OutboundMessage) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return fmt.Errorf("irc: not connected")
	}
	if msg.To == "" {
		return fmt.Errorf("irc: no target specified")
	}

	lines := splitMessage(msg.Reply.String(), maxLineBytes)
	for _, line := range lines {
		client.Cmd.Message(msg.To, line)
	}

	c.log.Debug().
		Str("to", msg.To).
		Int("lines", len(lines)).
		Msg("sent IRC message")
	return nil
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	for _, ch := range c.cfg.Channels {
		client.Cmd.Join(ch)
		c.log.Info().Str("channel", ch).Msg("joined channel")
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	if e.Source == nil {
		return
	}
	nick := client.GetNick()
	if strings.EqualFold(e.Source.Name, nick) {
		return
	}

	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}

	chatID := e.Source.Name
	if e.IsFromChannel() {
		text, ok := addressedText(nick, body)
		if !ok {
			return
		}
		body = text
		chatID = e.Params[0]
	}

	account, ok := senderAccount(e)
	if !ok {
		c.log.Debug().Str("nick", e.Source.Name).Msg("ignoring message from unidentified user")
		client.Cmd.Notice(e.Source.Name, msgIdentify)
		return
	}

	c.deliver(account, chatID, body)
}

// senderAccount returns the services account from the account message
// tag. Unidentified senders have no tag, or "*".
func senderAccount(e girc.Event) (string, bool) {
	if e.Tags == nil {
		return "", false
	}
	account, ok := e.Tags.Get("account")
	if !ok || account == "" || account == "*" {
		return "", false
	}
	return account, true
}

// deliver hands a text event from account to the registered handler.
// chatID is the channel, or the sender's nick for private messages.
func (c *Channel) deliver(account, chatID, text string) {
	evt := domain.InboundEvent{
		ID:        uuid.New().String(),
		ChannelID: "irc",
		UserID:    account,
		ChatID:    chatID,
		Kind:      domain.EventText,
		Text:      text,
		Timestamp: time.Now(),
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(evt)
	}
}

// addressedText reports whether a channel message is addressed to nick
// ("nick: text" or "nick, text") and returns the text after the address.
func addressedText(nick, body string) (string, bool) {
	if len(body) <= len(nick) || !strings.EqualFold(body[:len(nick)], nick) {
		return "", false
	}
	rest := body[len(nick):]
	if rest[0] != ':' && rest[0] != ',' {
		return "", false
	}
	text := strings.TrimSpace(rest[1:])
	return text, text != ""
}

// splitMessage breaks text into PRIVMSG-sized lines. IRC has no embedded
// newlines, so each input line is sent separately and blank lines are
// dropped. Lines longer than maxLen bytes are cut on rune boundaries.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if strings.TrimSpace(line) != "" {
			chunks = append(chunks, line)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
