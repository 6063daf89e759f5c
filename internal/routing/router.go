// Package routing connects messaging channels to the dispatcher.
package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/channel"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/hooks"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

// Dispatcher turns one inbound event into its reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.InboundEvent) domain.Reply
}

// Router routes inbound events to the dispatcher and the reply back to the
// originating channel.
type Router struct {
	channels   *channel.Registry
	dispatcher Dispatcher
	hooks      *hooks.Manager
	log        *logging.Logger

	inflight sync.WaitGroup
}

// NewRouter creates an event router. hookMgr may be nil.
func NewRouter(channels *channel.Registry, dispatcher Dispatcher, hookMgr *hooks.Manager, log *logging.Logger) *Router {
	return &Router{
		channels:   channels,
		dispatcher: dispatcher,
		hooks:      hookMgr,
		log:        log.Sub("routing"),
	}
}

// HandleInbound dispatches ev and sends the reply through the channel the
// event arrived on.
func (r *Router) HandleInbound(ctx context.Context, ev domain.InboundEvent) {
	r.log.Debug().
		Str("channel", ev.ChannelID).
		Str("user", ev.UserID).
		Str("kind", string(ev.Kind)).
		Msg("routing inbound event")

	ch, ok := r.channels.Get(ev.ChannelID)
	if !ok {
		r.log.Error().Str("channel", ev.ChannelID).Msg("channel not found, dropping event")
		return
	}

	start := time.Now()
	reply := r.dispatcher.Dispatch(ctx, ev)

	out := domain.OutboundMessage{
		ChannelID:  ev.ChannelID,
		To:         replyTarget(ev),
		ReplyToken: ev.ReplyToken,
		Reply:      reply,
	}
	if err := ch.Send(ctx, out); err != nil {
		r.log.Error().Err(err).
			Str("channel", ev.ChannelID).
			Str("to", out.To).
			Msg("failed to send reply")
		return
	}

	r.log.Info().
		Str("channel", ev.ChannelID).
		Str("to", out.To).
		Str("reply", string(reply.Kind)).
		Dur("duration", time.Since(start)).
		Msg("reply sent")

	r.hooks.EmitAsync(ctx, hooks.EventReplySent, hooks.ReplySent(ev, reply))
}

// Wire installs the router as the event handler on every registered
// channel. Each event is handled in its own goroutine.
func (r *Router) Wire() {
	for _, id := range r.channels.List() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		ch.OnEvent(func(ev domain.InboundEvent) {
			r.inflight.Add(1)
			go func() {
				defer r.inflight.Done()
				r.HandleInbound(context.Background(), ev)
			}()
		})
		r.log.Debug().Str("channel", id).Msg("wired event handler")
	}
}

// Wait blocks until every event handed to a wired handler has been
// answered, or ctx is done.
func (r *Router) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// replyTarget is the group or room an event came from, or else its sender.
func replyTarget(ev domain.InboundEvent) string {
	if ev.ChatID != "" {
		return ev.ChatID
	}
	return ev.UserID
}

// SendTo pushes a text message to a target on a channel outside any event.
func (r *Router) SendTo(ctx context.Context, channelID, target, text string) error {
	ch, ok := r.channels.Get(channelID)
	if !ok {
		return fmt.Errorf("channel not found: %s", channelID)
	}
	return ch.Send(ctx, domain.OutboundMessage{
		ChannelID: channelID,
		To:        target,
		Reply:     domain.TextReply(text),
	})
}
