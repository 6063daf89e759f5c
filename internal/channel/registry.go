// Package channel keeps the set of messaging transports the relay serves.
package channel

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

// HTTPChannel is a channel whose inbound side is an HTTP endpoint mounted
// on the gateway (a webhook or a websocket upgrade).
type HTTPChannel interface {
	domain.Channel
	http.Handler
	// Pattern is the path the handler is mounted on, e.g. "/callback".
	Pattern() string
}

// Registry manages a set of messaging channels.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]domain.Channel
	log      *logging.Logger
}

func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		channels: make(map[string]domain.Channel),
		log:      log.Sub("channels"),
	}
}

// Register adds a channel, replacing any channel with the same ID.
func (r *Registry) Register(ch domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID()] = ch
	r.log.Info().Str("channel", ch.ID()).Msg("channel registered")
}

// Get returns a channel by ID.
func (r *Registry) Get(id string) (domain.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// List returns all channel IDs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// HTTPChannels returns the channels that serve HTTP, sorted by ID.
func (r *Registry) HTTPChannels() []HTTPChannel {
	var out []HTTPChannel
	for _, id := range r.List() {
		ch, _ := r.Get(id)
		if hc, ok := ch.(HTTPChannel); ok {
			out = append(out, hc)
		}
	}
	return out
}

// Status returns the status of all registered channels, sorted by ID.
// Channels that do not report a status are assumed to be running.
func (r *Registry) Status() []domain.ChannelStatus {
	ids := r.List()
	statuses := make([]domain.ChannelStatus, 0, len(ids))
	for _, id := range ids {
		ch, _ := r.Get(id)
		if sc, ok := ch.(interface{ Status() domain.ChannelStatus }); ok {
			statuses = append(statuses, sc.Status())
		} else {
			statuses = append(statuses, domain.ChannelStatus{ChannelID: id, Running: true})
		}
	}
	return statuses
}

// StartAll starts every channel in its own goroutine. Start may block for
// the channel's lifetime (IRC's Connect does), so errors are only logged.
func (r *Registry) StartAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, ch := range r.channels {
		r.log.Info().Str("channel", id).Msg("starting channel")
		go func(id string, ch domain.Channel) {
			if err := ch.Start(ctx); err != nil {
				r.log.Error().Err(err).Str("channel", id).Msg("channel exited with error")
			}
		}(id, ch)
	}
}

// StopAll stops all registered channels.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, ch := range r.channels {
		r.log.Info().Str("channel", id).Msg("stopping channel")
		if err := ch.Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("channel", id).Msg("failed to stop channel")
		}
	}
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
