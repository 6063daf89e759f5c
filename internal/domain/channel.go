package domain

import "context"

// ChannelStatus reports the runtime state of a channel.
type ChannelStatus struct {
	ChannelID string `json:"channelId"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Channel is the interface that all messaging channel implementations must satisfy.
type Channel interface {
	// ID returns the channel identifier (e.g., "line", "irc").
	ID() string

	// Start connects the channel and begins listening for events.
	Start(ctx context.Context) error

	// Stop gracefully disconnects the channel.
	Stop(ctx context.Context) error

	// Send delivers a reply through this channel.
	Send(ctx context.Context, msg OutboundMessage) error

	// OnEvent registers a handler for inbound events.
	OnEvent(handler func(evt InboundEvent))
}
