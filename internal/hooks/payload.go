package hooks

import "github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"

// Payload builders fix the data each event carries. Session-scoped events
// always carry "session", the conversation key; events raised from an
// inbound message also carry its channel and platform user.

// MessageReceived is emitted before an inbound event is handled. command
// is the parsed command name, or "audio" for voice messages.
func MessageReceived(ev domain.InboundEvent, command string) map[string]any {
	return map[string]any{
		"channel": ev.ChannelID,
		"user":    ev.UserID,
		"session": ev.SessionKey(),
		"kind":    string(ev.Kind),
		"command": command,
	}
}

// ReplySent is emitted once the channel accepted the reply.
func ReplySent(ev domain.InboundEvent, reply domain.Reply) map[string]any {
	return map[string]any{
		"channel": ev.ChannelID,
		"user":    ev.UserID,
		"session": ev.SessionKey(),
		"kind":    string(reply.Kind),
	}
}

// HistoryCleared is emitted when a conversation is reset. reason is
// "command" for an explicit clear and "error" after a failed completion.
func HistoryCleared(session, reason string) map[string]any {
	return map[string]any{
		"session": session,
		"reason":  reason,
	}
}

// CredentialRegistered is emitted after a token validated and was stored.
func CredentialRegistered(session, provider string) map[string]any {
	return map[string]any{
		"session":  session,
		"provider": provider,
	}
}

// GatewayStarted is emitted once the HTTP listener is bound.
func GatewayStarted(addr string) map[string]any {
	return map[string]any{"addr": addr}
}
