package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			add(path, "must be one of %v, got %q", valid, value)
		}
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"loopback", "lan", "custom"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}

	// Logging
	oneOf("logging.level", cfg.Logging.Level, []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "json"})

	// Session
	if cfg.Session.Exchanges < 1 {
		add("session.exchanges", "must be at least 1, got %d", cfg.Session.Exchanges)
	}
	if cfg.Session.MaxSessions < 0 {
		add("session.maxSessions", "must not be negative, got %d", cfg.Session.MaxSessions)
	}

	// Backend
	oneOf("backend.provider", cfg.Backend.Provider, []string{"openai", "mock"})
	if cfg.Backend.ChatModel == "" {
		add("backend.chatModel", "chat model is required")
	}
	if cfg.Backend.TimeoutSeconds < 1 {
		add("backend.timeoutSeconds", "must be at least 1, got %d", cfg.Backend.TimeoutSeconds)
	}

	// Content
	if cfg.Content.ChunkSize < 100 {
		add("content.chunkSize", "must be at least 100, got %d", cfg.Content.ChunkSize)
	}
	if cfg.Content.MaxChunks < 1 {
		add("content.maxChunks", "must be at least 1, got %d", cfg.Content.MaxChunks)
	}

	// Store
	oneOf("store.driver", cfg.Store.Driver, []string{"file", "sqlite", "redis"})
	if cfg.Store.Driver == "redis" && cfg.Store.Redis.Addr == "" {
		add("store.redis.addr", "required when driver is redis")
	}

	// Channels (only if configured)
	if line := cfg.Channels.LINE; line != nil {
		if line.ChannelSecret == "" {
			add("channels.line.channelSecret", "channel secret is required")
		}
		if line.ChannelAccessToken == "" {
			add("channels.line.channelAccessToken", "channel access token is required")
		}
	}
	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			add("channels.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("channels.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("channels.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("channels.irc.sasl", "SASL requires a password to be set")
		}
	}

	if wc := cfg.Channels.Webchat; wc != nil && wc.Token == "" {
		add("channels.webchat.token", "token is required")
	}

	return issues
}
