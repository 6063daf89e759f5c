package config

// Config is the root configuration for the relay.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Backend  BackendConfig  `yaml:"backend,omitempty"`
	Content  ContentConfig  `yaml:"content,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Hooks    HooksConfig    `yaml:"hooks,omitempty"`
}

// GatewayConfig controls the HTTP server that hosts webhooks.
type GatewayConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	Metrics        *bool    `yaml:"metrics,omitempty"` // expose /metrics; defaults to true
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// SessionConfig controls per-user conversation state.
type SessionConfig struct {
	Exchanges     int    `yaml:"exchanges,omitempty"` // retained user+assistant pairs
	SystemMessage string `yaml:"systemMessage,omitempty"`
	MaxSessions   int    `yaml:"maxSessions,omitempty"` // 0 = unbounded
	ClearOnError  *bool  `yaml:"clearOnError,omitempty"`
}

// BackendConfig selects and tunes the generation backend.
type BackendConfig struct {
	Provider           string   `yaml:"provider,omitempty"` // "openai" | "mock"
	BaseURL            string   `yaml:"baseUrl,omitempty"`
	ChatModel          string   `yaml:"chatModel,omitempty"`
	FallbackModels     []string `yaml:"fallbackModels,omitempty"`
	ImageModel         string   `yaml:"imageModel,omitempty"`
	ImageSize          string   `yaml:"imageSize,omitempty"`
	TranscriptionModel string   `yaml:"transcriptionModel,omitempty"`
	TimeoutSeconds     int      `yaml:"timeoutSeconds,omitempty"`
}

// ContentConfig tunes URL extraction and summarization.
type ContentConfig struct {
	ChunkSize           int    `yaml:"chunkSize,omitempty"` // runes per chunk
	MaxChunks           int    `yaml:"maxChunks,omitempty"`
	UserAgent           string `yaml:"userAgent,omitempty"`
	FetchTimeoutSeconds int    `yaml:"fetchTimeoutSeconds,omitempty"`
	MaxBodyBytes        int64  `yaml:"maxBodyBytes,omitempty"`
	AllowPrivate        bool   `yaml:"allowPrivate,omitempty"` // permit fetching private/loopback addresses
	TranscriptLanguage  string `yaml:"transcriptLanguage,omitempty"`
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Driver string      `yaml:"driver,omitempty"` // "file" | "sqlite" | "redis"
	Path   string      `yaml:"path,omitempty"`
	Redis  RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds connection settings for the redis credential store.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Key      string `yaml:"key,omitempty"`
}

// ChannelsConfig defines channel-specific configurations.
type ChannelsConfig struct {
	LINE    *LINEConfig    `yaml:"line,omitempty"`
	IRC     *IRCConfig     `yaml:"irc,omitempty"`
	Webchat *WebchatConfig `yaml:"webchat,omitempty"`
}

// LINEConfig defines LINE Messaging API settings.
type LINEConfig struct {
	ChannelSecret      string `yaml:"channelSecret"`
	ChannelAccessToken string `yaml:"channelAccessToken"`
	WebhookPath        string `yaml:"webhookPath,omitempty"`
}

// IRCConfig defines IRC channel settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// WebchatConfig enables the browser websocket channel.
type WebchatConfig struct {
	Path string `yaml:"path,omitempty"`
	// Token is the shared secret clients present as ?token= or a bearer
	// header. Connections are refused while it is empty.
	Token string `yaml:"token,omitempty"`
}

// HooksConfig defines shell commands run on lifecycle events.
type HooksConfig struct {
	MessageReceived      []HookEntry `yaml:"messageReceived,omitempty"`
	ReplySent            []HookEntry `yaml:"replySent,omitempty"`
	HistoryCleared       []HookEntry `yaml:"historyCleared,omitempty"`
	CredentialRegistered []HookEntry `yaml:"credentialRegistered,omitempty"`
	GatewayStart         []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop          []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// MetricsEnabled reports whether /metrics should be served.
func (g GatewayConfig) MetricsEnabled() bool {
	return g.Metrics == nil || *g.Metrics
}

// ClearHistoryOnError reports whether unclassified failures wipe history.
func (s SessionConfig) ClearHistoryOnError() bool {
	return s.ClearOnError == nil || *s.ClearOnError
}
