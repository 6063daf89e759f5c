package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Store.Redis.Password = expandEnvVars(cfg.Store.Redis.Password)
	cfg.Backend.BaseURL = expandEnvVars(cfg.Backend.BaseURL)
	if cfg.Channels.LINE != nil {
		cfg.Channels.LINE.ChannelSecret = expandEnvVars(cfg.Channels.LINE.ChannelSecret)
		cfg.Channels.LINE.ChannelAccessToken = expandEnvVars(cfg.Channels.LINE.ChannelAccessToken)
	}
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
	if cfg.Channels.Webchat != nil {
		cfg.Channels.Webchat.Token = expandEnvVars(cfg.Channels.Webchat.Token)
	}
}

// LoadEnvFiles loads KEY=VALUE pairs from the given dotenv files into the
// process environment. Variables already set are not overwritten and
// missing files are skipped.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return &ConfigError{Message: "failed to load env file " + f + ": " + err.Error()}
		}
	}
	return nil
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Defaults()
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return Defaults(), err
	}
	return Parse(data)
}

// Parse decodes YAML config data the same way Load does for a file.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()

	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
	if cfg.Session.Exchanges == 0 {
		cfg.Session.Exchanges = d.Session.Exchanges
	}
	if cfg.Session.SystemMessage == "" {
		cfg.Session.SystemMessage = d.Session.SystemMessage
	}
	if cfg.Backend.Provider == "" {
		cfg.Backend.Provider = d.Backend.Provider
	}
	if cfg.Backend.ChatModel == "" {
		cfg.Backend.ChatModel = d.Backend.ChatModel
	}
	if cfg.Backend.ImageModel == "" {
		cfg.Backend.ImageModel = d.Backend.ImageModel
	}
	if cfg.Backend.ImageSize == "" {
		cfg.Backend.ImageSize = d.Backend.ImageSize
	}
	if cfg.Backend.TranscriptionModel == "" {
		cfg.Backend.TranscriptionModel = d.Backend.TranscriptionModel
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = d.Backend.TimeoutSeconds
	}
	if cfg.Content.ChunkSize == 0 {
		cfg.Content.ChunkSize = d.Content.ChunkSize
	}
	if cfg.Content.MaxChunks == 0 {
		cfg.Content.MaxChunks = d.Content.MaxChunks
	}
	if cfg.Content.UserAgent == "" {
		cfg.Content.UserAgent = d.Content.UserAgent
	}
	if cfg.Content.FetchTimeoutSeconds == 0 {
		cfg.Content.FetchTimeoutSeconds = d.Content.FetchTimeoutSeconds
	}
	if cfg.Content.MaxBodyBytes == 0 {
		cfg.Content.MaxBodyBytes = d.Content.MaxBodyBytes
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = d.Store.Driver
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = d.Store.Redis.Addr
	}
	if cfg.Store.Redis.Key == "" {
		cfg.Store.Redis.Key = d.Store.Redis.Key
	}
	if cfg.Channels.LINE != nil && cfg.Channels.LINE.WebhookPath == "" {
		cfg.Channels.LINE.WebhookPath = "/callback"
	}
	if cfg.Channels.Webchat != nil && cfg.Channels.Webchat.Path == "" {
		cfg.Channels.Webchat.Path = "/ws"
	}
}

// applyEnvOverrides reads LINEBOT_* variables, plus the LINE_* and
// SYSTEM_MESSAGE names used by older deployments, and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LINEBOT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("LINEBOT_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("LINEBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LINEBOT_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("LINEBOT_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("LINEBOT_BACKEND_PROVIDER"); v != "" {
		cfg.Backend.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("SYSTEM_MESSAGE"); v != "" {
		cfg.Session.SystemMessage = v
	}

	secret := os.Getenv("LINE_CHANNEL_SECRET")
	token := os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")
	if secret != "" || token != "" {
		if cfg.Channels.LINE == nil {
			cfg.Channels.LINE = &LINEConfig{WebhookPath: "/callback"}
		}
		if secret != "" {
			cfg.Channels.LINE.ChannelSecret = secret
		}
		if token != "" {
			cfg.Channels.LINE.ChannelAccessToken = token
		}
	}
}
