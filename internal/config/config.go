package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// DefaultSystemMessage is the persona used until a user sets their own with /system.
const DefaultSystemMessage = "你是一位非常有耐心又擅長教學的老師，懂得用比喻幫助學生理解，尤其擅長處理初學者的問題。"

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 8080,
			Bind: "lan",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		Session: SessionConfig{
			Exchanges:     2,
			SystemMessage: DefaultSystemMessage,
		},
		Backend: BackendConfig{
			Provider:           "openai",
			ChatModel:          "gpt-4o-mini",
			ImageModel:         "dall-e-3",
			ImageSize:          "1024x1024",
			TranscriptionModel: "whisper-1",
			TimeoutSeconds:     60,
		},
		Content: ContentConfig{
			ChunkSize:           3000,
			MaxChunks:           12,
			UserAgent:           "linebot/1.0 (+https://github.com/linjoshua/ChatGPT-Line-Bot)",
			FetchTimeoutSeconds: 20,
			MaxBodyBytes:        10 * 1024 * 1024,
		},
		Store: StoreConfig{
			Driver: "file",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  "linebot:credentials",
			},
		},
	}
}
