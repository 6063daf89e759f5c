package llm

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const providerOpenAI = "openai"

// OpenAIOptions tunes the OpenAI adapter.
type OpenAIOptions struct {
	BaseURL    string // OpenAI-compatible endpoint; empty for api.openai.com
	ImageModel string
	ImageSize  string
	MaxRetries int
}

// OpenAIModel implements Model on top of the OpenAI API.
type OpenAIModel struct {
	client *openai.Client
	opts   OpenAIOptions
}

// NewOpenAIModel creates a Model authenticated with apiKey.
func NewOpenAIModel(apiKey string, opts OpenAIOptions) *OpenAIModel {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.ImageModel == "" {
		opts.ImageModel = "dall-e-3"
	}
	if opts.ImageSize == "" {
		opts.ImageSize = "1024x1024"
	}

	client := openai.NewClient(reqOpts...)
	return &OpenAIModel{client: &client, opts: opts}
}

func (m *OpenAIModel) Name() string { return providerOpenAI }

// ValidateToken lists models, which succeeds only for a usable key.
func (m *OpenAIModel) ValidateToken(ctx context.Context) (bool, error) {
	_, err := m.client.Models.List(ctx)
	if err == nil {
		return true, nil
	}
	err = wrapOpenAIError(err)
	if KindOf(err) == KindInvalidCredential {
		return false, nil
	}
	return false, err
}

func (m *OpenAIModel) ChatCompletion(ctx context.Context, messages []Message, modelID string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: toOpenAIMessages(messages),
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: providerOpenAI, Message: "completion returned no choices"}
	}
	return CleanReply(resp.Choices[0].Message.Content), nil
}

func (m *OpenAIModel) ImageGeneration(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(m.opts.ImageModel),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(m.opts.ImageSize),
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", &ProviderError{Provider: providerOpenAI, Message: "image generation returned no url"}
	}
	return resp.Data[0].URL, nil
}

func (m *OpenAIModel) AudioTranscription(ctx context.Context, audio io.Reader, filename, modelID string) (string, error) {
	if filename == "" {
		filename = "audio.m4a"
	}
	resp, err := m.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, ""),
		Model: openai.AudioModel(modelID),
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	return resp.Text, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// wrapOpenAIError converts SDK errors into a *ProviderError with a kind.
// Errors without an HTTP status (network, cancellation) pass through so
// KindOf can still detect deadline expiry.
func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return &ProviderError{Provider: providerOpenAI, Kind: KindTimeout, Message: "request timed out", Err: err}
		}
		return err
	}
	return &ProviderError{
		Provider: providerOpenAI,
		Kind:     Classify(apiErr.StatusCode),
		Message:  http.StatusText(apiErr.StatusCode),
		Code:     apiErr.StatusCode,
		Err:      err,
	}
}
