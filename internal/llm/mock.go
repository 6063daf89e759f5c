package llm

import (
	"context"
	"io"
	"strings"
)

// MockModel is a test double for Model.
type MockModel struct {
	ProviderName   string
	ValidateFunc   func(ctx context.Context) (bool, error)
	ChatFunc       func(ctx context.Context, messages []Message, modelID string) (string, error)
	ImageFunc      func(ctx context.Context, prompt string) (string, error)
	TranscribeFunc func(ctx context.Context, audio io.Reader, filename, modelID string) (string, error)
}

func (m *MockModel) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockModel) ValidateToken(ctx context.Context) (bool, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx)
	}
	return true, nil
}

func (m *MockModel) ChatCompletion(ctx context.Context, messages []Message, modelID string) (string, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, messages, modelID)
	}
	return "mock response", nil
}

func (m *MockModel) ImageGeneration(ctx context.Context, prompt string) (string, error) {
	if m.ImageFunc != nil {
		return m.ImageFunc(ctx, prompt)
	}
	return "https://example.com/mock.png", nil
}

func (m *MockModel) AudioTranscription(ctx context.Context, audio io.Reader, filename, modelID string) (string, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio, filename, modelID)
	}
	return "mock transcript", nil
}

// NewEchoModel returns an offline model that answers with the last user
// turn. Credentials starting with "invalid" are rejected, which makes the
// registration flow exercisable without a real backend.
func NewEchoModel(credential string) *MockModel {
	return &MockModel{
		ProviderName: "mock",
		ValidateFunc: func(context.Context) (bool, error) {
			return !strings.HasPrefix(credential, "invalid"), nil
		},
		ChatFunc: func(_ context.Context, messages []Message, _ string) (string, error) {
			for i := len(messages) - 1; i >= 0; i-- {
				if messages[i].Role == RoleUser {
					return "echo: " + messages[i].Content, nil
				}
			}
			return "echo:", nil
		},
		TranscribeFunc: func(_ context.Context, audio io.Reader, _, _ string) (string, error) {
			data, err := io.ReadAll(audio)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}
