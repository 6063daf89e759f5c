// Package llm defines the generation capability interface bound to a user's
// credential, and the provider adapters that implement it.
package llm

import (
	"context"
	"io"
	"strings"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Model is the set of generation capabilities available to one credential.
//
// Every method returns a tri-state result: a value with a nil error on
// success, a *ProviderError whose Kind describes an anticipated failure
// (bad credential, overload, timeout), or any other error for failures the
// caller cannot classify.
type Model interface {
	// Name returns the provider name, e.g. "openai".
	Name() string

	// ValidateToken checks the bound credential against the backend.
	// A rejected credential yields (false, nil); an error means the check
	// itself could not complete.
	ValidateToken(ctx context.Context) (bool, error)

	// ChatCompletion returns the assistant text for the given conversation.
	ChatCompletion(ctx context.Context, messages []Message, modelID string) (string, error)

	// ImageGeneration returns a URL of an image generated from prompt.
	ImageGeneration(ctx context.Context, prompt string) (string, error)

	// AudioTranscription returns the text spoken in audio. filename carries
	// the container format hint (e.g. "voice.m4a").
	AudioTranscription(ctx context.Context, audio io.Reader, filename, modelID string) (string, error)
}

// Factory binds a credential to a Model.
type Factory func(credential string) (Model, error)

// CleanReply strips a leading role label some models echo back
// ("assistant: ...", "Assistant：...") and surrounding whitespace.
func CleanReply(text string) string {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	for _, prefix := range []string{"assistant:", "assistant：", "ai:", "ai："} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(text[len(prefix):])
		}
	}
	return text
}
