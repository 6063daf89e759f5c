package agent

import (
	"context"
	"slices"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/llm"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

// FailoverModel retries chat completions on fallback model IDs when the
// requested model is rate limited or overloaded. The other capabilities
// pass straight through.
type FailoverModel struct {
	llm.Model
	fallbacks []string
	log       *logging.Logger
}

// NewFailoverModel wraps m. With no fallbacks m is returned unchanged.
func NewFailoverModel(m llm.Model, fallbacks []string, log *logging.Logger) llm.Model {
	if len(fallbacks) == 0 {
		return m
	}
	return &FailoverModel{
		Model:     m,
		fallbacks: fallbacks,
		log:       log.Sub("failover"),
	}
}

// ChatCompletion tries modelID first, then each fallback in order, stopping
// at the first error that a different model would not fix.
func (f *FailoverModel) ChatCompletion(ctx context.Context, messages []llm.Message, modelID string) (string, error) {
	models := []string{modelID}
	for _, fb := range f.fallbacks {
		if !slices.Contains(models, fb) {
			models = append(models, fb)
		}
	}

	var lastErr error
	for i, model := range models {
		out, err := f.Model.ChatCompletion(ctx, messages, model)
		if err == nil {
			if i > 0 {
				f.log.Info().Str("model", model).Msg("served by fallback model")
			}
			return out, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil {
			return "", err
		}
		f.log.Warn().
			Str("model", model).
			Err(err).
			Msg("retryable error, trying next model")
	}

	return "", lastErr
}

// isRetryable reports whether another model may succeed where this one failed.
func isRetryable(err error) bool {
	switch llm.KindOf(err) {
	case llm.KindRateLimited, llm.KindOverloaded:
		return true
	}
	return false
}
