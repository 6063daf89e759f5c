package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

// Registry manages provider factories and binds credentials to models.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory // provider name → factory
	aliases   map[string]string  // alias → provider name
	fallback  string             // default provider name
	log       *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
		log:       log.Sub("llm.registry"),
	}
}

// Register adds a factory under the given provider name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	r.log.Info().Str("provider", name).Msg("registered generation provider")
}

// Alias maps another name to a provider.
// e.g., Alias("chatgpt", "openai") means "chatgpt" resolves to the "openai" provider.
func (r *Registry) Alias(alias, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = provider
}

// SetFallback sets the provider used when no name or alias matches.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Factory for the given provider reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.factories[name]; ok {
		return f, nil
	}
	if provider, ok := r.aliases[name]; ok {
		if f, ok := r.factories[provider]; ok {
			return f, nil
		}
	}
	if r.fallback != "" {
		if f, ok := r.factories[r.fallback]; ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("no generation provider for %q", name)
}

// Bind resolves provider and builds a Model for credential.
func (r *Registry) Bind(provider, credential string) (Model, error) {
	f, err := r.Resolve(provider)
	if err != nil {
		return nil, err
	}
	return f(credential)
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig builds a Registry with the built-in providers and
// the configured provider as fallback.
func NewRegistryFromConfig(cfg config.BackendConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	reg.Register("openai", func(credential string) (Model, error) {
		return NewOpenAIModel(credential, OpenAIOptions{
			BaseURL:    cfg.BaseURL,
			ImageModel: cfg.ImageModel,
			ImageSize:  cfg.ImageSize,
		}), nil
	})
	for _, alias := range []string{"chatgpt", "gpt"} {
		reg.Alias(alias, "openai")
	}

	reg.Register("mock", func(credential string) (Model, error) {
		return NewEchoModel(credential), nil
	})

	reg.SetFallback(cfg.Provider)
	return reg
}
