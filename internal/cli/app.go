package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/agent"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/content"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/hooks"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/llm"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/memory"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/store"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/version"
)

// loadConfig reads and validates the config file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, issue := range issues {
			msgs[i] = issue.String()
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s): %s",
			len(issues), strings.Join(msgs, "; "))
	}
	return cfg, nil
}

// core is the session orchestration stack shared by serve and chat.
type core struct {
	cfg        config.Config
	hooks      *hooks.Manager
	creds      store.CredentialStore
	sessions   *agent.Sessions
	memory     *memory.Memory
	dispatcher *agent.Dispatcher
}

// openCredentials opens the configured credential store.
func openCredentials(ctx context.Context, cfg config.Config, log *logging.Logger) (store.CredentialStore, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	storePath := paths.StorePath(cfg.Store)
	creds, err := store.Open(ctx, cfg.Store, storePath, log)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}
	log.Info().Str("driver", cfg.Store.Driver).Str("path", storePath).Msg("credential store ready")
	return creds, nil
}

// newCore wires the credential store, backend factory, memory, content
// router and dispatcher, and binds every stored credential.
func newCore(ctx context.Context, cfg config.Config, log *logging.Logger) (*core, error) {
	creds, err := openCredentials(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	registry := llm.NewRegistryFromConfig(cfg.Backend, log)
	factory, err := registry.Resolve(cfg.Backend.Provider)
	if err != nil {
		creds.Close()
		return nil, err
	}
	failoverLog := log.With("provider", cfg.Backend.Provider)
	bind := func(credential string) (llm.Model, error) {
		m, err := factory(credential)
		if err != nil {
			return nil, err
		}
		return agent.NewFailoverModel(m, cfg.Backend.FallbackModels, failoverLog), nil
	}

	sessions := agent.NewSessions(bind, creds, log)
	n, err := sessions.Load(ctx)
	if err != nil {
		creds.Close()
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	log.Info().Int("users", n).Msg("credentials bound")

	memLog := log.Sub("memory")
	mem := memory.New(memory.Options{
		Exchanges:         cfg.Session.Exchanges,
		SystemInstruction: cfg.Session.SystemMessage,
		MaxSessions:       cfg.Session.MaxSessions,
		OnEvict: func(userID string) {
			memLog.Debug().Str("user", userID).Msg("evicted conversation")
		},
	})

	hookMgr := hooks.NewManager(log)
	if n := hookMgr.RegisterCommands(cfg.Hooks); n > 0 {
		log.Info().Int("hooks", n).Msg("command hooks registered")
	}

	userAgent := cfg.Content.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	fetchTimeout := time.Duration(cfg.Content.FetchTimeoutSeconds) * time.Second
	pages := content.NewHTTPPageFetcher(content.PageOptions{
		UserAgent:    userAgent,
		Timeout:      fetchTimeout,
		MaxBodyBytes: cfg.Content.MaxBodyBytes,
		AllowPrivate: cfg.Content.AllowPrivate,
	}, log)
	transcripts := content.NewYouTubeTranscripts(cfg.Content.TranscriptLanguage, nil, log)
	router := content.NewRouter(pages, transcripts, content.Options{
		ChunkSize: cfg.Content.ChunkSize,
		MaxChunks: cfg.Content.MaxChunks,
		ModelID:   cfg.Backend.ChatModel,
	}, log)

	dispatcher := agent.NewDispatcher(sessions, mem, router, hookMgr, agent.Options{
		ChatModel:          cfg.Backend.ChatModel,
		TranscriptionModel: cfg.Backend.TranscriptionModel,
		Timeout:            time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		ClearOnError:       cfg.Session.ClearHistoryOnError(),
	}, log)

	return &core{
		cfg:        cfg,
		hooks:      hookMgr,
		creds:      creds,
		sessions:   sessions,
		memory:     mem,
		dispatcher: dispatcher,
	}, nil
}

func (c *core) Close() error {
	return c.creds.Close()
}
