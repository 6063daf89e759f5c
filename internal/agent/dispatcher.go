// Package agent turns inbound events into replies: it classifies commands,
// owns per-user credential bindings and drives memory, content extraction
// and the generation backend for each event.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/content"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/hooks"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/llm"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/memory"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/metrics"
)

// Reply outcomes, used as the metrics label.
const (
	outcomeOK            = "ok"
	outcomeUsage         = "usage"
	outcomeUnregistered  = "unregistered"
	outcomeInvalidToken  = "invalid_credential"
	outcomeTransient     = "transient"
	outcomeExtractFailed = "extract_failed"
	outcomeImageFailed   = "image_failed"
	outcomeAudioFailed   = "audio_failed"
	outcomeError         = "error"
)

var (
	errInvalidToken = errors.New("credential rejected by backend")
	errEmptyAnswer  = errors.New("backend returned an empty answer")
)

// usageError answers a malformed command with its usage line.
type usageError struct{ usage string }

func (e *usageError) Error() string { return "usage: " + e.usage }

// imageError marks an image generation failure. It is reported to the user
// but never clears history.
type imageError struct{ err error }

func (e *imageError) Error() string { return "image generation: " + e.err.Error() }
func (e *imageError) Unwrap() error { return e.err }

// audioError marks a voice message that could not be retrieved.
type audioError struct{ err error }

func (e *audioError) Error() string { return "retrieving audio: " + e.err.Error() }
func (e *audioError) Unwrap() error { return e.err }

// ContentRouter extracts and summarizes the content behind a URL.
type ContentRouter interface {
	Extract(ctx context.Context, rawURL string) ([]string, error)
	Summarize(ctx context.Context, model content.Summarizer, chunks []string, instruction string) (string, error)
}

// Options configures a Dispatcher.
type Options struct {
	ChatModel          string
	TranscriptionModel string
	// Timeout bounds each backend call. Zero means no limit beyond ctx.
	Timeout time.Duration
	// ClearOnError clears a user's history after an unclassified failure.
	ClearOnError bool
}

// Dispatcher produces exactly one reply for every inbound event.
type Dispatcher struct {
	sessions *Sessions
	memory   *memory.Memory
	content  ContentRouter
	hooks    *hooks.Manager
	opts     Options
	log      *logging.Logger
}

// NewDispatcher creates a Dispatcher. content and hookMgr may be nil; without
// a content router URLs are sent to the chat model as plain text.
func NewDispatcher(sessions *Sessions, mem *memory.Memory, router ContentRouter, hookMgr *hooks.Manager, opts Options, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		memory:   mem,
		content:  router,
		hooks:    hookMgr,
		opts:     opts,
		log:      log.Sub("dispatcher"),
	}
}

// Dispatch handles ev and returns its reply. It never fails: every error,
// including a panic in a collaborator, becomes a user-facing reply. Events
// for the same user are handled one at a time. State is looked up by the
// event's session key, so the same user ID on two channels names two
// independent users.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.InboundEvent) (reply domain.Reply) {
	start := time.Now()
	key := ev.SessionKey()
	unlock := d.sessions.Lock(key)
	defer unlock()
	defer d.memory.Pin(key)()

	log := d.log.With("session", key)
	command := "audio"
	var cmd Command
	if ev.Kind == domain.EventText {
		cmd = Parse(ev.Text)
		command = cmd.name()
	}

	metrics.EventsTotal.WithLabelValues(ev.ChannelID, string(ev.Kind)).Inc()
	d.hooks.EmitAsync(ctx, hooks.EventMessageReceived, hooks.MessageReceived(ev, command))

	outcome := outcomeOK
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("command", command).
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("recovered panic while dispatching")
			reply, outcome = d.fail(ctx, log, key, command, fmt.Errorf("panic: %v", r))
		}
		metrics.RepliesTotal.WithLabelValues(outcome).Inc()
		metrics.ActiveSessions.Set(float64(d.memory.Len()))
		log.Info().
			Str("channel", ev.ChannelID).
			Str("command", command).
			Str("outcome", outcome).
			Dur("duration", time.Since(start)).
			Msg("event handled")
	}()

	var err error
	switch ev.Kind {
	case domain.EventText:
		reply, err = d.handle(ctx, key, cmd)
	case domain.EventAudio:
		reply, err = d.handleAudio(ctx, key, ev)
	default:
		reply, outcome = domain.TextReply(msgUnsupported), outcomeUsage
	}
	if err != nil {
		reply, outcome = d.fail(ctx, log, key, command, err)
	}
	return reply
}

func (d *Dispatcher) handle(ctx context.Context, key string, cmd Command) (domain.Reply, error) {
	switch c := cmd.(type) {
	case RegisterCommand:
		return d.register(ctx, key, c.Token)
	case HelpCommand:
		return domain.TextReply(helpText), nil
	case SystemCommand:
		if c.Text == "" {
			return domain.Reply{}, &usageError{usageSystem}
		}
		d.memory.SetSystemInstruction(key, c.Text)
		return domain.TextReply(msgSystemSet), nil
	case ClearCommand:
		d.clearHistory(ctx, key, "command")
		return domain.TextReply(msgCleared), nil
	case ImageCommand:
		return d.image(ctx, key, c.Prompt)
	case ChatCommand:
		return d.chat(ctx, key, c.Text)
	default:
		panic(fmt.Sprintf("agent: unhandled command %T", cmd))
	}
}

func (d *Dispatcher) register(ctx context.Context, key, token string) (domain.Reply, error) {
	if token == "" {
		return domain.Reply{}, &usageError{usageRegister}
	}

	model, err := d.sessions.Bind(token)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("binding credential: %w", err)
	}

	var valid bool
	err = d.call(ctx, "validate", func(ctx context.Context) error {
		var err error
		valid, err = model.ValidateToken(ctx)
		return err
	})
	if err != nil {
		return domain.Reply{}, err
	}
	if !valid {
		return domain.Reply{}, errInvalidToken
	}

	if err := d.sessions.Register(ctx, key, token, model); err != nil {
		return domain.Reply{}, err
	}
	d.hooks.EmitAsync(ctx, hooks.EventCredentialRegistered, hooks.CredentialRegistered(key, model.Name()))
	return domain.TextReply(msgRegistered), nil
}

func (d *Dispatcher) image(ctx context.Context, key, prompt string) (domain.Reply, error) {
	if prompt == "" {
		return domain.Reply{}, &usageError{usageImage}
	}
	model, err := d.sessions.Model(key)
	if err != nil {
		return domain.Reply{}, err
	}

	d.memory.Append(key, llm.RoleUser, prompt)

	var url string
	err = d.call(ctx, "image", func(ctx context.Context) error {
		var err error
		url, err = model.ImageGeneration(ctx, prompt)
		return err
	})
	if err == nil && url == "" {
		err = errEmptyAnswer
	}
	if err != nil {
		return domain.Reply{}, &imageError{err}
	}

	d.memory.Append(key, llm.RoleAssistant, url)
	return domain.ImageReply(url), nil
}

// chat answers free text. A URL in the text is summarized through the
// content router; its extraction runs before the user turn is recorded so
// an unreadable link leaves the history untouched.
func (d *Dispatcher) chat(ctx context.Context, key, text string) (domain.Reply, error) {
	model, err := d.sessions.Model(key)
	if err != nil {
		return domain.Reply{}, err
	}

	if u, ok := content.FirstURL(text); ok && d.content != nil {
		return d.summarize(ctx, key, text, u, model)
	}

	d.memory.Append(key, llm.RoleUser, text)

	var answer string
	err = d.call(ctx, "chat", func(ctx context.Context) error {
		var err error
		answer, err = model.ChatCompletion(ctx, d.memory.Get(key), d.opts.ChatModel)
		return err
	})
	if err != nil {
		return domain.Reply{}, err
	}
	return d.answer(key, answer)
}

func (d *Dispatcher) summarize(ctx context.Context, key, text, rawURL string, model llm.Model) (domain.Reply, error) {
	var chunks []string
	err := d.call(ctx, "extract", func(ctx context.Context) error {
		var err error
		chunks, err = d.content.Extract(ctx, rawURL)
		return err
	})
	if err != nil {
		return domain.Reply{}, err
	}

	d.memory.Append(key, llm.RoleUser, text)

	summary, err := d.content.Summarize(ctx, timedSummarizer{d: d, model: model}, chunks, d.memory.SystemInstruction(key))
	if err != nil {
		return domain.Reply{}, err
	}
	return d.answer(key, summary)
}

func (d *Dispatcher) answer(key, text string) (domain.Reply, error) {
	text = llm.CleanReply(text)
	if text == "" {
		return domain.Reply{}, errEmptyAnswer
	}
	d.memory.Append(key, llm.RoleAssistant, text)
	return domain.TextReply(text), nil
}

func (d *Dispatcher) handleAudio(ctx context.Context, key string, ev domain.InboundEvent) (domain.Reply, error) {
	model, err := d.sessions.Model(key)
	if err != nil {
		return domain.Reply{}, err
	}

	audio := ev.Audio
	if len(audio) == 0 && ev.FetchAudio != nil {
		err = d.call(ctx, "download", func(ctx context.Context) error {
			var err error
			audio, err = ev.FetchAudio(ctx)
			return err
		})
		if err != nil {
			return domain.Reply{}, &audioError{err}
		}
	}

	name := ev.AudioName
	if name == "" {
		name = "audio.m4a"
	}

	var transcript string
	err = d.call(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		transcript, err = model.AudioTranscription(ctx, bytes.NewReader(audio), name, d.opts.TranscriptionModel)
		return err
	})
	if err != nil {
		return domain.Reply{}, err
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return domain.TextReply(msgNoSpeech), nil
	}
	return d.chat(ctx, key, transcript)
}

// call runs fn under the per-call timeout and records its latency.
func (d *Dispatcher) call(ctx context.Context, capability string, fn func(ctx context.Context) error) error {
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	metrics.BackendLatency.WithLabelValues(capability).Observe(time.Since(start).Seconds())
	return err
}

// timedSummarizer gives every completion of a map-reduce summary its own
// timeout, so the number of chunks does not eat into one shared budget.
type timedSummarizer struct {
	d     *Dispatcher
	model llm.Model
}

func (t timedSummarizer) ChatCompletion(ctx context.Context, messages []llm.Message, modelID string) (string, error) {
	var out string
	err := t.d.call(ctx, "summarize", func(ctx context.Context) error {
		var err error
		out, err = t.model.ChatCompletion(ctx, messages, modelID)
		return err
	})
	return out, err
}

func (d *Dispatcher) clearHistory(ctx context.Context, key, reason string) {
	d.memory.Clear(key)
	d.hooks.EmitAsync(ctx, hooks.EventHistoryCleared, hooks.HistoryCleared(key, reason))
}

// fail maps err to the reply and outcome for it. Only unclassified errors
// outside image generation touch state: they clear the user's history when ClearOnError is set.
func (d *Dispatcher) fail(ctx context.Context, log *logging.Logger, key, command string, err error) (domain.Reply, string) {
	var usage *usageError
	if errors.As(err, &usage) {
		return domain.TextReply(usage.usage), outcomeUsage
	}

	var audErr *audioError
	if errors.As(err, &audErr) {
		log.Warn().Err(err).Str("command", command).Msg(outcomeAudioFailed)
		if errors.Is(err, domain.ErrAudioTooLarge) {
			return domain.TextReply(msgAudioTooLarge), outcomeAudioFailed
		}
		return domain.TextReply(msgAudioFailed), outcomeAudioFailed
	}

	kind := llm.KindOf(err)
	warn := func(outcome string) {
		log.Warn().
			Err(err).
			Str("command", command).
			Str("kind", kind.String()).
			Msg(outcome)
	}

	switch {
	case errors.Is(err, ErrUnregistered):
		warn(outcomeUnregistered)
		return domain.TextReply(msgUnregistered), outcomeUnregistered
	case errors.Is(err, errInvalidToken), kind == llm.KindInvalidCredential:
		warn(outcomeInvalidToken)
		return domain.TextReply(msgInvalidToken), outcomeInvalidToken
	case content.IsExtractFailure(err):
		warn(outcomeExtractFailed)
		return domain.TextReply(msgExtractFailed), outcomeExtractFailed
	case kind.Transient():
		warn(outcomeTransient)
		return domain.TextReply(msgTransient), outcomeTransient
	}

	var imgErr *imageError
	if errors.As(err, &imgErr) {
		warn(outcomeImageFailed)
		return domain.TextReply(msgImageFailed), outcomeImageFailed
	}

	log.Error().
		Err(err).
		Str("command", command).
		Str("kind", kind.String()).
		Bool("historyCleared", d.opts.ClearOnError).
		Msg("unclassified failure")
	if d.opts.ClearOnError {
		d.clearHistory(ctx, key, "error")
		return domain.TextReply(msgErrorCleared), outcomeError
	}
	return domain.TextReply(msgError), outcomeError
}
