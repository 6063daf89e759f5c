// Package content turns a URL into bounded text chunks and summarizes them
// with a chat model.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/llm"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

// ErrNoContent is returned when a source yields no text at all.
var ErrNoContent = errors.New("no extractable content")

// ExtractError wraps a failure to retrieve a source.
type ExtractError struct {
	URL string
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.URL, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// IsExtractFailure reports whether err means the source could not be read.
func IsExtractFailure(err error) bool {
	var ee *ExtractError
	return errors.Is(err, ErrNoContent) || errors.As(err, &ee)
}

// Summarizer is the chat capability the router needs. llm.Model satisfies it.
type Summarizer interface {
	ChatCompletion(ctx context.Context, messages []llm.Message, modelID string) (string, error)
}

// Options configures a Router.
type Options struct {
	ChunkSize int
	MaxChunks int
	ModelID   string
}

// Router picks an extraction strategy for a URL and runs the map-reduce
// summarization over the result.
type Router struct {
	pages       PageFetcher
	transcripts TranscriptFetcher
	opts        Options
	log         *logging.Logger
}

// NewRouter creates a Router. transcripts may be nil, in which case video
// URLs are read as ordinary pages.
func NewRouter(pages PageFetcher, transcripts TranscriptFetcher, opts Options, log *logging.Logger) *Router {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Router{
		pages:       pages,
		transcripts: transcripts,
		opts:        opts,
		log:         log.Sub("content"),
	}
}

// Extract returns the chunks of rawURL. A video is read from its transcript
// when one is published; everything else is read as a page.
func (r *Router) Extract(ctx context.Context, rawURL string) ([]string, error) {
	var (
		chunks []string
		source string
	)

	if r.transcripts != nil && IsVideoURL(rawURL) {
		segments, err := r.transcripts.Transcript(ctx, rawURL)
		switch {
		case err == nil:
			chunks = ChunkSegments(segments, r.opts.ChunkSize)
			source = "transcript"
			if len(chunks) == 0 {
				return nil, ErrNoContent
			}
		case errors.Is(err, ErrNoTranscript):
			r.log.Debug().Str("url", rawURL).Msg("no transcript, reading page")
		default:
			return nil, &ExtractError{URL: rawURL, Err: err}
		}
	}

	if source == "" {
		text, err := r.pages.Fetch(ctx, rawURL)
		if err != nil {
			return nil, &ExtractError{URL: rawURL, Err: err}
		}
		chunks = ChunkText(text, r.opts.ChunkSize)
		source = "page"
	}

	if len(chunks) == 0 {
		return nil, ErrNoContent
	}
	if r.opts.MaxChunks > 0 && len(chunks) > r.opts.MaxChunks {
		r.log.Warn().
			Str("url", rawURL).
			Int("chunks", len(chunks)).
			Int("kept", r.opts.MaxChunks).
			Msg("content truncated")
		chunks = chunks[:r.opts.MaxChunks]
	}

	r.log.Debug().Str("url", rawURL).Str("source", source).Int("chunks", len(chunks)).Msg("content extracted")
	return chunks, nil
}

// Summarize condenses each chunk independently, then condenses the joined
// partial summaries into the final answer. A single chunk needs one call.
func (r *Router) Summarize(ctx context.Context, model Summarizer, chunks []string, instruction string) (string, error) {
	if len(chunks) == 0 {
		return "", ErrNoContent
	}

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		prompt := chunkPrompt(chunk, i+1, len(chunks))
		summary, err := model.ChatCompletion(ctx, summarizeMessages(instruction, prompt), r.opts.ModelID)
		if err != nil {
			return "", fmt.Errorf("summarizing chunk %d/%d: %w", i+1, len(chunks), err)
		}
		summaries = append(summaries, llm.CleanReply(summary))
	}
	if len(summaries) == 1 {
		return summaries[0], nil
	}

	final, err := model.ChatCompletion(ctx, summarizeMessages(instruction, reducePrompt(summaries)), r.opts.ModelID)
	if err != nil {
		return "", fmt.Errorf("combining summaries: %w", err)
	}
	return llm.CleanReply(final), nil
}

func summarizeMessages(instruction, prompt string) []llm.Message {
	var msgs []llm.Message
	if instruction != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: instruction})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})
}

func chunkPrompt(chunk string, n, total int) string {
	if total == 1 {
		return "Summarize the key points of the following content:\n\n" + chunk
	}
	return fmt.Sprintf("Summarize the key points of part %d of %d of the following content:\n\n%s", n, total, chunk)
}

func reducePrompt(summaries []string) string {
	var b strings.Builder
	b.WriteString("Combine these partial summaries into one concise summary:\n")
	for i, s := range summaries {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, s)
	}
	return b.String()
}
