package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

// ErrNoTranscript means the video exists but publishes no captions.
var ErrNoTranscript = errors.New("no transcript available")

// TranscriptFetcher returns the caption segments of a video.
type TranscriptFetcher interface {
	Transcript(ctx context.Context, videoURL string) ([]Segment, error)
}

// TranscriptFetcherFunc adapts a function to TranscriptFetcher.
type TranscriptFetcherFunc func(ctx context.Context, videoURL string) ([]Segment, error)

func (f TranscriptFetcherFunc) Transcript(ctx context.Context, videoURL string) ([]Segment, error) {
	return f(ctx, videoURL)
}

// videoClient is the part of youtube.Client the fetcher uses.
type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetTranscriptCtx(ctx context.Context, video *youtube.Video, lang string) (youtube.VideoTranscript, error)
}

// YouTubeTranscripts fetches captions through the YouTube innertube API.
type YouTubeTranscripts struct {
	client videoClient
	langs  []string
	log    *logging.Logger
}

// NewYouTubeTranscripts returns a fetcher that tries lang, then English,
// then every caption track the video publishes. httpClient may be nil.
func NewYouTubeTranscripts(lang string, httpClient *http.Client, log *logging.Logger) *YouTubeTranscripts {
	return newYouTubeTranscripts(lang, &youtube.Client{HTTPClient: httpClient}, log)
}

func newYouTubeTranscripts(lang string, client videoClient, log *logging.Logger) *YouTubeTranscripts {
	langs := []string{"en"}
	if lang != "" && lang != "en" {
		langs = []string{lang, "en"}
	}
	return &YouTubeTranscripts{
		client: client,
		langs:  langs,
		log:    log.Sub("content.youtube"),
	}
}

func (y *YouTubeTranscripts) Transcript(ctx context.Context, videoURL string) ([]Segment, error) {
	video, err := y.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return nil, fmt.Errorf("loading video: %w", err)
	}

	var lastErr error
	for _, lang := range y.languages(video) {
		transcript, err := y.client.GetTranscriptCtx(ctx, video, lang)
		if err != nil {
			if !errors.Is(err, youtube.ErrTranscriptDisabled) {
				lastErr = err
			}
			y.log.Debug().Str("video", video.ID).Str("lang", lang).Err(err).Msg("transcript unavailable")
			continue
		}
		if len(transcript) == 0 {
			continue
		}

		segments := make([]Segment, 0, len(transcript))
		for _, seg := range transcript {
			segments = append(segments, Segment{
				Text:  seg.Text,
				Start: time.Duration(seg.StartMs) * time.Millisecond,
			})
		}
		y.log.Debug().Str("video", video.ID).Str("lang", lang).Int("segments", len(segments)).Msg("transcript fetched")
		return segments, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("fetching transcript: %w", lastErr)
	}
	return nil, ErrNoTranscript
}

// languages lists the preferred languages followed by the video's own
// caption tracks, without duplicates.
func (y *YouTubeTranscripts) languages(video *youtube.Video) []string {
	langs := slices.Clone(y.langs)
	for _, track := range video.CaptionTracks {
		if track.LanguageCode != "" && !slices.Contains(langs, track.LanguageCode) {
			langs = append(langs, track.LanguageCode)
		}
	}
	return langs
}
