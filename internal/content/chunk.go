package content

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkSize is used when a non-positive size is requested.
const DefaultChunkSize = 3000

// Segment is one timed caption line of a transcript.
type Segment struct {
	Text  string
	Start time.Duration
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// splitters break a piece that does not fit in one chunk, coarsest first.
// Past the last level a piece is cut on rune boundaries.
var splitters = []func(string) []string{splitSentences, strings.Fields}

// ChunkSegments packs whole transcript segments into chunks of at most size
// runes. Only a segment longer than size is cut.
func ChunkSegments(segments []Segment, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	texts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.Join(strings.Fields(s.Text), " "); t != "" {
			texts = append(texts, t)
		}
	}
	return pack(texts, " ", size, len(splitters))
}

// ChunkText splits page text into chunks of at most size runes, preferring
// paragraph boundaries, then sentence ends, then whitespace.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var paragraphs []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return pack(paragraphs, "\n\n", size, 0)
}

func pack(pieces []string, sep string, size, level int) []string {
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	sepLen := utf8.RuneCountInString(sep)

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if n > size {
			flush()
			if level < len(splitters) {
				chunks = append(chunks, pack(splitters[level](p), " ", size, level+1)...)
			} else {
				chunks = append(chunks, splitRunes(p, size)...)
			}
			continue
		}
		if curLen > 0 && curLen+sepLen+n > size {
			flush()
		}
		if curLen > 0 {
			cur.WriteString(sep)
			curLen += sepLen
		}
		cur.WriteString(p)
		curLen += n
	}
	flush()
	return chunks
}

func splitSentences(s string) []string {
	var out []string
	runes := []rune(s)
	start := 0
	for i, r := range runes {
		if !strings.ContainsRune(".!?。！？", r) {
			continue
		}
		// ASCII terminators only end a sentence before whitespace ("3.14", "e.g.x").
		if r < utf8.RuneSelf && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if seg := strings.TrimSpace(string(runes[start : i+1])); seg != "" {
			out = append(out, seg)
		}
		start = i + 1
	}
	if seg := strings.TrimSpace(string(runes[start:])); seg != "" {
		out = append(out, seg)
	}
	return out
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	out := make([]string, 0, len(runes)/size+1)
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
