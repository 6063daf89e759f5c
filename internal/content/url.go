package content

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"'「」『』（），。、！？]+`)

// FirstURL returns the first well-formed http(s) URL in text. Trailing
// punctuation that commonly follows a link in prose is not part of it.
func FirstURL(text string) (string, bool) {
	for _, candidate := range urlPattern.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ".,;:!?)]}>")
		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" {
			continue
		}
		return candidate, true
	}
	return "", false
}

// IsVideoURL reports whether raw points at a YouTube video.
func IsVideoURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m.", "music."} {
		host = strings.TrimPrefix(host, prefix)
	}

	switch host {
	case "youtu.be":
		return strings.Trim(u.Path, "/") != ""
	case "youtube.com", "youtube-nocookie.com":
		if u.Path == "/watch" {
			return u.Query().Get("v") != ""
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
			if strings.HasPrefix(u.Path, prefix) && len(u.Path) > len(prefix) {
				return true
			}
		}
	}
	return false
}
